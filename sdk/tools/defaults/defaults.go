// Package defaults provides default values for the cli tooling.
package defaults

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hybridgroup/yzma/pkg/download"
)

var (
	basePath    = ".llamactx"
	libsPath    = "libraries"
	modelsPath  = "models"
	presetsPath = "presets"
)

// BaseDir is the default base folder location for llamactx files. It will
// check the LLAMACTX_BASE_PATH env var first.
func BaseDir(override string) string {
	if override != "" {
		return override
	}

	if v := os.Getenv("LLAMACTX_BASE_PATH"); v != "" {
		return v
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Sprintf("./%s", basePath)
	}

	return filepath.Join(homeDir, basePath)
}

// LibsDir returns the default location for the libraries folder. It will check
// the LLAMACTX_LIB_PATH env var first and then default to the base folder.
func LibsDir(override string) string {
	if override != "" {
		return override
	}

	if v := os.Getenv("LLAMACTX_LIB_PATH"); v != "" {
		return v
	}

	return filepath.Join(BaseDir(""), libsPath)
}

// ModelsDir returns the default location for the models folder. It will check
// the LLAMACTX_MODELS env var first and then default to the base folder.
func ModelsDir(override string) string {
	if override != "" {
		return override
	}

	if v := os.Getenv("LLAMACTX_MODELS"); v != "" {
		return v
	}

	return filepath.Join(BaseDir(""), modelsPath)
}

// PresetsDir returns the default location for sampling preset files.
func PresetsDir(override string) string {
	if override != "" {
		return override
	}

	return filepath.Join(BaseDir(""), presetsPath)
}

// Processor will check the LLAMACTX_PROCESSOR env var first and check it's
// value against the proper set of processor values (cpu, cuda, metal,
// vulkan). If that variable is not set, then cpu is used as the default.
func Processor(override string) (download.Processor, error) {
	if override != "" {
		return download.ParseProcessor(override)
	}

	if v := os.Getenv("LLAMACTX_PROCESSOR"); v != "" {
		return download.ParseProcessor(v)
	}

	return download.CPU, nil
}
