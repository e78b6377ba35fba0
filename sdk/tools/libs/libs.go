// Package libs provides support for installing the llama.cpp libraries and
// model files.
package libs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/ardanlabs/llamactx/sdk/tools/defaults"
	"github.com/ardanlabs/llamactx/sdk/tools/downloader"
	"github.com/hybridgroup/yzma/pkg/download"
)

const versionFile = "version.json"

// Logger represents a logger for capturing events.
type Logger func(ctx context.Context, msg string, args ...any)

// VersionTag represents information about the installed version of llama.cpp.
type VersionTag struct {
	Version string `json:"tag_name"`
	Latest  string `json:"-"`
}

// Libs manages the library system.
type Libs struct {
	path         string
	processor    download.Processor
	allowUpgrade bool
}

// New constructs a Libs using the default path and processor unless
// overrides are provided.
func New(libPath string, processor string, allowUpgrade bool) (*Libs, error) {
	proc, err := defaults.Processor(processor)
	if err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	lib := Libs{
		path:         defaults.LibsDir(libPath),
		processor:    proc,
		allowUpgrade: allowUpgrade,
	}

	return &lib, nil
}

// Path returns the location of the libraries.
func (lib *Libs) Path() string {
	return lib.path
}

// Processor returns the hardware the libraries are built for.
func (lib *Libs) Processor() download.Processor {
	return lib.processor
}

// Install installs or upgrades llama.cpp at the library path.
func (lib *Libs) Install(ctx context.Context, log Logger) (VersionTag, error) {
	log(ctx, "install-libraries", "status", "check libraries version information", "path", lib.path, "processor", lib.processor)

	tag, err := lib.VersionInformation()
	if err != nil {
		if tag.Version == "" {
			return VersionTag{}, fmt.Errorf("install-libraries: error retrieving version info: %w", err)
		}

		log(ctx, "install-libraries", "status", "unable to check latest version, using installed version", "current", tag.Version)
		return tag, nil
	}

	if tag.Version == tag.Latest {
		log(ctx, "install-libraries", "status", "already installed", "latest", tag.Latest, "current", tag.Version)
		return tag, nil
	}

	if tag.Version != "" && !lib.allowUpgrade {
		log(ctx, "install-libraries", "status", "bypassing upgrade", "latest", tag.Latest, "current", tag.Version)
		return tag, nil
	}

	if err := os.MkdirAll(lib.path, 0o755); err != nil {
		return VersionTag{}, fmt.Errorf("install-libraries: unable to create path: %w", err)
	}

	if err := download.InstallLibraries(lib.path, lib.processor, lib.allowUpgrade); err != nil {
		return VersionTag{}, fmt.Errorf("install-libraries: unable to install llama.cpp: %w", err)
	}

	if err := lib.createVersionFile(tag.Latest); err != nil {
		return VersionTag{}, fmt.Errorf("install-libraries: %w", err)
	}

	log(ctx, "install-libraries", "status", "llama.cpp installed", "old-version", tag.Version, "current", tag.Latest)

	return VersionTag{Version: tag.Latest, Latest: tag.Latest}, nil
}

// InstalledVersion retrieves the current version of llama.cpp installed.
func (lib *Libs) InstalledVersion() (VersionTag, error) {
	d, err := os.ReadFile(filepath.Join(lib.path, versionFile))
	if err != nil {
		return VersionTag{}, fmt.Errorf("installed-version: unable to read version info file: %w", err)
	}

	var tag VersionTag
	if err := json.Unmarshal(d, &tag); err != nil {
		return VersionTag{}, fmt.Errorf("installed-version: unable to parse version info file: %w", err)
	}

	return tag, nil
}

// VersionInformation retrieves the latest version of llama.cpp published on
// GitHub and the version installed.
func (lib *Libs) VersionInformation() (VersionTag, error) {
	tag, _ := lib.InstalledVersion()

	version, err := download.LlamaLatestVersion()
	if err != nil {
		return tag, fmt.Errorf("version-information: unable to get latest version of llama.cpp: %w", err)
	}

	tag.Latest = version

	return tag, nil
}

func (lib *Libs) createVersionFile(version string) error {
	d, err := json.Marshal(VersionTag{Version: version})
	if err != nil {
		return fmt.Errorf("create-version-file: %w", err)
	}

	if err := os.WriteFile(filepath.Join(lib.path, versionFile), d, 0o644); err != nil {
		return fmt.Errorf("create-version-file: %w", err)
	}

	return nil
}

// =============================================================================

// InstallModel downloads the model at modelURL into modelPath unless the file
// is already there. It returns the location of the model file. progress may
// be nil.
func InstallModel(ctx context.Context, modelURL string, modelPath string, progress downloader.ProgressFunc) (string, error) {
	u, err := url.Parse(modelURL)
	if err != nil {
		return "", fmt.Errorf("install-model: unable to parse url: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("install-model: url must be absolute: %s", modelURL)
	}

	modelPath = defaults.ModelsDir(modelPath)
	file := filepath.Join(modelPath, path.Base(u.Path))

	if _, err := os.Stat(file); err == nil {
		return file, nil
	}

	if err := os.MkdirAll(modelPath, 0o755); err != nil {
		return "", fmt.Errorf("install-model: unable to create path: %w", err)
	}

	if _, err := downloader.Download(ctx, modelURL, file, progress, downloader.SizeIntervalMIB100); err != nil {
		return "", fmt.Errorf("install-model: %w", err)
	}

	if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("install-model: download did not produce %s", file)
	}

	return file, nil
}
