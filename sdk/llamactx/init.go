package llamactx

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/ardanlabs/llamactx/sdk/tools/defaults"
	"github.com/hybridgroup/yzma/pkg/llama"
)

// LogLevel represents the logging level of the llama.cpp backend.
type LogLevel int

// Set of backend logging levels.
const (
	LogSilent LogLevel = iota + 1
	LogNormal
)

var (
	initOnce        sync.Once
	initErr         error
	libraryLocation string
)

type initOptions struct {
	libPath  string
	logLevel LogLevel
}

// InitOption represents options for configuring Init.
type InitOption func(*initOptions)

// WithLibPath sets a custom library path.
func WithLibPath(libPath string) InitOption {
	return func(o *initOptions) {
		o.libPath = libPath
	}
}

// WithLogLevel sets the log level for the backend.
func WithLogLevel(logLevel LogLevel) InitOption {
	return func(o *initOptions) {
		o.logLevel = logLevel
	}
}

// Init loads the llama.cpp libraries. It must be called once before a model
// is loaded with the llama.cpp engine.
func Init(opts ...InitOption) error {
	initOnce.Do(func() {
		var o initOptions
		for _, opt := range opts {
			opt(&o)
		}

		libPath := defaults.LibsDir(o.libPath)

		// Windows uses PATH for DLL discovery, Unix uses LD_LIBRARY_PATH.
		switch runtime.GOOS {
		case "windows":
			if v := os.Getenv("PATH"); !strings.Contains(v, libPath) {
				os.Setenv("PATH", fmt.Sprintf("%s;%s", libPath, v))
			}
		default:
			if v := os.Getenv("LD_LIBRARY_PATH"); !strings.Contains(v, libPath) {
				os.Setenv("LD_LIBRARY_PATH", fmt.Sprintf("%s:%s", libPath, v))
			}
		}

		if err := llama.Load(libPath); err != nil {
			initErr = fmt.Errorf("init: unable to load library: %w", err)
			return
		}

		libraryLocation = libPath
		llama.Init()

		switch o.logLevel {
		case LogNormal:
			llama.LogSet(llama.LogNormal)
		default:
			llama.LogSet(llama.LogSilent())
		}
	})

	return initErr
}

// LibraryLocation returns the path the libraries were loaded from. It is
// empty until Init succeeds.
func LibraryLocation() string {
	return libraryLocation
}

// FmtLogger prints the log messages to stdout.
func FmtLogger(ctx context.Context, msg string, args ...any) {
	var sb strings.Builder
	sb.WriteString(msg)

	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&sb, " %v[%v]", args[i], args[i+1])
	}

	fmt.Println(sb.String())
}

// DiscardLogger drops every log message.
func DiscardLogger(ctx context.Context, msg string, args ...any) {}
