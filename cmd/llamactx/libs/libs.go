// Package libs provides the libs command code.
package libs

import (
	"context"
	"fmt"
	"time"

	"github.com/ardanlabs/llamactx/sdk/llamactx"
	"github.com/ardanlabs/llamactx/sdk/tools/libs"
)

// Run installs or upgrades the llama.cpp libraries and checks that they load.
func Run(processor string, allowUpgrade bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	lib, err := libs.New("", processor, allowUpgrade)
	if err != nil {
		return fmt.Errorf("libs: %w", err)
	}

	tag, err := lib.Install(ctx, llamactx.FmtLogger)
	if err != nil {
		return fmt.Errorf("libs: unable to install llama.cpp: %w", err)
	}

	if err := llamactx.Init(llamactx.WithLibPath(lib.Path())); err != nil {
		return fmt.Errorf("libs: installation invalid: %w", err)
	}

	fmt.Printf("llama.cpp %s installed at %s\n", tag.Version, lib.Path())

	return nil
}
