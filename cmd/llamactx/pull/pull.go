// Package pull provides the pull command code.
package pull

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/ardanlabs/llamactx/sdk/tools/defaults"
	"github.com/ardanlabs/llamactx/sdk/tools/libs"
)

// Run downloads the model at the url in args[0] into the models directory.
func Run(args []string) error {
	modelPath := defaults.ModelsDir("")
	modelURL := args[0]

	if _, err := url.ParseRequestURI(modelURL); err != nil {
		return fmt.Errorf("pull: invalid URL: %s", modelURL)
	}

	fmt.Println("ModelURL :", modelURL)
	fmt.Println("ModelPath:", modelPath)

	f := func(src string, currentSize int64, totalSize int64, mibPerSec float64, complete bool) {
		fmt.Printf("\r\x1b[KDownloading %s... %d MiB of %d MiB (%.2f MiB/s)", src, currentSize/(1024*1024), totalSize/(1024*1024), mibPerSec)
		if complete {
			fmt.Println()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	file, err := libs.InstallModel(ctx, modelURL, modelPath, f)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	fmt.Println("Model File:", file)

	return nil
}
