// Package downloader provide support for downloading files.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	getter "github.com/hashicorp/go-getter/v2"
)

// SizeInterval are pre-calculated size interval values.
const (
	SizeIntervalMIB    = 1024 * 1024
	SizeIntervalMIB10  = SizeIntervalMIB * 10
	SizeIntervalMIB100 = SizeIntervalMIB * 100
)

// ProgressFunc provides feedback on the progress of a file download.
type ProgressFunc func(src string, currentSize int64, totalSize int64, mibPerSec float64, complete bool)

// Download pulls down a single file from src into the file dest. It reports
// false when nothing had to be transferred. A Hugging Face token found in
// LLAMACTX_HF_TOKEN or HF_TOKEN is sent as a bearer token so gated models
// can be pulled.
func Download(ctx context.Context, src string, dest string, progress ProgressFunc, sizeInterval int64) (bool, error) {
	if !hasNetwork() {
		return false, errors.New("download: no network available")
	}

	pr := NewProgressReader(progress, sizeInterval)

	req := getter.Request{
		Src:              src,
		Dst:              dest,
		GetMode:          getter.ModeFile,
		ProgressListener: pr,
	}

	if _, err := newClient(hfToken()).Get(ctx, &req); err != nil {
		return false, fmt.Errorf("download: failed to download %s: %w", src, err)
	}

	if pr.currentSize == 0 {
		return false, nil
	}

	return true, nil
}

// =============================================================================

// ProgressReader tracks the bytes read from a download stream.
type ProgressReader struct {
	src          string
	currentSize  int64
	totalSize    int64
	lastReported int64
	startTime    time.Time
	reader       io.ReadCloser
	progress     ProgressFunc
	sizeInterval int64
}

// NewProgressReader constructs a progress reader for use. A nil progress
// function only counts bytes.
func NewProgressReader(progress ProgressFunc, sizeInterval int64) *ProgressReader {
	if sizeInterval <= 0 {
		sizeInterval = SizeIntervalMIB10
	}

	return &ProgressReader{
		progress:     progress,
		sizeInterval: sizeInterval,
	}
}

// TrackProgress is called once at the beginning to setup the download.
func (pr *ProgressReader) TrackProgress(src string, currentSize, totalSize int64, stream io.ReadCloser) io.ReadCloser {
	pr.src = src
	pr.currentSize = currentSize
	pr.totalSize = totalSize
	pr.startTime = time.Now()
	pr.reader = stream

	return pr
}

// Read performs a partial read of the download and reports progress every
// sizeInterval bytes.
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.currentSize += int64(n)

	if pr.progress != nil && pr.currentSize-pr.lastReported >= pr.sizeInterval {
		pr.lastReported = pr.currentSize
		pr.progress(pr.src, pr.currentSize, pr.totalSize, pr.mibPerSec(), false)
	}

	return n, err
}

// Close closes the reader once the download is complete.
func (pr *ProgressReader) Close() error {
	if pr.progress != nil {
		pr.progress(pr.src, pr.currentSize, pr.totalSize, pr.mibPerSec(), true)
	}

	return pr.reader.Close()
}

func (pr *ProgressReader) mibPerSec() float64 {
	elapsed := time.Since(pr.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}

	return float64(pr.currentSize) / SizeIntervalMIB / elapsed
}

// =============================================================================

func hfToken() string {
	if token := os.Getenv("LLAMACTX_HF_TOKEN"); token != "" {
		return token
	}

	return os.Getenv("HF_TOKEN")
}

// newClient returns the default client when there is no token. Otherwise
// http downloads carry the token in the Authorization header.
func newClient(token string) *getter.Client {
	if token == "" {
		return getter.DefaultClient
	}

	httpGetter := &getter.HttpGetter{
		Netrc:                 true,
		XTerraformGetDisabled: true,
		HeadFirstTimeout:      10 * time.Second,
		ReadTimeout:           30 * time.Second,
		Header: http.Header{
			"Authorization": {"Bearer " + token},
		},
	}

	return &getter.Client{
		Getters: []getter.Getter{httpGetter},
	}
}

func hasNetwork() bool {
	conn, err := net.DialTimeout("tcp", "8.8.8.8:53", 3*time.Second)
	if err != nil {
		return false
	}

	conn.Close()

	return true
}
