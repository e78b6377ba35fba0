package downloader

import (
	"io"
	"strings"
	"testing"

	getter "github.com/hashicorp/go-getter/v2"
)

func Test_ProgressReader(t *testing.T) {
	type report struct {
		current  int64
		complete bool
	}

	var reports []report
	progress := func(src string, currentSize int64, totalSize int64, mibPerSec float64, complete bool) {
		reports = append(reports, report{current: currentSize, complete: complete})
	}

	pr := NewProgressReader(progress, 4)

	body := pr.TrackProgress("model.gguf", 0, 10, io.NopCloser(strings.NewReader("0123456789")))

	buf := make([]byte, 3)
	for {
		if _, err := body.Read(buf); err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("read: %s", err)
		}
	}

	if err := body.Close(); err != nil {
		t.Fatalf("close: %s", err)
	}

	// Reads of 3 bytes cross the 4 byte interval at 6 and 10, then Close
	// reports completion.
	exp := []report{{6, false}, {10, false}, {10, true}}

	if len(reports) != len(exp) {
		t.Fatalf("expected %d reports, got %d: %v", len(exp), len(reports), reports)
	}

	for i := range exp {
		if reports[i] != exp[i] {
			t.Errorf("report %d: got %+v, exp %+v", i, reports[i], exp[i])
		}
	}
}

func Test_ProgressReaderNoFunc(t *testing.T) {
	pr := NewProgressReader(nil, 0)

	body := pr.TrackProgress("model.gguf", 0, 5, io.NopCloser(strings.NewReader("01234")))

	if _, err := io.Copy(io.Discard, body); err != nil {
		t.Fatalf("copy: %s", err)
	}

	if err := body.Close(); err != nil {
		t.Fatalf("close: %s", err)
	}

	if pr.currentSize != 5 {
		t.Fatalf("expected 5 bytes counted, got %d", pr.currentSize)
	}
}

func Test_NewClientToken(t *testing.T) {
	t.Setenv("LLAMACTX_HF_TOKEN", "")
	t.Setenv("HF_TOKEN", "")

	if c := newClient(hfToken()); c != getter.DefaultClient {
		t.Fatal("expected the default client without a token")
	}

	t.Setenv("HF_TOKEN", "hf_fallback")

	tests := []struct {
		name  string
		token string
		exp   string
	}{
		{"fallback", "", "Bearer hf_fallback"},
		{"llamactx", "hf_primary", "Bearer hf_primary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LLAMACTX_HF_TOKEN", tt.token)

			c := newClient(hfToken())
			if len(c.Getters) != 1 {
				t.Fatalf("expected 1 getter, got %d", len(c.Getters))
			}

			g, ok := c.Getters[0].(*getter.HttpGetter)
			if !ok {
				t.Fatalf("expected an http getter, got %T", c.Getters[0])
			}

			if got := g.Header.Get("Authorization"); got != tt.exp {
				t.Fatalf("expected %q, got %q", tt.exp, got)
			}
		})
	}
}
