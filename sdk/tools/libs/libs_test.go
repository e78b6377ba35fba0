package libs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func Test_InstalledVersion(t *testing.T) {
	lib, err := New(t.TempDir(), "cpu", false)
	if err != nil {
		t.Fatalf("new: %s", err)
	}

	if _, err := lib.InstalledVersion(); err == nil {
		t.Fatal("expected an error without a version file")
	}

	if err := lib.createVersionFile("b7000"); err != nil {
		t.Fatalf("create version file: %s", err)
	}

	tag, err := lib.InstalledVersion()
	if err != nil {
		t.Fatalf("installed version: %s", err)
	}

	if tag.Version != "b7000" {
		t.Fatalf("expected version b7000, got %s", tag.Version)
	}
}

func Test_InstallModelExisting(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tiny.gguf")

	if err := os.WriteFile(file, []byte("GGUF"), 0o644); err != nil {
		t.Fatalf("write: %s", err)
	}

	got, err := InstallModel(context.Background(), "https://example.com/models/tiny.gguf", dir, nil)
	if err != nil {
		t.Fatalf("install model: %s", err)
	}

	if got != file {
		t.Fatalf("expected %s, got %s", file, got)
	}

	if _, err := InstallModel(context.Background(), "tiny.gguf", dir, nil); err == nil {
		t.Fatal("expected an error for a relative url")
	}
}
