package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewManagerCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "downloads")

	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("Expected output directory to exist, got %v", err)
	}
	if m.OutputDir() != dir {
		t.Errorf("Unexpected output dir %q", m.OutputDir())
	}
}

func TestWriteAtomic(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	path, err := m.Write("photo.jpg", []byte("image bytes"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if path != m.Path("photo.jpg") {
		t.Errorf("Returned path %q does not match Path()", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read back file: %v", err)
	}
	if string(data) != "image bytes" {
		t.Errorf("Unexpected content %q", data)
	}

	// No temp file left behind.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("Expected temp file to be gone, got %v", err)
	}
}

func TestWriteOverwrites(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	if _, err := m.Write("file.jpg", []byte("first")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	path, err := m.Write("file.jpg", []byte("second"))
	if err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "second" {
		t.Errorf("Expected overwrite, got %q", data)
	}
}
