// Package storage handles writing downloaded assets to the output
// directory. Writes go through a temp file and an atomic rename so a
// crashed run never leaves a truncated asset under its final name.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Manager writes files into a single output directory.
type Manager struct {
	outputDir string
}

// NewManager creates the output directory if needed.
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{outputDir: outputDir}, nil
}

// Write stores data under filename and returns the final path. The content
// is written to a temp file first and renamed into place.
func (m *Manager) Write(filename string, data []byte) (string, error) {
	finalPath := filepath.Join(m.outputDir, filename)
	tempPath := finalPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return finalPath, nil
}

// Path returns the path filename would be stored at.
func (m *Manager) Path(filename string) string {
	return filepath.Join(m.outputDir, filename)
}

// OutputDir returns the output directory.
func (m *Manager) OutputDir() string {
	return m.outputDir
}
