package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SaveToFile writes text as UTF-8, replacing any existing file.
func SaveToFile(path, text string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// DefaultSavePath names a transcript file in dir after t.
func DefaultSavePath(dir string, t time.Time) string {
	return filepath.Join(dir, "transcript-"+t.Format("20060102-150405")+".txt")
}
