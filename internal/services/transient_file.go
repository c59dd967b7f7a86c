package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// withTransientFile writes data to a private temporary location, hands the
// path to fn and removes the copy when fn returns, whatever the outcome.
// The file keeps the upload's base name so remote display names and MIME
// sniffing see the original filename.
func withTransientFile(baseDir, name string, data []byte, fn func(path string) error) error {
	if baseDir != "" {
		if err := os.MkdirAll(baseDir, 0o755); err != nil {
			return fmt.Errorf("failed to create upload directory: %w", err)
		}
	}

	dir, err := os.MkdirTemp(baseDir, "docchat-upload-*")
	if err != nil {
		return fmt.Errorf("failed to create transient directory: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, safeFilename(name))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write transient file: %w", err)
	}

	return fn(path)
}

// safeFilename strips any directory component from a user-supplied name
func safeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" || base == ".." {
		return "upload"
	}
	return base
}
