package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

type LocalProvider struct {
	root string
}

func NewLocalProvider(root string) (*LocalProvider, error) {
	if root == "" {
		root = "documents"
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalProvider{root: abs}, nil
}

// Put writes through a temp file and rename so a reader never sees a partial document.
func (p *LocalProvider) Put(ctx context.Context, data []byte, suggestedPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	objectPath, err := cleanObjectPath(suggestedPath)
	if err != nil {
		return "", err
	}

	target := filepath.Join(p.root, filepath.FromSlash(objectPath))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", objectPath, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to write %s: %w", objectPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to close %s: %w", objectPath, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to store %s: %w", objectPath, err)
	}

	return "file://" + filepath.ToSlash(target), nil
}
