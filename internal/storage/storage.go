// Package storage persists generated documents and returns their locations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var ErrInvalidPath = errors.New("invalid object path")

type Provider interface {
	Put(ctx context.Context, data []byte, suggestedPath string) (string, error)
}

type Config struct {
	Provider             string
	LocalRoot            string
	DriveFolderID        string
	DriveCredentialsFile string
}

func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocalProvider(cfg.LocalRoot)
	case "gdrive":
		return NewDriveProvider(ctx, cfg.DriveCredentialsFile, cfg.DriveFolderID)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
}

// cleanObjectPath normalizes a slash-separated object path and rejects paths
// that escape the store root.
func cleanObjectPath(suggested string) (string, error) {
	trimmed := strings.TrimSpace(suggested)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	slashed := strings.ReplaceAll(trimmed, "\\", "/")
	for _, segment := range strings.Split(slashed, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q escapes the store root", ErrInvalidPath, suggested)
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+slashed), "/")
	if cleaned == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, suggested)
	}
	return cleaned, nil
}
