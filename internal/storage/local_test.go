package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalProvider_Put(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	provider, err := NewLocalProvider(root)
	if err != nil {
		t.Fatalf("NewLocalProvider() error = %v", err)
	}

	location, err := provider.Put(context.Background(), []byte("%PDF-1.7"), "orders/1042/po-200001.pdf")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if !strings.HasPrefix(location, "file://") || !strings.HasSuffix(location, "orders/1042/po-200001.pdf") {
		t.Fatalf("unexpected location %q", location)
	}

	data, err := os.ReadFile(filepath.Join(root, "orders", "1042", "po-200001.pdf"))
	if err != nil {
		t.Fatalf("failed to read stored file: %v", err)
	}
	if string(data) != "%PDF-1.7" {
		t.Fatalf("stored data = %q", data)
	}

	entries, err := os.ReadDir(filepath.Join(root, "orders", "1042"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no temp files left behind, got %d entries", len(entries))
	}
}

func TestCleanObjectPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "plain", path: "orders/1/slip.pdf", want: "orders/1/slip.pdf"},
		{name: "leading slash", path: "/orders/1/slip.pdf", want: "orders/1/slip.pdf"},
		{name: "backslashes", path: `orders\1\slip.pdf`, want: "orders/1/slip.pdf"},
		{name: "double slash", path: "orders//1/slip.pdf", want: "orders/1/slip.pdf"},
		{name: "empty", path: " ", wantErr: true},
		{name: "escape", path: "../etc/passwd", wantErr: true},
		{name: "nested escape", path: "orders/../../x.pdf", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := cleanObjectPath(tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPath) {
					t.Fatalf("expected ErrInvalidPath, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("cleanObjectPath(%q) = %q, %v; want %q", tt.path, got, err, tt.want)
			}
		})
	}
}
