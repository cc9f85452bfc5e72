package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// DiskStore saves objects to disk under a base directory. Download links point at
// publicBase, which the server maps back onto the same directory.
type DiskStore struct {
	basePath   string
	publicBase string
}

// NewDiskStore creates the base directory if missing.
func NewDiskStore(basePath, publicBase string) (*DiskStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	publicBase = strings.TrimRight(strings.TrimSpace(publicBase), "/")
	if publicBase == "" {
		publicBase = "/files"
	}
	return &DiskStore{basePath: basePath, publicBase: publicBase}, nil
}

// Root is the directory objects are written under.
func (d *DiskStore) Root() string {
	return d.basePath
}

// Put writes r to the file for key, replacing any previous content.
func (d *DiskStore) Put(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	target, err := d.resolve(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		_ = os.Remove(target)
		return fmt.Errorf("write file: %w", err)
	}
	return out.Close()
}

// PresignGet returns the public path for key. Disk links do not expire.
func (d *DiskStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	target, err := d.resolve(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrObjectNotFound
		}
		return "", err
	}
	parts := strings.Split(cleanKey(key), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return d.publicBase + "/" + strings.Join(parts, "/"), nil
}

// Delete removes the file for key. Missing files are not an error.
func (d *DiskStore) Delete(_ context.Context, key string) error {
	target, err := d.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (d *DiskStore) resolve(key string) (string, error) {
	cleaned := cleanKey(key)
	if cleaned == "" || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(d.basePath, filepath.FromSlash(cleaned)), nil
}

func cleanKey(key string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.TrimSpace(key)), "/")
}
