package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DiskStore writes images under <root>/UploadDangerReportImages.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the image directory below root if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	dir := filepath.Join(root, ImageDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Dir is the directory images are written to.
func (s *DiskStore) Dir() string { return s.dir }

// Store writes r to name. A partially written file is removed.
func (s *DiskStore) Store(ctx context.Context, name string, r io.Reader) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create image %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write image %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close image %s: %w", name, err)
	}
	return nil
}

// Delete removes name. Deleting a missing image is not an error.
func (s *DiskStore) Delete(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete image %s: %w", name, err)
	}
	return nil
}
