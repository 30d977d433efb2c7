package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const tempDirName = ".tmp"

// FS stores payloads as files under a single root directory. Writes go
// through a temp file in root/.tmp and are linked into place, so a
// payload is either fully present or absent, and an occupied name is
// never overwritten.
type FS struct {
	root string
}

// NewFS creates the root and temp directories if needed.
func NewFS(root string) (*FS, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, tempDirName), 0o755); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}
	return &FS{root: root}, nil
}

// validName rejects names that could escape the root. Names are generated
// internally (handle plus extension) so anything else indicates a bug.
func validName(name string) error {
	if name == "" {
		return fmt.Errorf("empty blob name")
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid blob name %q", name)
	}
	return nil
}

func (fs *FS) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Join(fs.root, tempDirName), "put-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close blob: %w", err)
	}

	// Link instead of rename: link fails with EEXIST when the name is
	// taken, where rename would silently replace the occupant.
	if err := os.Link(tmpPath, filepath.Join(fs.root, name)); err != nil {
		_ = os.Remove(tmpPath)
		if os.IsExist(err) {
			return "", ErrExists
		}
		return "", fmt.Errorf("commit blob: %w", err)
	}
	_ = os.Remove(tmpPath)
	return name, nil
}

func (fs *FS) Get(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := validName(location); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(fs.root, location))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (fs *FS) Exists(ctx context.Context, location string) (bool, error) {
	if err := validName(location); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(fs.root, location))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat blob: %w", err)
	}
	return true, nil
}

func (fs *FS) Remove(ctx context.Context, location string) error {
	if err := validName(location); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(fs.root, location))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}
