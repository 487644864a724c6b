package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const tempPrefix = ".scribe-"

// LocalVault stores notes and recordings on the local filesystem.
type LocalVault struct {
	root string
}

// NewLocalVault creates the vault root if needed.
func NewLocalVault(root string) (*LocalVault, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir vault %s: %w", root, err)
	}
	return &LocalVault{root: root}, nil
}

// Resolve maps a vault path to a filesystem path. Paths with ".."
// segments are rejected.
func (v *LocalVault) Resolve(p string) (string, error) {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("vault path %q escapes root", p)
		}
	}
	rel := strings.TrimPrefix(path.Clean("/"+p), "/")
	return filepath.Join(v.root, filepath.FromSlash(rel)), nil
}

func (v *LocalVault) FolderExists(ctx context.Context, p string) (bool, error) {
	full, err := v.Resolve(p)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (v *LocalVault) CreateFolder(ctx context.Context, p string) error {
	full, err := v.Resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", p, err)
	}
	return nil
}

func (v *LocalVault) FileExists(ctx context.Context, p string) (bool, error) {
	full, err := v.Resolve(p)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

func (v *LocalVault) CreateBinaryFile(ctx context.Context, p string, data []byte) error {
	full, err := v.Resolve(p)
	if err != nil {
		return err
	}
	tmpPath, err := v.writeTemp(full, data)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	// Link fails if the target exists, so creation stays exclusive without
	// exposing a partially written file.
	if err := os.Link(tmpPath, full); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s: %w", p, ErrExists)
		}
		return fmt.Errorf("link %s: %w", p, err)
	}
	return nil
}

func (v *LocalVault) CreateTextFile(ctx context.Context, p, content string) error {
	return v.CreateBinaryFile(ctx, p, []byte(content))
}

func (v *LocalVault) ReadTextFile(ctx context.Context, p string) (string, error) {
	full, err := v.Resolve(p)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (v *LocalVault) OverwriteTextFile(ctx context.Context, p, content string) error {
	full, err := v.Resolve(p)
	if err != nil {
		return err
	}
	tmpPath, err := v.writeTemp(full, []byte(content))
	if err != nil {
		return err
	}
	if err := os.Rename(tmpPath, full); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// ReadFile returns raw file contents.
func (v *LocalVault) ReadFile(p string) ([]byte, error) {
	full, err := v.Resolve(p)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// Walk calls fn with the vault path of every regular file, skipping
// in-flight temp files.
func (v *LocalVault) Walk(fn func(p string) error) error {
	return filepath.WalkDir(v.root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(v.root, full)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel))
	})
}

func (v *LocalVault) Type() string { return "local" }

// Root returns the vault directory.
func (v *LocalVault) Root() string { return v.root }

func (v *LocalVault) writeTemp(full string, data []byte) (string, error) {
	dir := filepath.Dir(full)
	tmp, err := os.CreateTemp(dir, tempPrefix+"*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close: %w", err)
	}
	return tmpPath, nil
}
