package objectionary

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/objectionary/eoprobe/internal/ctxlog"
)

// Disk keeps a copy of every object found by its origin under
// <dir>/<hash>/<path>. Objects at a fixed hash never change, so copies are
// served without revalidation. Misses are not stored.
type Disk struct {
	origin Objectionary
	dir    string
	hash   string
}

// NewDisk wraps origin with an on-disk copy rooted at dir.
func NewDisk(origin Objectionary, dir, hash string) *Disk {
	return &Disk{origin: origin, dir: dir, hash: hash}
}

func (d *Disk) file(name string) (string, error) {
	p, err := Path(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.dir, d.hash, filepath.FromSlash(p)), nil
}

// Get implements Objectionary.
func (d *Disk) Get(ctx context.Context, name string) (Object, bool, error) {
	path, err := d.file(name)
	if errors.Is(err, ErrInvalidName) {
		ctxlog.FromContext(ctx).Debug("skipping unaddressable object name", "object", name, "error", err)
		return Object{}, false, nil
	}
	if err != nil {
		return Object{}, false, err
	}

	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		return Object{Name: name, Content: data}, true, nil
	}

	obj, found, err := d.origin.Get(ctx, name)
	if err != nil || !found {
		return obj, found, err
	}

	// Best effort: a failed write only costs a download next time.
	if err := writeAtomic(path, obj.Content); err != nil {
		ctxlog.FromContext(ctx).Debug("caching object on disk failed", "object", name, "error", err)
	}
	return obj, true, nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}
