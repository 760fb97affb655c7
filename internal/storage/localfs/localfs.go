// Package localfs stores slots as files in a directory. Pointing both ends at
// a shared or synchronized folder gives a tunnel that needs no cloud account.
//
// The parent argument of every operation is a directory path; object ids are
// generated file names inside it.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/1ureka/drivetun/internal/storage"
)

const (
	slotSuffix = ".slot"
	tmpPrefix  = ".tmp-"
)

// Store is a directory-backed storage.Store.
type Store struct {
	// root is the directory Download resolves ids against.
	root string
}

// New returns a Store whose Download resolves ids inside root.
func New(root string) *Store {
	return &Store{root: root}
}

// Upload implements storage.Uploader. Content is written to a temporary file
// and renamed into place so readers never observe a partial slot.
func (s *Store) Upload(ctx context.Context, r io.Reader, name, parent, existingID string) (storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return storage.Object{}, err
	}

	id := existingID
	if id == "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return storage.Object{}, fmt.Errorf("localfs: create %s: %w", parent, err)
		}
		id = uuid.NewString()
	} else if !validID(id) {
		return storage.Object{}, fmt.Errorf("localfs: invalid id %q", id)
	} else if _, err := os.Stat(filepath.Join(parent, id+slotSuffix)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.Object{}, fmt.Errorf("localfs: update %s: %w", id, storage.ErrNotFound)
		}
		return storage.Object{}, fmt.Errorf("localfs: stat %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(parent, tmpPrefix+"*")
	if err != nil {
		return storage.Object{}, fmt.Errorf("localfs: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return storage.Object{}, fmt.Errorf("localfs: write %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return storage.Object{}, fmt.Errorf("localfs: close %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(parent, id+slotSuffix)); err != nil {
		return storage.Object{}, fmt.Errorf("localfs: commit %s: %w", id, err)
	}

	return storage.Object{ID: id, Name: name}, nil
}

// ListChildren implements storage.Lister. Objects are sorted by id so the
// order is stable across restarts.
func (s *Store) ListChildren(ctx context.Context, parent string) ([]storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(parent)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("localfs: list %s: %w", parent, err)
	}

	var out []storage.Object
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, slotSuffix) {
			continue
		}
		id := strings.TrimSuffix(name, slotSuffix)
		out = append(out, storage.Object{ID: id, Name: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Download implements storage.Downloader.
func (s *Store) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, fmt.Errorf("localfs: invalid id %q", id)
	}

	f, err := os.Open(filepath.Join(s.root, id+slotSuffix))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("localfs: download %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("localfs: open %s: %w", id, err)
	}
	return f, nil
}

// validID rejects ids that would escape the directory.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}
