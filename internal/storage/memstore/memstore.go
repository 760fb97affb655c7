// Package memstore is an in-process storage backend. It backs dry runs where
// no remote account is available and the tests of every package above it.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/1ureka/drivetun/internal/storage"
)

type object struct {
	name   string
	parent string
	data   []byte
}

// Store keeps objects in memory. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*object
	order   []string // creation order

	uploads   atomic.Int64
	downloads atomic.Int64
}

// New creates an empty Store.
func New() *Store {
	return &Store{objects: make(map[string]*object)}
}

// Upload implements storage.Uploader.
func (s *Store) Upload(ctx context.Context, r io.Reader, name, parent, existingID string) (storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return storage.Object{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.Object{}, fmt.Errorf("memstore: read upload body: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads.Add(1)

	if existingID != "" {
		obj, ok := s.objects[existingID]
		if !ok {
			return storage.Object{}, fmt.Errorf("memstore: update %s: %w", existingID, storage.ErrNotFound)
		}
		obj.name = name
		obj.data = data
		return storage.Object{ID: existingID, Name: name}, nil
	}

	id := uuid.NewString()
	s.objects[id] = &object{name: name, parent: parent, data: data}
	s.order = append(s.order, id)
	return storage.Object{ID: id, Name: name}, nil
}

// ListChildren implements storage.Lister, in creation order.
func (s *Store) ListChildren(ctx context.Context, parent string) ([]storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.Object
	for _, id := range s.order {
		if obj := s.objects[id]; obj.parent == parent {
			out = append(out, storage.Object{ID: id, Name: obj.name})
		}
	}
	return out, nil
}

// Download implements storage.Downloader.
func (s *Store) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, ok := s.Content(id)
	if !ok {
		return nil, fmt.Errorf("memstore: download %s: %w", id, storage.ErrNotFound)
	}
	s.downloads.Add(1)
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Content returns a copy of the object's current content.
func (s *Store) Content(id string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[id]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// Uploads returns how many uploads (creates and updates) were performed.
func (s *Store) Uploads() int64 { return s.uploads.Load() }

// Downloads returns how many downloads were served.
func (s *Store) Downloads() int64 { return s.downloads.Load() }
