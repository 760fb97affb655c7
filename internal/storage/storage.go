// Package storage defines the remote object store the tunnel relays its
// downlink through. Backends live in sub-packages.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when an object id does not exist.
var ErrNotFound = errors.New("storage: object not found")

// Object identifies one stored object.
type Object struct {
	ID   string
	Name string
}

// Uploader writes object content. When existingID is empty a new object named
// name is created under parent; otherwise the content of existingID is
// replaced in place and the object keeps its id.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, name, parent, existingID string) (Object, error)
}

// Lister enumerates the objects under a parent in a stable order.
type Lister interface {
	ListChildren(ctx context.Context, parent string) ([]Object, error)
}

// Downloader opens the current content of an object.
type Downloader interface {
	Download(ctx context.Context, id string) (io.ReadCloser, error)
}

// Store is a backend supporting every operation.
type Store interface {
	Uploader
	Lister
	Downloader
}
