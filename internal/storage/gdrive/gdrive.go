// Package gdrive implements the storage backend on top of the Google Drive v3
// API. Slots are plain files inside one folder; updating a slot replaces the
// file's content so its id, which the client already knows, stays valid.
package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/1ureka/drivetun/internal/storage"
)

// DefaultTimeout bounds every HTTP request to the Drive API.
const DefaultTimeout = 16 * time.Second

const (
	pageSize    = 1000
	contentType = "application/octet-stream"
)

// Store is a Google Drive backed storage.Store.
type Store struct {
	srv *drive.Service
}

// New creates a Store that authenticates every request with ts.
func New(ctx context.Context, ts oauth2.TokenSource, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := oauth2.NewClient(ctx, ts)
	client.Timeout = timeout
	return NewWithClient(ctx, client)
}

// NewWithClient creates a Store on a preconfigured HTTP client. Extra options
// (for example option.WithEndpoint) are passed through to the Drive client.
func NewWithClient(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*Store, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gdrive: failed to create Drive client: %w", err)
	}
	return &Store{srv: srv}, nil
}

// Upload implements storage.Uploader.
func (s *Store) Upload(ctx context.Context, r io.Reader, name, parent, existingID string) (storage.Object, error) {
	media := googleapi.ContentType(contentType)

	var (
		f   *drive.File
		err error
	)
	if existingID == "" {
		f, err = s.srv.Files.Create(&drive.File{Name: name, Parents: []string{parent}}).
			Media(r, media).
			SupportsAllDrives(true).
			Fields("id, name").
			Context(ctx).
			Do()
	} else {
		f, err = s.srv.Files.Update(existingID, &drive.File{Name: name}).
			Media(r, media).
			SupportsAllDrives(true).
			Fields("id, name").
			Context(ctx).
			Do()
	}
	if err != nil {
		return storage.Object{}, fmt.Errorf("gdrive: upload %q: %w", name, mapError(err))
	}
	return storage.Object{ID: f.Id, Name: f.Name}, nil
}

// ListChildren implements storage.Lister, oldest first.
func (s *Store) ListChildren(ctx context.Context, parent string) ([]storage.Object, error) {
	var out []storage.Object

	err := s.srv.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed = false", parent)).
		Fields("nextPageToken, files(id, name)").
		OrderBy("createdTime").
		PageSize(pageSize).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				out = append(out, storage.Object{ID: f.Id, Name: f.Name})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("gdrive: list folder %s: %w", parent, mapError(err))
	}
	return out, nil
}

// Download implements storage.Downloader.
func (s *Store) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := s.srv.Files.Get(id).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, fmt.Errorf("gdrive: download %s: %w", id, mapError(err))
	}
	return resp.Body, nil
}

// mapError translates a Drive 404 into storage.ErrNotFound.
func mapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, gerr.Message)
	}
	return err
}
