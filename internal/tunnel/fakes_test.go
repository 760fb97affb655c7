package tunnel

import (
	"bytes"
	"context"
	"os"
	"sync"

	"github.com/1ureka/drivetun/internal/relay"
)

// fakeIfce is an in-memory virtual interface. Packets pushed into in are
// returned by Read; packets written by the code under test appear on out.
type fakeIfce struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeIfce() *fakeIfce {
	return &fakeIfce{
		in:     make(chan []byte),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeIfce) Read(b []byte) (int, error) {
	select {
	case p := <-f.in:
		return copy(b, p), nil
	case <-f.closed:
		return 0, os.ErrClosed
	}
}

func (f *fakeIfce) Write(b []byte) (int, error) {
	select {
	case <-f.closed:
		return 0, os.ErrClosed
	default:
	}
	select {
	case f.out <- bytes.Clone(b):
		return len(b), nil
	case <-f.closed:
		return 0, os.ErrClosed
	}
}

func (f *fakeIfce) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeIfce) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// fakeRelay records enqueued packets and lets tests inject completions.
type fakeRelay struct {
	enqueued chan []byte
	notify   chan relay.Completion
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		enqueued: make(chan []byte, 64),
		notify:   make(chan relay.Completion, 64),
	}
}

func (r *fakeRelay) Enqueue(ctx context.Context, pkt []byte) error {
	select {
	case r.enqueued <- pkt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *fakeRelay) Notifications() <-chan relay.Completion { return r.notify }
