// Package relay batches downlink packets and publishes each batch into the
// next storage slot.
//
// A single worker goroutine owns the slot cursor and the uploader. Packets
// arrive through a bounded channel; every window the worker frames whatever
// arrived into one batch, overwrites the slot under the cursor and reports
// the slot index on a second bounded channel. Both channels block when full,
// which is the only flow control between the interface and the storage.
package relay

import (
	"bytes"
	"context"
	"strconv"
	"time"

	"github.com/1ureka/drivetun/internal/protocol"
	"github.com/1ureka/drivetun/internal/slot"
	"github.com/1ureka/drivetun/internal/storage"
	"github.com/1ureka/drivetun/internal/util"
)

const (
	DefaultWindow   = 100 * time.Millisecond
	DefaultCapacity = 1024
)

// Config tunes a Queue.
type Config struct {
	Window   time.Duration // batching window, anchored at the start of each batch
	Capacity int           // bound of both the packet and the notification channel
	Parent   string        // storage parent the slots live under
}

// Completion reports one successfully published batch.
type Completion struct {
	Slot     uint16 // index into the slot pool
	ObjectID string
	Packets  int
	Bytes    int // serialized batch size
}

// Queue is the downlink relay.
type Queue struct {
	cfg      Config
	uploader storage.Uploader
	pool     *slot.Pool

	inbox  chan []byte
	notify chan Completion
}

// New creates a Queue. Call Run to start the worker.
func New(cfg Config, uploader storage.Uploader, pool *slot.Pool) *Queue {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	return &Queue{
		cfg:      cfg,
		uploader: uploader,
		pool:     pool,
		inbox:    make(chan []byte, cfg.Capacity),
		notify:   make(chan Completion, cfg.Capacity),
	}
}

// Enqueue hands pkt to the worker, blocking while the queue is full. The
// queue keeps pkt, so the caller must not reuse its backing array. It only
// fails when ctx ends first.
func (q *Queue) Enqueue(ctx context.Context, pkt []byte) error {
	select {
	case q.inbox <- pkt:
		util.Stats.AddRelayed(len(pkt))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notifications delivers completions in upload order.
func (q *Queue) Notifications() <-chan Completion { return q.notify }

// Next waits for the next completion.
func (q *Queue) Next(ctx context.Context) (Completion, error) {
	select {
	case c := <-q.notify:
		return c, nil
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	}
}

// Run is the worker loop. It returns nil once ctx is cancelled; a batch still
// being collected at that point is discarded.
func (q *Queue) Run(ctx context.Context) error {
	cursor := q.pool.NewCursor(0)
	util.LogDebug("relay worker started (window=%s, capacity=%d, slots=%d)", q.cfg.Window, q.cfg.Capacity, q.pool.Len())

	for {
		batch, ok := q.collect(ctx)
		if !ok {
			util.LogDebug("relay worker stopped")
			return nil
		}
		if len(batch) == 0 {
			continue
		}
		q.publish(ctx, cursor, batch)
	}
}

// collect receives packets until the window that started on entry closes.
// The timer is armed once, so time spent receiving counts against the window.
func (q *Queue) collect(ctx context.Context) ([][]byte, bool) {
	timer := time.NewTimer(q.cfg.Window)
	defer timer.Stop()

	var batch [][]byte
	for {
		select {
		case pkt := <-q.inbox:
			batch = append(batch, pkt)
		case <-timer.C:
			return batch, true
		case <-ctx.Done():
			return nil, false
		}
	}
}

// publish uploads batch into the slot under the cursor. The cursor advances
// whether or not the upload succeeds; a failed batch is dropped.
func (q *Queue) publish(ctx context.Context, cursor *slot.Cursor, batch [][]byte) {
	idx := cursor.Current()
	defer cursor.Advance()

	data, err := protocol.EncodeBatch(batch)
	if err != nil {
		util.LogError("failed to encode batch of %d packets, dropping: %v", len(batch), err)
		util.Stats.AddUploadFailure()
		return
	}

	id := q.pool.ID(idx)
	util.LogDebug("uploading %d packets (%d bytes) to slot %d", len(batch), len(data), idx)

	obj, err := q.uploader.Upload(ctx, bytes.NewReader(data), strconv.Itoa(idx), q.cfg.Parent, id)
	if err != nil {
		if ctx.Err() == nil {
			util.LogError("failed to upload slot %d, dropping %d packets: %v", idx, len(batch), err)
		}
		util.Stats.AddUploadFailure()
		return
	}

	util.Stats.AddBatch(len(data))
	util.LogDebug("uploaded slot %d (id=%s)", idx, obj.ID)

	c := Completion{Slot: uint16(idx), ObjectID: id, Packets: len(batch), Bytes: len(data)}
	select {
	case q.notify <- c:
	case <-ctx.Done():
	}
}
