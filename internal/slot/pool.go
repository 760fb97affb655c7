// Package slot manages the ordered set of remote storage objects the downlink
// rotates through.
package slot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/1ureka/drivetun/internal/protocol"
)

// Pool is the fixed, ordered list of slot object ids. Index i on the wire
// always refers to IDs()[i]. A Pool is immutable after creation.
type Pool struct {
	ids []string
}

// NewPool validates ids and returns a Pool over a private copy of them.
func NewPool(ids []string) (*Pool, error) {
	if len(ids) == 0 {
		return nil, errors.New("slot: pool must contain at least one slot")
	}
	if len(ids) > protocol.MaxSlots {
		return nil, fmt.Errorf("slot: pool of %d slots exceeds %d", len(ids), protocol.MaxSlots)
	}
	for i, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("slot: empty id at index %d", i)
		}
		if strings.Contains(id, protocol.SlotListSeparator) {
			return nil, fmt.Errorf("slot: id at index %d contains a newline", i)
		}
	}
	return &Pool{ids: append([]string(nil), ids...)}, nil
}

// Len returns the number of slots.
func (p *Pool) Len() int { return len(p.ids) }

// ID returns the object id of slot i.
func (p *Pool) ID(i int) string { return p.ids[i] }

// IDs returns a copy of the ordered id list, as sent in the handshake.
func (p *Pool) IDs() []string { return append([]string(nil), p.ids...) }

// NewCursor returns a cursor positioned at start mod Len.
func (p *Pool) NewCursor(start int) *Cursor {
	n := len(p.ids)
	return &Cursor{n: n, i: ((start % n) + n) % n}
}

// Cursor walks the pool round-robin. It is not safe for concurrent use; the
// relay worker owns the only one.
type Cursor struct {
	n int
	i int
}

// Current returns the index of the next slot to write.
func (c *Cursor) Current() int { return c.i }

// Advance moves to (i+1) mod n and returns the new index.
func (c *Cursor) Advance() int {
	c.i = (c.i + 1) % c.n
	return c.i
}
