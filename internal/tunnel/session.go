// Package tunnel runs the two ends of the control connection: the server-side
// Session/Server pair that owns the virtual interface and feeds the relay, and
// the Client that turns slot notifications back into packets.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/1ureka/drivetun/internal/protocol"
	"github.com/1ureka/drivetun/internal/relay"
	"github.com/1ureka/drivetun/internal/util"
)

// errEndOfStream marks an orderly close by either side.
var errEndOfStream = errors.New("end of stream")

// Relay is the downlink a Session feeds and listens to.
type Relay interface {
	Enqueue(ctx context.Context, pkt []byte) error
	Notifications() <-chan relay.Completion
}

// Session is one client connection bound to one virtual interface.
//
// Two goroutines run for its lifetime:
//   - uplink: control socket frames → interface
//   - downlink: interface packets → relay, relay completions → socket
//
// Whichever side stops first cancels the other; the socket and the interface
// are closed on every exit path.
type Session struct {
	tag   string
	conn  net.Conn
	ifce  io.ReadWriteCloser
	relay Relay
	mtu   int

	closeOnce sync.Once
}

// NewSession binds conn and ifce. mtu bounds both the frames accepted from the
// socket and the read buffer of the interface.
func NewSession(conn net.Conn, ifce io.ReadWriteCloser, r Relay, mtu int) *Session {
	if mtu <= 0 {
		mtu = protocol.MTU
	}
	return &Session{
		tag:   uuid.NewString()[:8],
		conn:  conn,
		ifce:  ifce,
		relay: r,
		mtu:   mtu,
	}
}

// Tag is the short id used in this session's log lines.
func (s *Session) Tag() string { return s.tag }

// Run blocks until the session ends. An orderly close or cancellation of ctx
// returns nil; anything else is the reason the session broke.
func (s *Session) Run(ctx context.Context) error {
	util.Stats.AddSession()
	defer util.Stats.RemoveSession()
	defer s.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	// Closing both ends is what unblocks the pending reads.
	stop := context.AfterFunc(gctx, s.cleanup)
	defer stop()

	g.Go(func() error { return s.uplink(gctx) })
	g.Go(func() error { return s.downlink(gctx) })

	err := g.Wait()
	switch {
	case errors.Is(err, errEndOfStream):
		return nil
	case ctx.Err() != nil:
		return nil
	}
	return err
}

// cleanup releases the socket and the interface exactly once.
func (s *Session) cleanup() {
	s.closeOnce.Do(func() {
		s.conn.Close()
		s.ifce.Close()
		util.LogDebug("[%s] session resources released", s.tag)
	})
}

// uplink writes every frame received on the socket to the interface.
func (s *Session) uplink(ctx context.Context) error {
	for {
		pkt, err := protocol.ReadFrame(s.conn, s.mtu)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errEndOfStream
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if len(pkt) == 0 {
			return errEndOfStream
		}

		if _, err := s.ifce.Write(pkt); err != nil {
			return fmt.Errorf("write interface: %w", err)
		}
		util.Stats.AddUplink(len(pkt))

		if util.DebugEnabled() {
			util.LogDebug("[%s] uplink %s", s.tag, util.DescribePacket(pkt))
		}
	}
}

// downlink races interface reads against relay completions. Go's select
// picks uniformly among ready cases, so neither side starves the other.
// A cancelled session stops before taking another completion, leaving it
// queued for whichever session replaces this one.
func (s *Session) downlink(ctx context.Context) error {
	packets := make(chan []byte)
	readErr := make(chan error, 1)
	go s.readInterface(ctx, packets, readErr)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case pkt := <-packets:
			if err := s.relay.Enqueue(ctx, pkt); err != nil {
				return err
			}

		case c := <-s.relay.Notifications():
			if err := protocol.WriteSlotIndex(s.conn, c.Slot); err != nil {
				return fmt.Errorf("write slot index: %w", err)
			}
			util.LogDebug("[%s] notified slot %d (%d packets)", s.tag, c.Slot, c.Packets)

		case err := <-readErr:
			return err

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// readInterface pumps packets off the interface until it fails or ctx ends.
// Each packet gets its own buffer because the relay holds on to it.
func (s *Session) readInterface(ctx context.Context, out chan<- []byte, errc chan<- error) {
	for {
		buf := make([]byte, s.mtu)
		n, err := s.ifce.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errEndOfStream
			} else {
				err = fmt.Errorf("read interface: %w", err)
			}
			errc <- err
			return
		}
		if n == 0 {
			errc <- errEndOfStream
			return
		}

		select {
		case out <- buf[:n]:
		case <-ctx.Done():
			return
		}
	}
}
