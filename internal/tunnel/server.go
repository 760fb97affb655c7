package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/1ureka/drivetun/internal/protocol"
	"github.com/1ureka/drivetun/internal/slot"
	"github.com/1ureka/drivetun/internal/util"
)

// InterfaceOpener creates the virtual interface for a new session.
type InterfaceOpener func() (io.ReadWriteCloser, error)

// Server accepts control connections, sends each the slot list and runs a
// Session on it.
//
// There is a single virtual interface, so at most one session holds it: a
// newly accepted connection cancels the active session and waits for its
// teardown before opening the interface again.
type Server struct {
	pool  *slot.Pool
	relay Relay
	open  InterfaceOpener
	mtu   int

	mu     sync.Mutex
	active *activeSession
}

type activeSession struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewServer creates a Server.
func NewServer(pool *slot.Pool, r Relay, open InterfaceOpener, mtu int) *Server {
	return &Server{pool: pool, relay: r, open: open, mtu: mtu}
}

// Serve runs the accept loop on ln until ctx is cancelled or ln fails. It
// closes ln and waits for running sessions before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	util.LogInfo("accepting connections on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// handle owns conn from accept to close.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr()
	util.LogInfo("new connection from %s", remote)

	ids := s.pool.IDs()
	if err := protocol.WriteSlotList(conn, ids); err != nil {
		util.LogWarning("handshake with %s failed: %v", remote, err)
		conn.Close()
		return
	}
	util.LogDebug("sent %d slot ids to %s (fingerprint %08x)", len(ids), remote, util.PoolFingerprint(ids))

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	defer close(done)

	if prev := s.takeOver(&activeSession{cancel: cancel, done: done}); prev != nil {
		util.LogInfo("replacing the active session with %s", remote)
		prev.cancel()
		<-prev.done
	}
	defer s.release(done)

	// A newer connection may have taken over while we waited.
	if sctx.Err() != nil {
		conn.Close()
		return
	}

	ifce, err := s.open()
	if err != nil {
		util.LogError("failed to open interface for %s: %v", remote, err)
		conn.Close()
		return
	}

	sess := NewSession(conn, ifce, s.relay, s.mtu)
	util.LogSuccess("[%s] session started with %s", sess.Tag(), remote)

	if err := sess.Run(sctx); err != nil {
		util.LogWarning("[%s] disconnected: %v", sess.Tag(), err)
		return
	}
	util.LogWarning("[%s] disconnected", sess.Tag())
}

func (s *Server) takeOver(a *activeSession) *activeSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.active
	s.active = a
	return prev
}

func (s *Server) release(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.done == done {
		s.active = nil
	}
}
