// Package app contains the top-level orchestration for server and client roles.
package app

import (
	"context"
	"fmt"
	"io"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/1ureka/drivetun/internal/auth"
	"github.com/1ureka/drivetun/internal/config"
	"github.com/1ureka/drivetun/internal/metrics"
	"github.com/1ureka/drivetun/internal/relay"
	"github.com/1ureka/drivetun/internal/slot"
	"github.com/1ureka/drivetun/internal/transport"
	"github.com/1ureka/drivetun/internal/tun"
	"github.com/1ureka/drivetun/internal/tunnel"
	"github.com/1ureka/drivetun/internal/util"
)

// ServerOptions overrides pieces of the server wiring. Zero values select
// the real implementations.
type ServerOptions struct {
	Prompter      auth.Prompter
	OpenInterface tunnel.InterfaceOpener
	Listener      net.Listener // used instead of binding 0.0.0.0:port
}

// RunServer orchestrates the full server lifecycle:
//  1. Open storage (authorizing with Drive when needed)
//  2. Provision the slot pool
//  3. Start the relay worker, metrics and statistics
//  4. Listen on TCP (and WebSocket when enabled)
//  5. Serve sessions until ctx is cancelled
//
// Any failure before step 5 is returned as a startup error.
func RunServer(ctx context.Context, s *config.Settings, opts ServerOptions) error {
	if err := s.Validate(config.RoleServer); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	// ── 1. Storage ─────────────────────────────────────────────────────
	store, err := openStore(ctx, s, opts.Prompter)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	// ── 2. Slot pool ───────────────────────────────────────────────────
	util.LogInfo("allocating %d slots in %s", s.FileCount, s.FolderID)
	pool, err := slot.Provision(ctx, store, s.FolderID, s.FileCount)
	if err != nil {
		return fmt.Errorf("provision slots: %w", err)
	}
	util.LogSuccess("slot pool ready: %d slots (fingerprint %08x)", pool.Len(), util.PoolFingerprint(pool.IDs()))

	// ── 3. Listeners ───────────────────────────────────────────────────
	listeners, err := serverListeners(s, opts.Listener)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// ── 4. Relay, metrics, statistics ──────────────────────────────────
	q := relay.New(relay.Config{
		Window:   s.Window(),
		Capacity: s.MaxQueuedPackets,
		Parent:   s.FolderID,
	}, store, pool)
	g.Go(func() error { return q.Run(gctx) })

	if s.Metrics.Addr != "" {
		reg := metrics.NewRegistry()
		g.Go(func() error { return metrics.Serve(gctx, s.Metrics.Addr, reg) })
	}
	util.StartStatsReporter(gctx, s.StatsEvery())

	// ── 5. Sessions ────────────────────────────────────────────────────
	open := opts.OpenInterface
	if open == nil {
		open = interfaceOpener(s.Interface)
		util.LogInfo("remember to enable IP forwarding and NAT for %s (net.ipv4.ip_forward=1, MASQUERADE)", s.Interface.Peer)
	}
	srv := tunnel.NewServer(pool, q, open, s.Interface.MTU)
	for _, ln := range listeners {
		ln := ln
		g.Go(func() error { return srv.Serve(gctx, ln) })
	}

	util.LogSuccess("server started")
	return g.Wait()
}

func serverListeners(s *config.Settings, override net.Listener) ([]net.Listener, error) {
	var listeners []net.Listener

	if override != nil {
		listeners = append(listeners, override)
	} else {
		ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", s.Port))
		if err != nil {
			return nil, fmt.Errorf("failed to listen on port %d: %w", s.Port, err)
		}
		listeners = append(listeners, ln)
	}

	if s.WebSocket.Port != 0 {
		ws, err := transport.ListenWS(fmt.Sprintf(":%d", s.WebSocket.Port), s.WebSocket.Token)
		if err != nil {
			for _, ln := range listeners {
				ln.Close()
			}
			return nil, err
		}
		util.LogInfo("WebSocket control listener on %s%s", ws.Addr(), transport.Path)
		listeners = append(listeners, ws)
	}
	return listeners, nil
}

func interfaceOpener(c config.InterfaceConfig) tunnel.InterfaceOpener {
	return func() (io.ReadWriteCloser, error) {
		return tun.Open(tun.Config{
			Name:    c.Name,
			Address: c.Address,
			Peer:    c.Peer,
			MTU:     c.MTU,
		})
	}
}
