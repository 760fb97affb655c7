package app

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/1ureka/drivetun/internal/auth"
	"github.com/1ureka/drivetun/internal/config"
	"github.com/1ureka/drivetun/internal/transport"
	"github.com/1ureka/drivetun/internal/tunnel"
	"github.com/1ureka/drivetun/internal/util"
)

const dialTimeout = 10 * time.Second

// ClientOptions overrides pieces of the client wiring.
type ClientOptions struct {
	Prompter      auth.Prompter
	OpenInterface tunnel.InterfaceOpener
}

// RunClient orchestrates the client lifecycle:
//  1. Open storage for reading slots
//  2. Dial the server over TCP or WebSocket
//  3. Receive the slot list and open the interface
//  4. Forward traffic until either side closes
func RunClient(ctx context.Context, s *config.Settings, opts ClientOptions) error {
	if err := s.Validate(config.RoleClient); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	store, err := openStore(ctx, s, opts.Prompter)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	conn, err := dial(ctx, s.Client)
	if err != nil {
		return err
	}
	util.LogSuccess("connected to %s", conn.RemoteAddr())

	open := opts.OpenInterface
	if open == nil {
		open = interfaceOpener(s.Client.Interface)
	}

	util.StartStatsReporter(ctx, s.StatsEvery())

	c := tunnel.NewClient(conn, store, open, s.Client.Interface.MTU)
	if err := c.Run(ctx); err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}
	return nil
}

func dial(ctx context.Context, c config.ClientConfig) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if c.WSURL != "" {
		return transport.DialWS(ctx, c.WSURL)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.ServerAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.ServerAddr, err)
	}
	return conn, nil
}
