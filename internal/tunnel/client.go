package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/1ureka/drivetun/internal/protocol"
	"github.com/1ureka/drivetun/internal/storage"
	"github.com/1ureka/drivetun/internal/util"
)

var errInterfaceWrite = errors.New("write interface")

// Client is the far end of the tunnel. It sends interface packets up the
// control connection and resolves each slot notification by downloading the
// slot and replaying its batch into the interface.
type Client struct {
	conn  net.Conn
	store storage.Downloader
	open  InterfaceOpener
	mtu   int

	ids       []string
	ifce      io.ReadWriteCloser
	closeOnce sync.Once
}

// NewClient creates a Client on an established control connection.
func NewClient(conn net.Conn, store storage.Downloader, open InterfaceOpener, mtu int) *Client {
	if mtu <= 0 {
		mtu = protocol.MTU
	}
	return &Client{conn: conn, store: store, open: open, mtu: mtu}
}

// Run reads the slot list, opens the interface and forwards traffic until
// either direction stops. The connection and the interface are closed on
// return. An orderly close by the server or cancellation returns nil.
func (c *Client) Run(ctx context.Context) error {
	defer c.cleanup()

	stopHandshake := context.AfterFunc(ctx, func() { c.conn.Close() })
	ids, err := protocol.ReadSlotList(c.conn)
	stopHandshake()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("read slot list: %w", err)
	}
	c.ids = ids
	util.LogInfo("received %d slot ids (fingerprint %08x)", len(ids), util.PoolFingerprint(ids))

	c.ifce, err = c.open()
	if err != nil {
		return fmt.Errorf("open interface: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, c.cleanup)
	defer stop()

	g.Go(func() error { return c.uplink() })
	g.Go(func() error { return c.downlink(gctx) })

	err = g.Wait()
	switch {
	case errors.Is(err, errEndOfStream):
		return nil
	case ctx.Err() != nil:
		return nil
	}
	return err
}

func (c *Client) cleanup() {
	c.closeOnce.Do(func() {
		c.conn.Close()
		if c.ifce != nil {
			c.ifce.Close()
		}
	})
}

// uplink frames every interface packet onto the control connection.
func (c *Client) uplink() error {
	buf := make([]byte, c.mtu)
	for {
		n, err := c.ifce.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errEndOfStream
			}
			return fmt.Errorf("read interface: %w", err)
		}
		if n == 0 {
			return errEndOfStream
		}

		if err := protocol.WriteFrame(c.conn, buf[:n]); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		util.Stats.AddUplink(n)
	}
}

// downlink handles slot notifications in arrival order.
func (c *Client) downlink(ctx context.Context) error {
	for {
		idx, err := protocol.ReadSlotIndex(c.conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errEndOfStream
			}
			return fmt.Errorf("read slot index: %w", err)
		}
		if int(idx) >= len(c.ids) {
			return protocol.NewError(protocol.ErrCodeBadSlotIndex, "slot index %d outside pool of %d", idx, len(c.ids))
		}

		err = c.replay(ctx, int(idx))
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, errInterfaceWrite):
			return err
		default:
			if _, ok := protocol.IsProtocolError(err); ok {
				util.LogWarning("slot %d holds a malformed batch, skipping: %v", idx, err)
				continue
			}
			util.LogError("failed to fetch slot %d, packets lost: %v", idx, err)
		}
	}
}

// replay downloads slot idx and writes its packets to the interface.
func (c *Client) replay(ctx context.Context, idx int) error {
	rc, err := c.store.Download(ctx, c.ids[idx])
	if err != nil {
		return err
	}
	defer rc.Close()

	count := 0
	err = protocol.DecodeBatch(rc, func(pkt []byte) error {
		if _, err := c.ifce.Write(pkt); err != nil {
			return fmt.Errorf("%w: %v", errInterfaceWrite, err)
		}
		util.Stats.AddRelayed(len(pkt))
		count++
		return nil
	})
	util.LogDebug("slot %d replayed %d packets", idx, count)
	return err
}
