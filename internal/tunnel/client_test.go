package tunnel

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/drivetun/internal/protocol"
	"github.com/1ureka/drivetun/internal/slot"
	"github.com/1ureka/drivetun/internal/storage/memstore"
)

type clientHarness struct {
	server net.Conn // the server's end of the control connection
	st     *memstore.Store
	pool   *slot.Pool
	ifce   *fakeIfce
	done   chan error
}

func startClient(t *testing.T) *clientHarness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st := memstore.New()
	pool, err := slot.Provision(ctx, st, "folder", 2)
	require.NoError(t, err)

	server, conn := net.Pipe()
	t.Cleanup(func() { server.Close() })

	h := &clientHarness{server: server, st: st, pool: pool, ifce: newFakeIfce(), done: make(chan error, 1)}
	open := func() (io.ReadWriteCloser, error) { return h.ifce, nil }

	c := NewClient(conn, st, open, protocol.MTU)
	go func() { h.done <- c.Run(ctx) }()

	require.NoError(t, protocol.WriteSlotList(server, pool.IDs()))
	return h
}

func (h *clientHarness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("client did not stop")
		return nil
	}
}

func TestClientReplaysNotifiedSlot(t *testing.T) {
	h := startClient(t)

	batch, err := protocol.EncodeBatch([][]byte{{0x45, 1}, {0x45, 2, 2}})
	require.NoError(t, err)
	_, err = h.st.Upload(context.Background(), strings.NewReader(string(batch)), "1", "folder", h.pool.ID(1))
	require.NoError(t, err)

	require.NoError(t, protocol.WriteSlotIndex(h.server, 1))

	for _, want := range [][]byte{{0x45, 1}, {0x45, 2, 2}} {
		select {
		case got := <-h.ifce.out:
			assert.Equal(t, want, got)
		case <-time.After(waitTimeout):
			t.Fatal("packet not replayed")
		}
	}
	assert.Equal(t, int64(1), h.st.Downloads())
}

func TestClientFramesInterfacePackets(t *testing.T) {
	h := startClient(t)

	h.ifce.in <- []byte{0x45, 7, 7}
	got, err := protocol.ReadFrame(h.server, protocol.MTU)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x45, 7, 7}, got)
}

func TestClientRejectsOutOfRangeIndex(t *testing.T) {
	h := startClient(t)

	require.NoError(t, protocol.WriteSlotIndex(h.server, 2))

	err := h.wait(t)
	pe, ok := protocol.IsProtocolError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, protocol.ErrCodeBadSlotIndex, pe.Code)
	assert.True(t, h.ifce.isClosed())
}

func TestClientEndsWhenServerCloses(t *testing.T) {
	h := startClient(t)

	h.server.Close()
	assert.NoError(t, h.wait(t))
	assert.True(t, h.ifce.isClosed())
}
