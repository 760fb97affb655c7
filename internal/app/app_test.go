package app

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/drivetun/internal/config"
	"github.com/1ureka/drivetun/internal/protocol"
)

const waitTimeout = 5 * time.Second

type pipeIfce struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newPipeIfce() *pipeIfce {
	return &pipeIfce{in: make(chan []byte), out: make(chan []byte, 16), closed: make(chan struct{})}
}

func (p *pipeIfce) Read(b []byte) (int, error) {
	select {
	case pkt := <-p.in:
		return copy(b, pkt), nil
	case <-p.closed:
		return 0, os.ErrClosed
	}
}

func (p *pipeIfce) Write(b []byte) (int, error) {
	select {
	case p.out <- bytes.Clone(b):
		return len(b), nil
	case <-p.closed:
		return 0, os.ErrClosed
	}
}

func (p *pipeIfce) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func opener(ch chan *pipeIfce) func() (io.ReadWriteCloser, error) {
	return func() (io.ReadWriteCloser, error) {
		p := newPipeIfce()
		ch <- p
		return p, nil
	}
}

func baseSettings(t *testing.T, backend string) *config.Settings {
	t.Helper()
	s := config.Default()
	s.Storage.Backend = backend
	s.FolderID = t.TempDir()
	s.FileCount = 3
	s.PacketDuration = 30
	s.StatsInterval = 0
	return s
}

func startServer(t *testing.T, s *config.Settings, ifces chan *pipeIfce) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunServer(ctx, s, ServerOptions{Listener: ln, OpenInterface: opener(ifces)})
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitTimeout):
			t.Error("server did not stop")
		}
	})
	return ln.Addr().String()
}

func receive(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a packet")
		return nil
	}
}

func TestRunServerHandshake(t *testing.T) {
	s := baseSettings(t, config.BackendMemory)
	addr := startServer(t, s, make(chan *pipeIfce, 4))

	conn, err := net.DialTimeout("tcp", addr, waitTimeout)
	require.NoError(t, err)
	defer conn.Close()

	ids, err := protocol.ReadSlotList(conn)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestRunServerRejectsInvalidSettings(t *testing.T) {
	s := baseSettings(t, config.BackendMemory)
	s.FileCount = 0
	assert.Error(t, RunServer(context.Background(), s, ServerOptions{}))
}

func TestServerAndClientOverSharedDirectory(t *testing.T) {
	s := baseSettings(t, config.BackendLocalFS)
	serverIfces := make(chan *pipeIfce, 4)
	addr := startServer(t, s, serverIfces)

	cs := *s
	cs.Client.ServerAddr = addr

	clientIfces := make(chan *pipeIfce, 4)
	ctx, cancel := context.WithCancel(context.Background())
	clientDone := make(chan error, 1)
	go func() {
		clientDone <- RunClient(ctx, &cs, ClientOptions{OpenInterface: opener(clientIfces)})
	}()
	defer func() {
		cancel()
		select {
		case err := <-clientDone:
			assert.NoError(t, err)
		case <-time.After(waitTimeout):
			t.Error("client did not stop")
		}
	}()

	var serverIfce, clientIfce *pipeIfce
	select {
	case serverIfce = <-serverIfces:
	case <-time.After(waitTimeout):
		t.Fatal("server interface not opened")
	}
	select {
	case clientIfce = <-clientIfces:
	case <-time.After(waitTimeout):
		t.Fatal("client interface not opened")
	}

	// Uplink rides the control connection.
	clientIfce.in <- []byte{0x45, 0x01, 0x02}
	assert.Equal(t, []byte{0x45, 0x01, 0x02}, receive(t, serverIfce.out))

	// Downlink goes through a slot file.
	serverIfce.in <- []byte{0x45, 0x0A}
	serverIfce.in <- []byte{0x45, 0x0B}
	assert.Equal(t, []byte{0x45, 0x0A}, receive(t, clientIfce.out))
	assert.Equal(t, []byte{0x45, 0x0B}, receive(t, clientIfce.out))
}
