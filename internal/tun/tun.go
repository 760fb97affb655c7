// Package tun creates and addresses the point-to-point virtual interface the
// tunnel reads packets from and writes packets to.
package tun

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os/exec"

	"github.com/1ureka/drivetun/internal/util"
)

// Config describes the interface to create.
type Config struct {
	Name    string // requested device name; platforms that assign names ignore it
	Address string // local tunnel address
	Peer    string // remote tunnel address
	MTU     int
}

// Interface is an open virtual interface.
type Interface interface {
	io.ReadWriteCloser
	Name() string
}

// Validate checks the addresses and MTU.
func (c Config) Validate() error {
	local, err := netip.ParseAddr(c.Address)
	if err != nil {
		return fmt.Errorf("tun: invalid address %q: %w", c.Address, err)
	}
	peer, err := netip.ParseAddr(c.Peer)
	if err != nil {
		return fmt.Errorf("tun: invalid peer %q: %w", c.Peer, err)
	}
	if local.Is4() != peer.Is4() {
		return errors.New("tun: address and peer must be the same IP family")
	}
	if c.MTU < 68 || c.MTU > 32767 {
		return fmt.Errorf("tun: MTU %d out of range", c.MTU)
	}
	return nil
}

// Open creates the interface, assigns the point-to-point addresses, sets the
// MTU and brings it up. The device goes away when the returned Interface is
// closed.
func Open(c Config) (Interface, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	ifce, err := create(c)
	if err != nil {
		return nil, fmt.Errorf("tun: failed creating TUN device: %w", err)
	}

	for _, args := range setupCommands(ifce.Name(), c) {
		if err := runCmd(exec.Command(args[0], args[1:]...)); err != nil {
			ifce.Close()
			return nil, fmt.Errorf("tun: configure %s: %w", ifce.Name(), err)
		}
	}

	util.LogInfo("interface %s up (%s -> %s, mtu %d)", ifce.Name(), c.Address, c.Peer, c.MTU)
	return ifce, nil
}

func runCmd(cmd *exec.Cmd) error {
	buf := new(bytes.Buffer)
	cmd.Stderr = buf
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed (stderr: %s): %w", cmd.String(), bytes.TrimSpace(buf.Bytes()), err)
	}
	return nil
}
