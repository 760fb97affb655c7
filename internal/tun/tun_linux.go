//go:build linux

package tun

import (
	"strconv"

	"github.com/songgao/water"
)

func create(c Config) (Interface, error) {
	cfg := water.Config{DeviceType: water.TUN}
	cfg.Name = c.Name
	ifce, err := water.New(cfg)
	if err != nil {
		return nil, err
	}
	return ifce, nil
}

func setupCommands(name string, c Config) [][]string {
	return [][]string{
		{"ip", "addr", "add", c.Address, "peer", c.Peer, "dev", name},
		{"ip", "link", "set", "dev", name, "mtu", strconv.Itoa(c.MTU), "up"},
	}
}
