//go:build darwin

package tun

import (
	"strconv"

	"github.com/songgao/water"
)

// utun devices are numbered by the kernel, so c.Name is not used.
func create(c Config) (Interface, error) {
	ifce, err := water.New(water.Config{DeviceType: water.TUN})
	if err != nil {
		return nil, err
	}
	return ifce, nil
}

func setupCommands(name string, c Config) [][]string {
	return [][]string{
		{"ifconfig", name, "inet", c.Address, c.Peer, "mtu", strconv.Itoa(c.MTU), "up"},
	}
}
