//go:build !linux && !darwin

package tun

import (
	"fmt"
	"runtime"
)

func create(Config) (Interface, error) {
	return nil, fmt.Errorf("virtual interfaces are not supported on %s", runtime.GOOS)
}

func setupCommands(string, Config) [][]string { return nil }
