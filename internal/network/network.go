// Package network watches host connectivity. It tells the poll loop when
// to start and stop the web server and retries the uplink while offline.
package network

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	psnet "github.com/shirou/gopsutil/v4/net"
)

// Probe reports whether the host has usable connectivity.
type Probe interface {
	Connected() (bool, error)
}

// Reconnector tries to bring the uplink back.
type Reconnector interface {
	Reconnect() error
}

// InterfaceProbe is connected when any non-loopback interface is up and
// has an address.
type InterfaceProbe struct{}

// Connected scans the host interfaces.
func (InterfaceProbe) Connected() (bool, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return false, fmt.Errorf("list interfaces: %w", err)
	}
	return anyUp(ifaces), nil
}

func anyUp(ifaces psnet.InterfaceStatList) bool {
	for _, iface := range ifaces {
		if hasFlag(iface.Flags, "loopback") || !hasFlag(iface.Flags, "up") {
			continue
		}
		if len(iface.Addrs) > 0 {
			return true
		}
	}
	return false
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// CommandReconnector runs an external command, such as
// "nmcli device connect wlan0".
type CommandReconnector struct {
	Name    string
	Args    []string
	Timeout time.Duration
}

// Reconnect runs the command and waits for it.
func (c CommandReconnector) Reconnect() error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, c.Name, c.Args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", c.Name, err, out)
	}
	return nil
}
