// Command macaddr prints the hardware address of every local interface once
// a second, for filling in peer addresses in node configs.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"time"

	"robot-link/internal/logcfg"
	"robot-link/internal/peer"

	logs "github.com/danmuck/smplog"
)

func main() {
	logs.Configure(logcfg.Load(""))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		printAddresses()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func printAddresses() {
	ifaces, err := net.Interfaces()
	if err != nil {
		logs.Errorf(err, "listing interfaces")
		return
	}
	for _, iface := range ifaces {
		if len(iface.HardwareAddr) != peer.AddressLen {
			continue
		}
		var addr peer.Address
		copy(addr[:], iface.HardwareAddr)
		logs.Infof("MAC Address:  %s (%s)", addr, iface.Name)
	}
}
