// Package discovery announces the HTTP interface on the local network via mDNS.
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"sort"
	"strconv"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceType = "_http._tcp"
	Domain      = "local."
)

type server interface {
	Shutdown()
}

// register is replaced in tests.
var register = func(instance, service, domain string, port int, txt []string) (server, error) {
	return zeroconf.Register(instance, service, domain, port, txt, nil)
}

// Advertise registers instance as an HTTP service on port and keeps the
// registration until ctx is cancelled. It blocks; call it in a goroutine.
func Advertise(ctx context.Context, instance string, port int, meta map[string]string) error {
	srv, err := register(instance, ServiceType, Domain, port, txtRecords(meta))
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}
	log.Printf("mdns: advertising %q on port %d", instance, port)

	<-ctx.Done()
	srv.Shutdown()
	return nil
}

// Port returns the TCP port of a listen address such as ":80".
func Port(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("listen address %q has no usable port", addr)
	}
	return port, nil
}

// txtRecords returns key=value pairs ordered by key.
func txtRecords(meta map[string]string) []string {
	txt := make([]string, 0, len(meta))
	for k, v := range meta {
		txt = append(txt, k+"="+v)
	}
	sort.Strings(txt)
	return txt
}
