package config

import (
	"context"
	"fmt"
	"net"
)

// ResolveAddrs resolves a Target's host:port into the ordered address
// list a Client's connect() cursor walks, one entry per resolved IP.
// Unix-domain targets resolve to a single pseudo-address carrying the
// socket path.
func ResolveAddrs(ctx context.Context, t Target) ([]string, error) {
	if t.Unix {
		return []string{"unix:" + t.Host}, nil
	}
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, t.Host)
	if err != nil {
		return nil, fmt.Errorf("config: resolving %q: %w", t.Host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("config: no addresses found for %q", t.Host)
	}
	addrs := make([]string, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, net.JoinHostPort(ip.IP.String(), t.Port))
	}
	return addrs, nil
}

// IsNumericHost reports whether host is an IP literal, used to decide
// whether SNI should be set during the TLS handshake: SNI is set from
// the host name, and skipped when the host is a numeric literal.
func IsNumericHost(host string) bool {
	return net.ParseIP(host) != nil
}
