package transport

import (
	"context"
	"fmt"
	"net"
)

// Dial resolves addr and opens a client-side connection to it.
func Dial(ctx context.Context, addr string) (Stream, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	return DialAddress(ctx, a)
}

// DialAddress opens a client-side connection to an already-parsed Address.
func DialAddress(ctx context.Context, a *Address) (Stream, error) {
	var d net.Dialer

	switch a.Network {
	case NetworkTCP:
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(a.Host, a.Port))
		if err != nil {
			return nil, fmt.Errorf("varlink: dial %s: %w", a, err)
		}
		return newNetStream(conn), nil

	case NetworkUnix, NetworkUnixAbstract:
		conn, err := d.DialContext(ctx, "unix", a.Path)
		if err != nil {
			return nil, fmt.Errorf("varlink: dial %s: %w", a, err)
		}
		return newNetStream(conn), nil

	case NetworkExec:
		return dialExec(ctx, a.Command)

	case NetworkBridge:
		return dialBridge(ctx, a.Command)

	default:
		return nil, fmt.Errorf("varlink: dial: unsupported network %s", a.Network)
	}
}
