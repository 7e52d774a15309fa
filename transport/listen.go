package transport

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// Listen binds a net.Listener for the given Varlink address. Only the TCP
// and Unix (filesystem or abstract) networks support listening; exec: and
// bridge: are client-only addressing modes (a server launched via exec:
// activation discovers its listening socket through ActivationListener
// instead of parsing an address at all).
func Listen(addr string) (net.Listener, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	return ListenAddress(a)
}

// ListenAddress is the Address-typed counterpart of Listen.
func ListenAddress(a *Address) (net.Listener, error) {
	switch a.Network {
	case NetworkTCP:
		ln, err := net.Listen("tcp", net.JoinHostPort(a.Host, a.Port))
		if err != nil {
			return nil, fmt.Errorf("varlink: listen %s: %w", a, err)
		}
		return ln, nil

	case NetworkUnix:
		_ = os.Remove(a.Path)
		ln, err := net.Listen("unix", a.Path)
		if err != nil {
			return nil, fmt.Errorf("varlink: listen %s: %w", a, err)
		}
		if a.Mode != 0 {
			if err := os.Chmod(a.Path, os.FileMode(a.Mode)); err != nil {
				ln.Close()
				return nil, fmt.Errorf("varlink: chmod %s: %w", a.Path, err)
			}
		}
		return ln, nil

	case NetworkUnixAbstract:
		ln, err := net.Listen("unix", a.Path)
		if err != nil {
			return nil, fmt.Errorf("varlink: listen %s: %w", a, err)
		}
		return ln, nil

	default:
		return nil, fmt.Errorf("varlink: listen: unsupported network %s", a.Network)
	}
}

// ActivationListener returns a net.Listener built from a systemd-style
// socket-activation handoff: LISTEN_PID must match the current process,
// LISTEN_FDS must be exactly 1, and the inherited descriptor at index 3 is
// the listening socket. It returns (nil, nil) when the environment does not
// describe an activation handoff, so callers can fall back to an ordinary
// Listen call.
func ActivationListener() (net.Listener, error) {
	pidStr := os.Getenv("LISTEN_PID")
	if pidStr == "" {
		return nil, nil
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid != os.Getpid() {
		return nil, nil
	}

	nfds, err := strconv.Atoi(os.Getenv("LISTEN_FDS"))
	if err != nil || nfds != 1 {
		return nil, nil
	}

	const activationFD = 3
	file := os.NewFile(uintptr(activationFD), "LISTEN_FD_3")
	ln, err := net.FileListener(file)
	file.Close()
	if err != nil {
		return nil, fmt.Errorf("varlink: activation listener: %w", err)
	}
	return ln, nil
}
