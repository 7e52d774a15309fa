// Package transport resolves Varlink address strings to concrete
// bidirectional byte streams: TCP, Unix domain sockets (filesystem or Linux
// abstract namespace), a subprocess launched with socket activation
// ("exec:"), or a subprocess whose stdio is used directly as the stream
// ("bridge:").
package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Network identifies which concrete transport an Address resolves to.
type Network int

const (
	NetworkTCP Network = iota
	NetworkUnix
	NetworkUnixAbstract
	NetworkExec
	NetworkBridge
)

func (n Network) String() string {
	switch n {
	case NetworkTCP:
		return "tcp"
	case NetworkUnix:
		return "unix"
	case NetworkUnixAbstract:
		return "unix-abstract"
	case NetworkExec:
		return "exec"
	case NetworkBridge:
		return "bridge"
	default:
		return "unknown"
	}
}

// Address is a parsed Varlink address URI.
//
//	tcp:HOST:PORT                 -> NetworkTCP
//	unix:/path[;mode=0NNN]        -> NetworkUnix
//	unix:@name                    -> NetworkUnixAbstract
//	exec:<command-line>           -> NetworkExec
//	bridge:<command-line>         -> NetworkBridge
type Address struct {
	Network Network

	Host string // tcp
	Port string // tcp

	Path string // unix (filesystem path, or "@name" for abstract)
	Mode uint32 // unix; filesystem socket permission bits, 0 if unset

	Command string // exec, bridge
}

// ParseAddress parses a Varlink address string.
func ParseAddress(addr string) (*Address, error) {
	scheme, rest, ok := strings.Cut(addr, ":")
	if !ok {
		return nil, fmt.Errorf("varlink: invalid address %q: missing scheme", addr)
	}

	switch scheme {
	case "tcp":
		host, port, err := net.SplitHostPort(rest)
		if err != nil {
			return nil, fmt.Errorf("varlink: invalid tcp address %q: %w", addr, err)
		}
		return &Address{Network: NetworkTCP, Host: host, Port: port}, nil

	case "unix":
		path, modeStr, hasMode := strings.Cut(rest, ";")
		if path == "" {
			return nil, fmt.Errorf("varlink: invalid unix address %q: empty path", addr)
		}

		var mode uint32
		if hasMode {
			const prefix = "mode="
			if !strings.HasPrefix(modeStr, prefix) {
				return nil, fmt.Errorf("varlink: invalid unix address parameter %q", modeStr)
			}
			m, err := strconv.ParseUint(strings.TrimPrefix(modeStr, prefix), 8, 32)
			if err != nil {
				return nil, fmt.Errorf("varlink: invalid unix socket mode %q: %w", modeStr, err)
			}
			mode = uint32(m)
		}

		if strings.HasPrefix(path, "@") {
			return &Address{Network: NetworkUnixAbstract, Path: path}, nil
		}
		return &Address{Network: NetworkUnix, Path: path, Mode: mode}, nil

	case "exec":
		if rest == "" {
			return nil, fmt.Errorf("varlink: invalid exec address %q: empty command", addr)
		}
		return &Address{Network: NetworkExec, Command: rest}, nil

	case "bridge":
		if rest == "" {
			return nil, fmt.Errorf("varlink: invalid bridge address %q: empty command", addr)
		}
		return &Address{Network: NetworkBridge, Command: rest}, nil

	default:
		return nil, fmt.Errorf("varlink: unsupported address scheme %q", scheme)
	}
}

// String reconstructs the canonical address form.
func (a *Address) String() string {
	switch a.Network {
	case NetworkTCP:
		return "tcp:" + net.JoinHostPort(a.Host, a.Port)
	case NetworkUnix:
		if a.Mode != 0 {
			return fmt.Sprintf("unix:%s;mode=%04o", a.Path, a.Mode)
		}
		return "unix:" + a.Path
	case NetworkUnixAbstract:
		return "unix:" + a.Path
	case NetworkExec:
		return "exec:" + a.Command
	case NetworkBridge:
		return "bridge:" + a.Command
	default:
		return ""
	}
}
