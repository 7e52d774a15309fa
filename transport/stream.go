package transport

import (
	"errors"
	"io"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrUnsupported is returned by Stream operations that have no meaning for
// the concrete transport in use (e.g. SetNonblocking on a bridge stream).
var ErrUnsupported = errors.New("varlink: operation not supported by this transport")

// Ucred is the peer credential information exposed by SO_PEERCRED on Unix
// domain sockets. Varlink never requires authentication beyond what the
// transport provides; PeerCredentials is offered for callers that want to
// use it, never consulted by the core itself.
type Ucred struct {
	PID int32
	UID uint32
	GID uint32
}

// Stream is a bidirectional byte stream abstraction covering everything a
// Varlink connection (client or server side) can be carried over.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer

	// CloseRead shuts down the read half, if the underlying transport
	// distinguishes read and write halves; otherwise ErrUnsupported.
	CloseRead() error
	// CloseWrite shuts down the write half, signalling EOF to the peer.
	CloseWrite() error
	// SetNonblocking toggles non-blocking I/O mode on the underlying file
	// descriptor, where one exists.
	SetNonblocking(nonblocking bool) error
	// Split returns independently closable read and write handles sharing
	// the same underlying connection, so a caller may hand read and write
	// ownership to separate goroutines.
	Split() (io.ReadCloser, io.WriteCloser)
	// PeerCredentials returns the remote endpoint's credentials, if the
	// transport is a Unix domain socket and the platform supports
	// SO_PEERCRED.
	PeerCredentials() (*Ucred, error)
}

// netStream adapts a net.Conn (TCP or Unix) to Stream.
type netStream struct {
	net.Conn
}

func newNetStream(c net.Conn) Stream {
	return &netStream{Conn: c}
}

// NewStream adapts an already-established net.Conn (e.g. one returned by a
// net.Listener's Accept) into a Stream. Listen and ListenAddress return a
// bare net.Listener rather than a Stream-producing listener because the
// accept loop needs the underlying Accept to support deadlines for idle
// timeouts; wrap each accepted connection with NewStream.
func NewStream(c net.Conn) Stream {
	return newNetStream(c)
}

func (s *netStream) CloseRead() error {
	type readCloser interface {
		CloseRead() error
	}
	if rc, ok := s.Conn.(readCloser); ok {
		return rc.CloseRead()
	}
	return ErrUnsupported
}

func (s *netStream) CloseWrite() error {
	type writeCloser interface {
		CloseWrite() error
	}
	if wc, ok := s.Conn.(writeCloser); ok {
		return wc.CloseWrite()
	}
	return ErrUnsupported
}

func (s *netStream) SetNonblocking(nonblocking bool) error {
	sc, ok := s.Conn.(syscallConn)
	if !ok {
		return ErrUnsupported
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}

	var setErr error
	err = raw.Control(func(fd uintptr) {
		setErr = unix.SetNonblock(int(fd), nonblocking)
	})
	if err != nil {
		return err
	}
	return setErr
}

func (s *netStream) Split() (io.ReadCloser, io.WriteCloser) {
	return streamHalf{s}, streamHalf{s}
}

func (s *netStream) PeerCredentials() (*Ucred, error) {
	uc, ok := s.Conn.(*net.UnixConn)
	if !ok {
		return nil, ErrUnsupported
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return nil, err
	}

	var cred *unix.Ucred
	var getErr error
	err = raw.Control(func(fd uintptr) {
		cred, getErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return nil, err
	}
	if getErr != nil {
		return nil, getErr
	}
	return &Ucred{PID: cred.Pid, UID: cred.Uid, GID: cred.Gid}, nil
}

// syscallConn is satisfied by *net.TCPConn and *net.UnixConn.
type syscallConn interface {
	SyscallConn() (syscall.RawConn, error)
}

// streamHalf is a thin read/write handle over a shared Stream, letting
// Split() hand out two values over the same connection. Closing either half
// closes the whole connection, matching net.Conn semantics; callers that
// need independent half-closes should call CloseRead/CloseWrite directly
// instead of closing a half.
type streamHalf struct {
	s Stream
}

func (h streamHalf) Read(p []byte) (int, error)  { return h.s.Read(p) }
func (h streamHalf) Write(p []byte) (int, error) { return h.s.Write(p) }
func (h streamHalf) Close() error                { return h.s.Close() }
