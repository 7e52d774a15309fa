package varlink

import (
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"go.varlink.dev/varlink/internal/varlinklog"
	"go.varlink.dev/varlink/sansio"
	"go.varlink.dev/varlink/transport"
)

// ErrTimeout is returned by Listener.Serve when IdleTimeout elapses with no
// active connections. Callers should treat it as a normal shutdown rather
// than a failure.
var ErrTimeout = errors.New("varlink: listener idle timeout")

// acceptPollInterval bounds how long Serve's Accept call blocks before it
// re-checks StopListening and the idle timer, on listeners that support
// SetDeadline (TCP and Unix).
const acceptPollInterval = 100 * time.Millisecond

// Listener accepts Varlink connections and dispatches requests on each to a
// Registry. It generalizes the teacher's unconditional `Serve(ln
// net.Listener)` loop with an idle timeout and a cooperative stop flag.
type Listener struct {
	// Registry dispatches every non-upgrade request this listener accepts.
	Registry *Registry

	// IdleTimeout, if positive, makes Serve return ErrTimeout once this much
	// time has passed with zero active connections.
	IdleTimeout time.Duration

	// StopListening, if set, is polled between Accept calls; once it reads
	// true, Serve stops accepting new connections, waits for in-flight ones
	// to finish, and returns nil.
	StopListening *atomic.Bool

	// UpgradeHandler, if set, is invoked for every upgrade=true request this
	// Listener accepts, once a success reply to that request has been
	// written to the wire. It receives the connection's stream, any bytes
	// already read past the upgrade request itself, and the request that
	// triggered the upgrade; from that point the connection no longer
	// speaks Varlink and this Listener takes no further action on it other
	// than closing it when the handler returns. If unset, upgrade requests
	// are answered with MethodNotImplemented and the connection is closed.
	UpgradeHandler func(stream transport.Stream, buffered []byte, req *sansio.Request) error

	active int32
}

// NewListener creates a Listener dispatching to reg.
func NewListener(reg *Registry) *Listener {
	return &Listener{Registry: reg}
}

// Serve accepts connections from ln until a fatal accept error, StopListening
// is observed, or IdleTimeout elapses with no active connections.
func (l *Listener) Serve(ln net.Listener) error {
	log := varlinklog.For("listener")

	type deadliner interface {
		SetDeadline(time.Time) error
	}
	dl, pollable := ln.(deadliner)

	var idleSince time.Time
	if l.IdleTimeout > 0 {
		idleSince = time.Now()
	}

	for {
		if l.StopListening != nil && l.StopListening.Load() {
			for atomic.LoadInt32(&l.active) > 0 {
				time.Sleep(acceptPollInterval)
			}
			return nil
		}

		if pollable {
			_ = dl.SetDeadline(time.Now().Add(acceptPollInterval))
		}

		conn, err := ln.Accept()
		if err != nil {
			if pollable && isTimeoutError(err) {
				if l.IdleTimeout > 0 && atomic.LoadInt32(&l.active) == 0 {
					if time.Since(idleSince) >= l.IdleTimeout {
						return ErrTimeout
					}
				} else {
					idleSince = time.Now()
				}
				continue
			}
			return err
		}

		idleSince = time.Now()
		atomic.AddInt32(&l.active, 1)
		connID := uuid.NewString()
		go func() {
			defer atomic.AddInt32(&l.active, -1)
			if err := l.serveConn(transport.NewStream(conn)); err != nil && err != io.EOF {
				log.WithError(err).WithField("conn", connID).Warn("connection closed with error")
			}
		}()
	}
}

func isTimeoutError(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (l *Listener) serveConn(stream transport.Stream) error {
	defer stream.Close()

	sm := sansio.NewServerSM()
	buf := make([]byte, 8192)

	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if herr := sm.HandleInput(buf[:n]); herr != nil {
				return herr
			}
			for {
				done, derr := l.drainEvents(sm, stream)
				if derr != nil {
					return derr
				}
				if err := l.drainTransmits(sm, stream); err != nil {
					return err
				}
				if done {
					return nil
				}
				// A peer may have pipelined more than one request into the
				// bytes just read; HandleInput only ever decodes one at a
				// time, so keep decoding from what's already buffered
				// before blocking on another Read.
				if sm.State() != sansio.ServerReceiving || !sm.HasBuffered() {
					break
				}
				if herr := sm.HandleInput(nil); herr != nil {
					return herr
				}
				if sm.State() == sansio.ServerReceiving {
					// Only part of a message is buffered; read the rest.
					break
				}
			}
		}
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
	}
}

// drainEvents runs the dispatcher over every event currently queued on sm.
// It reports done=true once an UpgradeEvent has been handled: either
// UpgradeHandler took over the stream, or (with none configured) the
// connection was answered MethodNotImplemented and is being closed. Either
// way the server SM has latched to ServerUpgraded and can no longer decode
// further input, so the caller must stop feeding it bytes.
func (l *Listener) drainEvents(sm *sansio.ServerSM, stream transport.Stream) (done bool, err error) {
	for {
		ev, ok := sm.PollEvent()
		if !ok {
			return false, nil
		}
		switch e := ev.(type) {
		case sansio.RequestEvent:
			if err := l.Registry.Dispatch(sm, e.Request); err != nil {
				return false, err
			}
		case sansio.UpgradeEvent:
			call := newCall(sm, e.Request)
			if l.UpgradeHandler == nil {
				if err := call.ReplyMethodNotImplemented(e.Request.Method); err != nil {
					return false, err
				}
				return true, nil
			}
			if err := call.Reply(nil); err != nil {
				return false, err
			}
			if err := l.drainTransmits(sm, stream); err != nil {
				return false, err
			}
			return true, l.UpgradeHandler(stream, sm.TakeBuffered(), e.Request)
		}
	}
}

func (l *Listener) drainTransmits(sm *sansio.ServerSM, w io.Writer) error {
	for {
		b, ok := sm.PollTransmit()
		if !ok {
			return nil
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
}
