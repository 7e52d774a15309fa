package varlink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.varlink.dev/varlink/sansio"
	"go.varlink.dev/varlink/transport"
)

// Client is a Varlink client bound to one connection. Per spec, a Varlink
// connection is half-duplex and carries at most one outstanding request; a
// Client is not safe for concurrent use; callers that need concurrent calls
// open separate connections instead of sharing one Client.
type Client struct {
	stream transport.Stream
	sm     *sansio.ClientSM
	buf    []byte
}

// NewClient wraps an already-established stream (as returned by
// transport.Dial) in a Client.
func NewClient(stream transport.Stream) *Client {
	return &Client{stream: stream, sm: sansio.NewClientSM(), buf: make([]byte, 8192)}
}

// Dial resolves addr and returns a Client connected to it.
func Dial(ctx context.Context, addr string) (*Client, error) {
	stream, err := transport.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return NewClient(stream), nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.sm.Close()
	return c.stream.Close()
}

func marshalIn(in interface{}) (json.RawMessage, error) {
	if in == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(in)
}

// Do performs method as a simple, single-reply call: it sends in and decodes
// the reply's parameters into out. A non-nil out must be a pointer, as with
// json.Unmarshal. An error reply is returned as *Error.
func (c *Client) Do(method string, in, out interface{}) error {
	params, err := marshalIn(in)
	if err != nil {
		return err
	}

	if err := c.sm.SendRequest(&sansio.Request{Method: method, Parameters: params}); err != nil {
		return err
	}
	if err := c.flush(); err != nil {
		return err
	}

	ev, err := c.nextReply()
	if err != nil {
		return err
	}
	if ev.Reply.IsError() {
		return &Error{Name: ev.Reply.Error, Parameters: ev.Reply.Parameters}
	}

	if out == nil {
		return nil
	}
	params = ev.Reply.Parameters
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	return json.Unmarshal(params, out)
}

// DoOneway sends method with no expectation of a reply; the server does not
// transmit one, and this call returns as soon as the request is flushed.
func (c *Client) DoOneway(method string, in interface{}) error {
	params, err := marshalIn(in)
	if err != nil {
		return err
	}
	if err := c.sm.SendRequest(&sansio.Request{Method: method, Parameters: params, Oneway: true}); err != nil {
		return err
	}
	return c.flush()
}

// DoMore starts a streaming call and returns a MoreCall whose Next method
// yields one reply per call until the server sends a non-continuing reply.
func (c *Client) DoMore(method string, in interface{}) (*MoreCall, error) {
	params, err := marshalIn(in)
	if err != nil {
		return nil, err
	}
	if err := c.sm.SendRequest(&sansio.Request{Method: method, Parameters: params, More: true}); err != nil {
		return nil, err
	}
	if err := c.flush(); err != nil {
		return nil, err
	}
	return &MoreCall{client: c}, nil
}

// DoUpgrade performs an upgrade=true call: it sends method, waits for the
// server's reply, and on success returns the underlying stream plus any
// bytes already read past that reply. From that point the connection no
// longer speaks Varlink; the Client must not be used again, and the caller
// owns the stream as the start of its own byte protocol.
func (c *Client) DoUpgrade(method string, in interface{}) (transport.Stream, []byte, error) {
	params, err := marshalIn(in)
	if err != nil {
		return nil, nil, err
	}
	if err := c.sm.SendRequest(&sansio.Request{Method: method, Parameters: params, Upgrade: true}); err != nil {
		return nil, nil, err
	}
	if err := c.flush(); err != nil {
		return nil, nil, err
	}

	ev, err := c.nextReply()
	if err != nil {
		return nil, nil, err
	}
	if ev.Reply.IsError() {
		return nil, nil, &Error{Name: ev.Reply.Error, Parameters: ev.Reply.Parameters}
	}

	if _, ok := c.sm.PollEvent(); !ok {
		return nil, nil, fmt.Errorf("varlink: expected upgrade confirmation after reply")
	}

	return c.stream, c.sm.TakeBuffered(), nil
}

func (c *Client) flush() error {
	for {
		b, ok := c.sm.PollTransmit()
		if !ok {
			return nil
		}
		if _, err := c.stream.Write(b); err != nil {
			return err
		}
	}
}

// nextReply blocks on the stream until a ReplyEvent is available, feeding
// bytes into the client state machine as they arrive.
func (c *Client) nextReply() (sansio.ReplyEvent, error) {
	for {
		if ev, ok := c.sm.PollEvent(); ok {
			switch e := ev.(type) {
			case sansio.ReplyEvent:
				return e, nil
			case sansio.ErrorEvent:
				return sansio.ReplyEvent{}, e.Err
			case sansio.UpgradeEvent:
				return sansio.ReplyEvent{}, fmt.Errorf("varlink: unexpected upgrade to %q", e.Interface)
			}
		}

		n, err := c.stream.Read(c.buf)
		if n > 0 {
			if herr := c.sm.HandleInput(c.buf[:n]); herr != nil {
				return sansio.ReplyEvent{}, herr
			}
			continue
		}
		if err == io.EOF {
			return sansio.ReplyEvent{}, sansio.ErrConnectionClosed
		} else if err != nil {
			return sansio.ReplyEvent{}, err
		}
	}
}

// MoreCall is the lazy sequence of replies produced by Client.DoMore (§4.J).
type MoreCall struct {
	client *Client
	done   bool
}

// Next decodes the next reply's parameters into out. It returns io.EOF once
// a reply without continues=true has been delivered; any error reply is
// returned (and terminates the call) before io.EOF would be seen.
func (call *MoreCall) Next(out interface{}) error {
	if call.done {
		return io.EOF
	}

	ev, err := call.client.nextReply()
	if err != nil {
		call.done = true
		return err
	}

	if !ev.Continues {
		call.done = true
	}

	if ev.Reply.IsError() {
		call.done = true
		return &Error{Name: ev.Reply.Error, Parameters: ev.Reply.Parameters}
	}

	if out != nil {
		params := ev.Reply.Parameters
		if len(params) == 0 {
			params = json.RawMessage("{}")
		}
		if err := json.Unmarshal(params, out); err != nil {
			return err
		}
	}

	return nil
}

// Close drains any remaining replies for a call that is being abandoned
// before a non-continuing reply arrived, per spec's "dropping the iterator
// mid-stream must drain or close the connection" requirement.
func (call *MoreCall) Close() error {
	for !call.done {
		if err := call.Next(nil); err != nil {
			call.done = true
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
	return nil
}
