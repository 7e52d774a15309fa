package varlink

import (
	"encoding/json"
	"fmt"

	"go.varlink.dev/varlink/sansio"
)

// Standard org.varlink.service error names, returned by dispatch itself
// (InterfaceNotFound, MethodNotFound) and available to any handler via the
// Call facade's Reply<Name> helpers.
const (
	ErrInterfaceNotFound    = "org.varlink.service.InterfaceNotFound"
	ErrMethodNotFound       = "org.varlink.service.MethodNotFound"
	ErrMethodNotImplemented = "org.varlink.service.MethodNotImplemented"
	ErrInvalidParameter     = "org.varlink.service.InvalidParameter"
)

// Call represents one in-progress Varlink method call on the server side.
// It is handed to a Handler's Dispatch method with one open request.
//
// A handler answering a request with More set may call ReplyContinues any
// number of times, then must end the call with one final, non-continuing
// reply (Reply or CloseWithReply); a request without More must be answered
// with exactly one Reply call.
type Call struct {
	sm   *sansio.ServerSM
	req  *sansio.Request
	done bool
}

func newCall(sm *sansio.ServerSM, req *sansio.Request) *Call {
	return &Call{sm: sm, req: req}
}

// Method returns the full "interface.Member" method name of the call.
func (call *Call) Method() string { return call.req.Method }

// Parameters returns the raw JSON request parameters.
func (call *Call) Parameters() json.RawMessage { return call.req.Parameters }

// WantsMore reports whether the caller requested a streaming reply.
func (call *Call) WantsMore() bool { return call.req.More }

// IsOneway reports whether the caller expects no reply at all; handlers
// should still call Reply/CloseWithReply for symmetry, but for a oneway call
// the reply helpers send nothing over the wire.
func (call *Call) IsOneway() bool { return call.req.Oneway }

func (call *Call) replyRaw(reply *sansio.Reply) error {
	if reply.Continues {
		if !call.req.More {
			return fmt.Errorf("varlink: Call.Reply(continues) called for a request without More set")
		}
	} else {
		if call.done {
			return fmt.Errorf("varlink: Call already closed with a final reply")
		}
		call.done = true
	}

	if call.req.Oneway {
		return nil
	}

	if err := call.sm.SendReply(reply); err != nil {
		return err
	}
	return nil
}

func marshalParameters(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(v)
}

// Reply sends a final, successful reply.
func (call *Call) Reply(parameters interface{}) error {
	params, err := marshalParameters(parameters)
	if err != nil {
		return err
	}
	return call.replyRaw(&sansio.Reply{Parameters: params})
}

// ReplyContinues sends a non-final reply; the originating request must have
// had More set, or this returns an error.
func (call *Call) ReplyContinues(parameters interface{}) error {
	params, err := marshalParameters(parameters)
	if err != nil {
		return err
	}
	return call.replyRaw(&sansio.Reply{Parameters: params, Continues: true})
}

// CloseWithReply sends the final reply of a streaming call.
func (call *Call) CloseWithReply(parameters interface{}) error {
	return call.Reply(parameters)
}

// ReplyError sends a named error reply with the given parameters. Handlers
// that declared their own interface errors use this directly; see also the
// Reply<StandardName> helpers below for the four errors every service may
// return regardless of which interface is being called.
func (call *Call) ReplyError(name string, parameters interface{}) error {
	params, err := marshalParameters(parameters)
	if err != nil {
		return err
	}
	return call.replyRaw(&sansio.Reply{Error: name, Parameters: params})
}

// ReplyInterfaceNotFound replies with org.varlink.service.InterfaceNotFound.
func (call *Call) ReplyInterfaceNotFound(iface string) error {
	return call.ReplyError(ErrInterfaceNotFound, map[string]string{"interface": iface})
}

// ReplyMethodNotFound replies with org.varlink.service.MethodNotFound.
func (call *Call) ReplyMethodNotFound(method string) error {
	return call.ReplyError(ErrMethodNotFound, map[string]string{"method": method})
}

// ReplyMethodNotImplemented replies with
// org.varlink.service.MethodNotImplemented.
func (call *Call) ReplyMethodNotImplemented(method string) error {
	return call.ReplyError(ErrMethodNotImplemented, map[string]string{"method": method})
}

// ReplyInvalidParameter replies with org.varlink.service.InvalidParameter.
func (call *Call) ReplyInvalidParameter(parameter string) error {
	return call.ReplyError(ErrInvalidParameter, map[string]string{"parameter": parameter})
}

// Upgraded reports whether this call's request carried upgrade=true. An
// upgrade request never reaches a Handler's Dispatch method: the server
// state machine emits it as an UpgradeEvent, which the Listener answers
// itself (see Listener.UpgradeHandler).
func (call *Call) Upgraded() bool { return call.req.Upgrade }
