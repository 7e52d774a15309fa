// Package varlink implements the Varlink IPC protocol: a client, a server
// registry/dispatcher, and a connection listener built on top of the
// sans-I/O state machines in package sansio and the address/stream
// resolution in package transport.
//
// See https://varlink.org/
package varlink

import (
	"encoding/json"
	"fmt"
)

// Error is a Varlink error reply: a dotted error name (e.g.
// "org.varlink.service.MethodNotFound") and its JSON parameters.
type Error struct {
	Name       string
	Parameters json.RawMessage
}

func (err *Error) Error() string {
	return fmt.Sprintf("varlink: call failed: %s", err.Name)
}

// Unmarshal decodes the error's parameters into v.
func (err *Error) Unmarshal(v interface{}) error {
	if len(err.Parameters) == 0 {
		return nil
	}
	return json.Unmarshal(err.Parameters, v)
}

func splitMethod(method string) (iface, member string) {
	for i := len(method) - 1; i >= 0; i-- {
		if method[i] == '.' {
			return method[:i], method[i+1:]
		}
	}
	return "", method
}
