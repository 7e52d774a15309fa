package sansio

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Serialize encodes v as compact JSON followed by a single NUL terminator.
//
// v is typically a *Request or *Reply, but Serialize makes no assumption
// about its shape: the codec is a pure function over whatever the caller
// hands it.
func Serialize(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("varlink: serialize message: %w", err)
	}
	return append(b, 0), nil
}

// FrameStatus classifies the outcome of scanning a byte buffer for a
// complete NUL-terminated message.
type FrameStatus int

const (
	// Incomplete means the buffer does not yet contain a full message;
	// the caller should wait for more input.
	Incomplete FrameStatus = iota
	// FrameComplete means a full message was found and returned.
	FrameComplete
	// FrameInvalid means a NUL terminator was found but the bytes before
	// it cannot possibly be a Varlink message.
	FrameInvalid
)

// ParseMessage scans buf for the first NUL byte and returns the message
// that precedes it (excluding the NUL) along with the number of bytes
// consumed from buf (including the NUL).
//
// ParseMessage does not attempt to JSON-decode the message; it only
// validates that the bytes are valid UTF-8 and that the first non-whitespace
// byte is '{' or '[', per the wire contract. Use ParseRequest/ParseReply to
// decode the returned message.
func ParseMessage(buf []byte) (msg []byte, consumed int, status FrameStatus, reason string) {
	idx := indexNUL(buf)
	if idx < 0 {
		return nil, 0, Incomplete, ""
	}

	msg = buf[:idx]
	consumed = idx + 1

	if len(msg) == 0 {
		return nil, consumed, FrameInvalid, "empty message"
	}
	if !utf8.Valid(msg) {
		return nil, consumed, FrameInvalid, "message is not valid UTF-8"
	}

	first := firstNonSpace(msg)
	if first != '{' && first != '[' {
		return nil, consumed, FrameInvalid, "message does not start with '{' or '['"
	}

	return msg, consumed, FrameComplete, ""
}

func indexNUL(buf []byte) int {
	for i, b := range buf {
		if b == 0 {
			return i
		}
	}
	return -1
}

func firstNonSpace(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n', '\v', '\f':
			continue
		default:
			return c
		}
	}
	return 0
}

// ParseRequest JSON-decodes a framed message (as returned by ParseMessage)
// into a Request.
func ParseRequest(msg []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		return nil, fmt.Errorf("varlink: decode request: %w", err)
	}
	return &req, nil
}

// ParseReply JSON-decodes a framed message (as returned by ParseMessage)
// into a Reply.
func ParseReply(msg []byte) (*Reply, error) {
	var reply Reply
	if err := json.Unmarshal(msg, &reply); err != nil {
		return nil, fmt.Errorf("varlink: decode reply: %w", err)
	}
	return &reply, nil
}
