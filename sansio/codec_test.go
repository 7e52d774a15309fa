package sansio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.varlink.dev/varlink/sansio"
)

func TestSerializeAppendsNUL(t *testing.T) {
	req := &sansio.Request{Method: "org.example.ping.Ping"}
	b, err := sansio.Serialize(req)
	require.NoError(t, err)
	assert.Equal(t, byte(0), b[len(b)-1])
	assert.JSONEq(t, `{"method":"org.example.ping.Ping"}`, string(b[:len(b)-1]))
}

func TestParseMessageRoundTrip(t *testing.T) {
	req := &sansio.Request{Method: "org.example.ping.Ping", Parameters: []byte(`{"ping":"hi"}`)}
	b, err := sansio.Serialize(req)
	require.NoError(t, err)

	msg, consumed, status, _ := sansio.ParseMessage(b)
	require.Equal(t, sansio.FrameComplete, status)
	assert.Equal(t, len(b), consumed)

	got, err := sansio.ParseRequest(msg)
	require.NoError(t, err)
	assert.Equal(t, req.Method, got.Method)
	assert.JSONEq(t, string(req.Parameters), string(got.Parameters))
}

func TestParseMessageIncomplete(t *testing.T) {
	_, _, status, _ := sansio.ParseMessage([]byte(`{"method":"x"}`))
	assert.Equal(t, sansio.Incomplete, status)
}

func TestParseMessageEmptyFrame(t *testing.T) {
	_, _, status, reason := sansio.ParseMessage([]byte{0})
	assert.Equal(t, sansio.FrameInvalid, status)
	assert.NotEmpty(t, reason)
}

func TestParseMessageBadFirstByte(t *testing.T) {
	_, _, status, reason := sansio.ParseMessage([]byte("hello\x00"))
	assert.Equal(t, sansio.FrameInvalid, status)
	assert.NotEmpty(t, reason)
}

func TestParseMessageTwoFramesInOneChunk(t *testing.T) {
	buf := append([]byte(`{"a":1}`), 0)
	buf = append(buf, append([]byte(`{"b":2}`), 0)...)

	msg1, consumed1, status1, _ := sansio.ParseMessage(buf)
	require.Equal(t, sansio.FrameComplete, status1)
	assert.JSONEq(t, `{"a":1}`, string(msg1))

	msg2, _, status2, _ := sansio.ParseMessage(buf[consumed1:])
	require.Equal(t, sansio.FrameComplete, status2)
	assert.JSONEq(t, `{"b":2}`, string(msg2))
}

func TestParseReplyWithError(t *testing.T) {
	msg := []byte(`{"error":"org.varlink.service.MethodNotFound","parameters":{"method":"Pong"}}`)
	reply, err := sansio.ParseReply(msg)
	require.NoError(t, err)
	assert.True(t, reply.IsError())
	assert.Equal(t, "org.varlink.service.MethodNotFound", reply.Error)
}
