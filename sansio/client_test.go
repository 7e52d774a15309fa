package sansio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.varlink.dev/varlink/sansio"
)

func TestClientSMPingRoundTrip(t *testing.T) {
	sm := sansio.NewClientSM()
	require.Equal(t, sansio.ClientIdle, sm.State())

	err := sm.SendRequest(&sansio.Request{Method: "org.example.ping.Ping", Parameters: []byte(`{"ping":"hi"}`)})
	require.NoError(t, err)
	assert.Equal(t, sansio.ClientAwaitingReply, sm.State())

	transmit, ok := sm.PollTransmit()
	require.True(t, ok)
	assert.Contains(t, string(transmit), `"method":"org.example.ping.Ping"`)

	_, ok = sm.PollTransmit()
	assert.False(t, ok, "only one frame should have been queued")

	err = sm.HandleInput(append([]byte(`{"parameters":{"pong":"hi"}}`), 0))
	require.NoError(t, err)
	assert.Equal(t, sansio.ClientIdle, sm.State())

	ev, ok := sm.PollEvent()
	require.True(t, ok)
	reply, ok := ev.(sansio.ReplyEvent)
	require.True(t, ok)
	assert.Equal(t, "org.example.ping.Ping", reply.Method)
	assert.JSONEq(t, `{"pong":"hi"}`, string(reply.Reply.Parameters))
	assert.False(t, reply.Continues)
}

func TestClientSMBusyWhileAwaitingReply(t *testing.T) {
	sm := sansio.NewClientSM()
	require.NoError(t, sm.SendRequest(&sansio.Request{Method: "a.b.C"}))

	err := sm.SendRequest(&sansio.Request{Method: "a.b.D"})
	assert.ErrorIs(t, err, sansio.ErrConnectionBusy)
}

func TestClientSMMoreStreaming(t *testing.T) {
	sm := sansio.NewClientSM()
	require.NoError(t, sm.SendRequest(&sansio.Request{Method: "org.example.more.TestMore", More: true}))
	_, _ = sm.PollTransmit()

	frames := []string{
		`{"parameters":{"state":{"start":true}},"continues":true}`,
		`{"parameters":{"state":{"progress":0}},"continues":true}`,
		`{"parameters":{"state":{"progress":100}},"continues":true}`,
		`{"parameters":{"state":{"end":true}}}`,
	}

	var got []sansio.ReplyEvent
	for i, f := range frames {
		require.NoError(t, sm.HandleInput(append([]byte(f), 0)))
		if i < len(frames)-1 {
			assert.Equal(t, sansio.ClientReceiving, sm.State())
		} else {
			assert.Equal(t, sansio.ClientIdle, sm.State())
		}
		ev, ok := sm.PollEvent()
		require.True(t, ok)
		got = append(got, ev.(sansio.ReplyEvent))
	}

	assert.Len(t, got, len(frames))
	assert.True(t, got[0].Continues)
	assert.False(t, got[len(got)-1].Continues)
}

func TestClientSMInvalidFrameEntersErrorState(t *testing.T) {
	sm := sansio.NewClientSM()
	require.NoError(t, sm.SendRequest(&sansio.Request{Method: "a.b.C"}))
	_, _ = sm.PollTransmit()

	err := sm.HandleInput(append([]byte("not json"), 0))
	require.Error(t, err)
	assert.Equal(t, sansio.ClientError, sm.State())

	ev, ok := sm.PollEvent()
	require.True(t, ok)
	_, ok = ev.(sansio.ErrorEvent)
	assert.True(t, ok)
}

func TestClientSMSplitFrameAcrossChunks(t *testing.T) {
	sm := sansio.NewClientSM()
	require.NoError(t, sm.SendRequest(&sansio.Request{Method: "a.b.C"}))
	_, _ = sm.PollTransmit()

	full := append([]byte(`{"parameters":{}}`), 0)
	half := len(full) / 2

	require.NoError(t, sm.HandleInput(full[:half]))
	_, ok := sm.PollEvent()
	assert.False(t, ok, "no event should fire on a partial frame")

	require.NoError(t, sm.HandleInput(full[half:]))
	_, ok = sm.PollEvent()
	assert.True(t, ok)
}

func TestClientSMUpgrade(t *testing.T) {
	sm := sansio.NewClientSM()
	require.NoError(t, sm.SendRequest(&sansio.Request{Method: "org.example.raw.Start", Upgrade: true}))
	_, _ = sm.PollTransmit()

	require.NoError(t, sm.HandleInput(append([]byte(`{"parameters":{}}`), 0)))
	assert.Equal(t, sansio.ClientUpgraded, sm.State())

	ev, ok := sm.PollEvent()
	require.True(t, ok)
	_, ok = ev.(sansio.ReplyEvent)
	require.True(t, ok)

	ev, ok = sm.PollEvent()
	require.True(t, ok)
	upgrade, ok := ev.(sansio.UpgradeEvent)
	require.True(t, ok)
	assert.Equal(t, "org.example.raw", upgrade.Interface)
}

func TestClientSMUpgradeBuffersTrailingBytes(t *testing.T) {
	sm := sansio.NewClientSM()
	require.NoError(t, sm.SendRequest(&sansio.Request{Method: "org.example.raw.Start", Upgrade: true}))
	_, _ = sm.PollTransmit()

	reply := append([]byte(`{"parameters":{}}`), 0)
	raw := []byte("opaque bytes following the upgrade reply")
	require.NoError(t, sm.HandleInput(append(reply, raw...)))
	assert.Equal(t, sansio.ClientUpgraded, sm.State())

	// Both events from the upgrade reply are queued; the trailing raw bytes
	// must not have been fed through message framing.
	_, ok := sm.PollEvent()
	require.True(t, ok)
	_, ok = sm.PollEvent()
	require.True(t, ok)

	assert.Equal(t, raw, sm.TakeBuffered())
}

func TestClientSMOnewayStaysIdle(t *testing.T) {
	sm := sansio.NewClientSM()
	require.NoError(t, sm.SendRequest(&sansio.Request{Method: "a.b.Notify", Oneway: true}))
	assert.Equal(t, sansio.ClientIdle, sm.State(), "a oneway request expects no reply and must not block the connection")

	// Idle again immediately, so a second request is legal without ever
	// seeing a reply to the first.
	require.NoError(t, sm.SendRequest(&sansio.Request{Method: "a.b.C"}))
	assert.Equal(t, sansio.ClientAwaitingReply, sm.State())
}
