package varlink_test

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.varlink.dev/varlink"
	"go.varlink.dev/varlink/sansio"
	"go.varlink.dev/varlink/transport"
)

type pingHandler struct{}

func (pingHandler) Dispatch(call *varlink.Call, member string) error {
	if member != "Ping" {
		return call.ReplyMethodNotFound(member)
	}
	var in struct {
		Ping string `json:"ping"`
	}
	if err := unmarshal(call, &in); err != nil {
		return call.ReplyInvalidParameter("ping")
	}
	return call.Reply(map[string]string{"pong": in.Ping})
}

func unmarshal(call *varlink.Call, v interface{}) error {
	return json.Unmarshal(call.Parameters(), v)
}

type moreHandler struct{}

func (moreHandler) Dispatch(call *varlink.Call, member string) error {
	if member != "TestMore" {
		return call.ReplyMethodNotFound(member)
	}
	if !call.WantsMore() {
		return call.ReplyError("org.example.more.TestMoreError", map[string]string{"reason": "called without more"})
	}

	if err := call.ReplyContinues(map[string]interface{}{"state": map[string]bool{"start": true}}); err != nil {
		return err
	}
	for _, pct := range []int{0, 33, 66} {
		if err := call.ReplyContinues(map[string]interface{}{"progress": pct}); err != nil {
			return err
		}
	}
	if err := call.ReplyContinues(map[string]interface{}{"state": map[string]int{"progress": 100}}); err != nil {
		return err
	}
	return call.CloseWithReply(map[string]interface{}{"state": map[string]bool{"end": true}})
}

func newTestServer(t *testing.T) (addr string, stop func()) {
	t.Helper()

	reg := varlink.NewRegistry(varlink.RegistryOptions{
		Vendor: "Example Corp", Product: "pingd", Version: "1.0", URL: "https://example.org",
	})
	reg.Add(&varlink.RegistryInterface{
		Name:       "org.example.ping",
		Definition: "interface org.example.ping\nmethod Ping(ping: string) -> (pong: string)\n",
	}, pingHandler{})
	reg.Add(&varlink.RegistryInterface{
		Name:       "org.example.more",
		Definition: "interface org.example.more\nmethod TestMore(n: int) -> (state: object)\nerror TestMoreError (reason: string)\n",
	}, moreHandler{})

	sockPath := filepath.Join(t.TempDir(), "varlink-test.sock")
	ln, err := transport.Listen("unix:" + sockPath)
	require.NoError(t, err)

	l := varlink.NewListener(reg)
	var stopped atomic.Bool
	l.StopListening = &stopped

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Serve(ln)
	}()

	return "unix:" + sockPath, func() {
		stopped.Store(true)
		ln.Close()
		<-done
	}
}

func dialTest(t *testing.T, addr string) *varlink.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := varlink.Dial(ctx, addr)
	require.NoError(t, err)
	return c
}

func TestPingRoundTrip(t *testing.T) {
	addr, stop := newTestServer(t)
	defer stop()

	c := dialTest(t, addr)
	defer c.Close()

	var out struct {
		Pong string `json:"pong"`
	}
	err := c.Do("org.example.ping.Ping", map[string]string{"ping": "hi"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hi", out.Pong)
}

func TestUnknownMethod(t *testing.T) {
	addr, stop := newTestServer(t)
	defer stop()

	c := dialTest(t, addr)
	defer c.Close()

	err := c.Do("org.example.ping.Pong", nil, nil)
	require.Error(t, err)
	var verr *varlink.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "org.varlink.service.MethodNotFound", verr.Name)
}

func TestMoreStreaming(t *testing.T) {
	addr, stop := newTestServer(t)
	defer stop()

	c := dialTest(t, addr)
	defer c.Close()

	call, err := c.DoMore("org.example.more.TestMore", map[string]int{"n": 3})
	require.NoError(t, err)

	var count int
	for {
		var out map[string]interface{}
		err := call.Next(&out)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 6, count)
}

func TestMoreWithoutMoreFlag(t *testing.T) {
	addr, stop := newTestServer(t)
	defer stop()

	c := dialTest(t, addr)
	defer c.Close()

	err := c.Do("org.example.more.TestMore", map[string]int{"n": 3}, nil)
	require.Error(t, err)
	var verr *varlink.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "org.example.more.TestMoreError", verr.Name)
}

func TestOnewayEmitsNoReply(t *testing.T) {
	addr, stop := newTestServer(t)
	defer stop()

	c := dialTest(t, addr)
	defer c.Close()

	// If the server wrote a reply for this oneway call, it would arrive as
	// the reply to the Do below instead, and the assertion on out.Pong
	// would fail (or the JSON decode would, since the shapes differ).
	require.NoError(t, c.DoOneway("org.example.ping.Ping", map[string]string{"ping": "ignored"}))

	var out struct {
		Pong string `json:"pong"`
	}
	err := c.Do("org.example.ping.Ping", map[string]string{"ping": "hi"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hi", out.Pong)
}

type unreachableHandler struct{ t *testing.T }

func (h unreachableHandler) Dispatch(call *varlink.Call, member string) error {
	h.t.Fatalf("Dispatch called for member %q; upgrade requests must never reach a Handler", member)
	return nil
}

func TestUpgradeHandoff(t *testing.T) {
	reg := varlink.NewRegistry(varlink.RegistryOptions{Product: "upgrade-test"})
	reg.Add(&varlink.RegistryInterface{
		Name:       "org.example.raw",
		Definition: "interface org.example.raw\nmethod Start() -> ()\n",
	}, unreachableHandler{t: t})

	sockPath := filepath.Join(t.TempDir(), "varlink-upgrade-test.sock")
	ln, err := transport.Listen("unix:" + sockPath)
	require.NoError(t, err)

	l := varlink.NewListener(reg)
	received := make(chan string, 1)
	l.UpgradeHandler = func(stream transport.Stream, buffered []byte, req *sansio.Request) error {
		assert.Equal(t, "org.example.raw.Start", req.Method)

		want := len("hello server")
		got := buffered
		chunk := make([]byte, 32)
		for len(got) < want {
			n, rerr := stream.Read(chunk)
			if rerr != nil {
				return rerr
			}
			got = append(got, chunk[:n]...)
		}
		received <- string(got)

		_, err := stream.Write([]byte("hello client"))
		return err
	}

	var stopped atomic.Bool
	l.StopListening = &stopped
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Serve(ln)
	}()
	defer func() {
		stopped.Store(true)
		ln.Close()
		<-done
	}()

	c := dialTest(t, "unix:"+sockPath)
	defer c.Close()

	stream, buffered, err := c.DoUpgrade("org.example.raw.Start", nil)
	require.NoError(t, err)
	assert.Empty(t, buffered)

	_, err = stream.Write([]byte("hello server"))
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, "hello server", got)
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade handler never observed the raw bytes written after upgrade")
	}

	reply := make([]byte, len("hello client"))
	_, err = io.ReadFull(stream, reply)
	require.NoError(t, err)
	assert.Equal(t, "hello client", string(reply))
}

func TestGetInfo(t *testing.T) {
	addr, stop := newTestServer(t)
	defer stop()

	c := dialTest(t, addr)
	defer c.Close()

	var out struct {
		Vendor     string   `json:"vendor"`
		Interfaces []string `json:"interfaces"`
	}
	err := c.Do("org.varlink.service.GetInfo", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "Example Corp", out.Vendor)
	require.NotEmpty(t, out.Interfaces)
	assert.Equal(t, "org.varlink.service", out.Interfaces[0])
	assert.Contains(t, out.Interfaces, "org.example.ping")
	assert.Contains(t, out.Interfaces, "org.example.more")
}

func TestGetInterfaceDescription(t *testing.T) {
	addr, stop := newTestServer(t)
	defer stop()

	c := dialTest(t, addr)
	defer c.Close()

	var out struct {
		Description string `json:"description"`
	}
	err := c.Do("org.varlink.service.GetInterfaceDescription", map[string]string{"interface": "org.example.ping"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.Description, "method Ping")
}
