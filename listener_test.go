package varlink_test

import (
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"go.varlink.dev/varlink"
	"go.varlink.dev/varlink/transport"
)

func TestListenerStopListeningReturnsImmediately(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "stop-test.sock")
	ln, err := transport.Listen("unix:" + sockPath)
	require.NoError(t, err)
	defer ln.Close()

	reg := varlink.NewRegistry(varlink.RegistryOptions{Product: "stop-test"})
	l := varlink.NewListener(reg)
	var stop atomic.Bool
	stop.Store(true)
	l.StopListening = &stop

	err = l.Serve(ln)
	require.NoError(t, err)
}
