package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// dialExec spawns command and hands it a server-side socket via Linux
// socket activation: a connected AF_UNIX socketpair is created, one end is
// passed to the child as file descriptor 3 with LISTEN_FDS=1,
// LISTEN_FDNAMES=varlink, and LISTEN_PID set to the child's own PID (the
// shell wrapper computes its own $$ and keeps it across exec, since exec
// replaces the process image without changing its PID); the other end
// becomes this process's connection.
func dialExec(ctx context.Context, command string) (Stream, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("varlink: exec %q: socketpair: %w", command, err)
	}

	childFile := os.NewFile(uintptr(fds[0]), "varlink-activation-socket")
	parentFile := os.NewFile(uintptr(fds[1]), "varlink-parent-socket")
	defer childFile.Close()

	wrapped := fmt.Sprintf("LISTEN_FDS=1 LISTEN_FDNAMES=varlink LISTEN_PID=$$ exec %s", command)
	cmd := exec.CommandContext(ctx, "sh", "-c", wrapped)
	cmd.ExtraFiles = []*os.File{childFile}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		parentFile.Close()
		return nil, fmt.Errorf("varlink: exec %q: %w", command, err)
	}

	conn, err := net.FileConn(parentFile)
	parentFile.Close()
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("varlink: exec %q: %w", command, err)
	}

	return &execStream{netStream: netStream{Conn: conn}, cmd: cmd}, nil
}

// execStream is a netStream whose Close also reaps the spawned child.
type execStream struct {
	netStream
	cmd *exec.Cmd
}

func (s *execStream) Close() error {
	err := s.netStream.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return err
}
