package capture

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// DefaultTcpdumpArgs builds the tcpdump invocation for sniffing management
// probe requests on a monitor-mode interface. The -e flag keeps the radiotap
// header fields (source address, signal strength) in the output line.
func DefaultTcpdumpArgs(iface string) []string {
	return []string{"-l", "-I", "-i", iface, "-e", "-s", strconv.Itoa(256), "type", "mgt", "subtype", "probe-req"}
}

// ExecSource runs a capture subprocess (normally tcpdump) and exposes its
// stdout as a line source for the Mux.
type ExecSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

// NewExecSource starts the named command with the given arguments. The
// process is killed when ctx is cancelled.
func NewExecSource(ctx context.Context, name string, args ...string) (*ExecSource, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe for %s: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}
	return &ExecSource{cmd: cmd, stdout: stdout}, nil
}

// Read reads raw capture output from the subprocess.
func (s *ExecSource) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

// Close terminates the subprocess and reaps it.
func (s *ExecSource) Close() error {
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	// Wait returns the kill error; the process exiting is all we need.
	s.cmd.Wait()
	return nil
}
