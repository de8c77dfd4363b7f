package capture

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"
)

// ReplaySource plays back a recorded capture file one line at a time with a
// fixed pacing interval. Useful for development without a monitor-mode
// interface and for demos with known traffic.
type ReplaySource struct {
	reader *io.PipeReader
	writer *io.PipeWriter
	done   chan struct{}
}

// NewReplaySource opens path and starts streaming its lines, one every
// interval. With a non-positive interval lines are streamed back to back.
// The source reaches EOF when the file is exhausted.
func NewReplaySource(path string, interval time.Duration) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay file: %w", err)
	}

	r, w := io.Pipe()
	s := &ReplaySource{reader: r, writer: w, done: make(chan struct{})}

	go func() {
		defer f.Close()
		defer w.Close()
		scan := bufio.NewScanner(f)
		for scan.Scan() {
			if _, err := fmt.Fprintln(w, scan.Text()); err != nil {
				return // reader side closed
			}
			if interval > 0 {
				select {
				case <-s.done:
					return
				case <-time.After(interval):
				}
			}
		}
	}()

	return s, nil
}

// Read reads paced replay output.
func (s *ReplaySource) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

// Close stops playback and releases the pipe.
func (s *ReplaySource) Close() error {
	close(s.done)
	return s.reader.Close()
}
