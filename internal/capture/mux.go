// Package capture provides an abstraction over a probe-request line stream
// with the ability for multiple clients to subscribe to the lines a single
// sniffer device emits.
package capture

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
)

// Mux is a line multiplexer that allows multiple clients to subscribe to
// events from a single sniffer stream.
type Mux struct {
	source       io.ReadCloser
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// Muxer defines the interface for the Mux type.
type Muxer interface {
	// Subscribe creates a new channel for receiving line events from the
	// sniffer. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// Monitor reads lines from the sniffer and sends them to the
	// subscribed channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and the underlying source.
	Close() error
}

// NewMux creates a Mux instance backed by the given line source.
func NewMux(source io.ReadCloser) *Mux {
	return &Mux{
		source:      source,
		subscribers: make(map[string]chan string),
	}
}

// Subscribe registers a new subscriber channel under a fresh ID.
func (m *Mux) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, 16)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the mux.
func (m *Mux) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Monitor reads lines from the source and fans them out to subscribers.
func (m *Mux) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.source)
	scan.Buffer(make([]byte, 0, 64*1024), 256*1024)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan runs in its own goroutine so it cannot
	// interfere with the outer loop awaiting context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			// a closed channel means the source reached EOF
			if !ok {
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}

			m.closingMu.Lock()
			if m.closing {
				m.closingMu.Unlock()
				return nil
			}
			m.closingMu.Unlock()

			m.subscriberMu.Lock()
			for _, ch := range m.subscribers {
				select {
				case ch <- line:
				default:
					// skip slow subscribers so one stalled reader
					// cannot block the fan-out loop
				}
			}
			m.subscriberMu.Unlock()
		}
	}
}

// Close tears down all subscriber channels and the source.
func (m *Mux) Close() error {
	m.closingMu.Lock()
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	return m.source.Close()
}
