// Package trust maintains the durable registry of operator-acknowledged
// devices. The store is a plain text file of "mac,name" lines, loaded fully
// into memory at startup and appended (never rewritten) on registration.
package trust

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/banshee-data/presence.report/internal/monitoring"
)

// Store holds the trusted-device set. Lookups and registration are safe for
// concurrent use; lookups never observe a half-written entry.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries map[string]string
}

// Load reads the trust file at path, creating an empty file if absent. A
// missing file is never an error. An unreadable file degrades to an empty
// trust set rather than halting startup.
func Load(path string) (*Store, error) {
	s := &Store{
		path:    path,
		entries: make(map[string]string),
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		created, cerr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if cerr != nil {
			return nil, fmt.Errorf("failed to create trust file %s: %w", path, cerr)
		}
		created.Close()
		return s, nil
	}
	if err != nil {
		monitoring.Logf("trust file %s unreadable, continuing with empty trust set: %v", path, err)
		return s, nil
	}
	defer f.Close()

	scan := bufio.NewScanner(f)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		mac, name, found := strings.Cut(line, ",")
		mac = strings.ToLower(strings.TrimSpace(mac))
		if !found {
			name = ""
		}
		s.entries[mac] = strings.TrimSpace(name)
	}
	if err := scan.Err(); err != nil {
		monitoring.Logf("trust file %s read error, continuing with partial trust set: %v", path, err)
	}
	return s, nil
}

// Contains reports whether mac has been registered as trusted.
func (s *Store) Contains(mac string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[strings.ToLower(mac)]
	return ok
}

// Lookup returns the display name registered for mac. The second return
// value is false when the mac is not trusted. A trusted device may have an
// empty name.
func (s *Store) Lookup(mac string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.entries[strings.ToLower(mac)]
	return name, ok
}

// Register marks mac as trusted with the given display name, appending a
// durable record. Registering an already-trusted mac is a no-op. The
// in-memory map is only updated after the append succeeds, so a write
// failure leaves both the file and memory unchanged.
func (s *Store) Register(mac, name string) error {
	mac = strings.ToLower(strings.TrimSpace(mac))
	if mac == "" {
		return fmt.Errorf("cannot register empty mac")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[mac]; ok {
		return nil
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open trust file for append: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s,%s\n", mac, name); err != nil {
		return fmt.Errorf("failed to append trust entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync trust file: %w", err)
	}

	s.entries[mac] = name
	return nil
}

// Len reports the number of trusted devices.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of the full trust map.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.entries))
	for mac, name := range s.entries {
		out[mac] = name
	}
	return out
}
