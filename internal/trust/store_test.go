package trust

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestLoadCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted_devices.txt")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("fresh store has %d entries, want 0", s.Len())
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("trust file was not created: %v", err)
	}
}

func TestLoadParsesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted_devices.txt")
	content := "4c:23:1a:05:bd:d4,Alice\n66:97:D8:9A:E3:7D,\n\nb6:77:d5:01:02:03,Bob's Phone\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if s.Len() != 3 {
		t.Fatalf("store has %d entries, want 3", s.Len())
	}
	name, ok := s.Lookup("4c:23:1a:05:bd:d4")
	if !ok || name != "Alice" {
		t.Errorf("Lookup(alice mac) = %q, %v; want Alice, true", name, ok)
	}
	// MACs are normalized to lower case; an empty name is still trusted.
	name, ok = s.Lookup("66:97:d8:9a:e3:7d")
	if !ok || name != "" {
		t.Errorf("Lookup(empty-name mac) = %q, %v; want \"\", true", name, ok)
	}
	if s.Contains("aa:bb:cc:dd:ee:ff") {
		t.Error("Contains reported an unregistered mac as trusted")
	}
}

func TestRegisterAppendsAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted_devices.txt")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := s.Register("4C:23:1A:05:BD:D4", "Alice"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register("4c:23:1a:05:bd:d4", "Someone Else"); err != nil {
		t.Fatalf("Register duplicate: %v", err)
	}

	// Duplicate registration must not grow the durable store or change
	// the in-memory entry.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("trust file has %d lines, want 1: %q", len(lines), string(data))
	}
	if lines[0] != "4c:23:1a:05:bd:d4,Alice" {
		t.Errorf("trust file line = %q, want %q", lines[0], "4c:23:1a:05:bd:d4,Alice")
	}
	if name, _ := s.Lookup("4c:23:1a:05:bd:d4"); name != "Alice" {
		t.Errorf("Lookup after duplicate register = %q, want Alice", name)
	}
}

func TestRegisterSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted_devices.txt")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Register("4c:23:1a:05:bd:d4", "Alice"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if name, ok := reloaded.Lookup("4c:23:1a:05:bd:d4"); !ok || name != "Alice" {
		t.Errorf("reloaded Lookup = %q, %v; want Alice, true", name, ok)
	}
}

func TestRegisterWriteFailureLeavesMemoryUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trusted_devices.txt")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Replace the file with a directory so the append fails.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := s.Register("4c:23:1a:05:bd:d4", "Alice"); err == nil {
		t.Fatal("expected Register to fail when the file is unwritable")
	}
	if s.Contains("4c:23:1a:05:bd:d4") {
		t.Error("failed registration must not mutate the in-memory set")
	}
}

func TestConcurrentLookupsDuringRegister(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted_devices.txt")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Contains("4c:23:1a:05:bd:d4")
				s.Lookup("4c:23:1a:05:bd:d4")
			}
		}()
	}
	if err := s.Register("4c:23:1a:05:bd:d4", "Alice"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	wg.Wait()

	if name, ok := s.Lookup("4c:23:1a:05:bd:d4"); !ok || name != "Alice" {
		t.Errorf("Lookup = %q, %v; want Alice, true", name, ok)
	}
}
