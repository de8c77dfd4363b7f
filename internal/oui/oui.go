// Package oui maps MAC vendor prefixes to human-readable vendor names.
package oui

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Unknown is the vendor label reported for prefixes not in the table.
const Unknown = "Unknown"

// defaultVendors covers the handset vendors most commonly seen probing in
// the field. Deployments can extend the table from a file at startup.
var defaultVendors = map[string]string{
	"94:9b:2c": "Samsung Electronics",
	"b8:50:01": "Apple, Inc.",
	"6e:5d:06": "Huawei Technologies",
	"b6:6a:f3": "Xiaomi Communications",
	"62:05:5a": "OPPO Electronics",
	"fa:62:37": "OnePlus Technology",
	"26:09:a8": "Motorola Mobility",
}

// Table resolves vendor prefixes to vendor names. The zero value is not
// usable; construct with NewTable.
type Table struct {
	mu      sync.RWMutex
	vendors map[string]string
}

// NewTable returns a Table seeded with the built-in vendor entries.
func NewTable() *Table {
	vendors := make(map[string]string, len(defaultVendors))
	for prefix, vendor := range defaultVendors {
		vendors[prefix] = vendor
	}
	return &Table{vendors: vendors}
}

// Vendor returns the vendor name for a full MAC address, or Unknown when the
// prefix is not in the table or the address is malformed.
func (t *Table) Vendor(mac string) string {
	if len(mac) < 8 {
		return Unknown
	}
	prefix := strings.ToLower(mac[:8])

	t.mu.RLock()
	defer t.mu.RUnlock()
	if v, ok := t.vendors[prefix]; ok {
		return v
	}
	return Unknown
}

// Add registers one prefix -> vendor mapping, replacing any existing entry.
func (t *Table) Add(prefix, vendor string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vendors[strings.ToLower(prefix)] = vendor
}

// Len reports the number of entries in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.vendors)
}

// LoadFile merges prefix,vendor lines from path into the table. Blank lines
// and lines starting with '#' are skipped. Malformed lines are an error so a
// typo in an operator-maintained file does not vanish silently.
func (t *Table) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open vendor file: %w", err)
	}
	defer f.Close()

	scan := bufio.NewScanner(f)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prefix, vendor, ok := strings.Cut(line, ",")
		if !ok || strings.TrimSpace(prefix) == "" || strings.TrimSpace(vendor) == "" {
			return fmt.Errorf("malformed vendor entry at %s:%d: %q", path, lineNo, line)
		}
		t.Add(strings.TrimSpace(prefix), strings.TrimSpace(vendor))
	}
	if err := scan.Err(); err != nil {
		return fmt.Errorf("failed to read vendor file: %w", err)
	}
	return nil
}
