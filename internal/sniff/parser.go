// Package sniff turns raw probe-request capture lines into device sightings.
//
// The capture stream is the verbose text output of a link-layer capture tool.
// Most lines carry no usable tokens at all; that is the normal case, not an
// error. A line is only a sighting when it contains both a source address
// marker ("SA:<mac>") and a signal strength marker ("<n>dBm signal").
package sniff

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	macPattern    = regexp.MustCompile(`SA:([0-9a-fA-F:]+)`)
	signalPattern = regexp.MustCompile(`(-\d+)dBm signal`)
)

// Sighting is one observed instance of a device's radio signal at a point in
// time. It is ephemeral: consumed immediately by the device registry and
// never persisted as its own entity.
type Sighting struct {
	// MAC is the source address, normalized to lower case.
	MAC string

	// Signal is the received signal strength in dBm (negative).
	Signal int

	// ObservedAt is the wall-clock time the line was parsed.
	ObservedAt time.Time
}

// VendorPrefix returns the first three octets of the sighting's MAC, the key
// used for vendor lookup.
func (s Sighting) VendorPrefix() string {
	return Prefix(s.MAC)
}

// Prefix extracts the three-octet vendor prefix from a colon-separated MAC.
// Returns the empty string if the address is too short to carry one.
func Prefix(mac string) string {
	if len(mac) < 8 {
		return ""
	}
	return strings.ToLower(mac[:8])
}

// ParseLine extracts a Sighting from one line of capture output, stamping it
// with the provided observation time. The second return value is false when
// the line lacks either marker; such lines are dropped silently upstream.
func ParseLine(line string, now time.Time) (Sighting, bool) {
	macMatch := macPattern.FindStringSubmatch(line)
	if macMatch == nil {
		return Sighting{}, false
	}
	signalMatch := signalPattern.FindStringSubmatch(line)
	if signalMatch == nil {
		return Sighting{}, false
	}

	signal, err := strconv.Atoi(signalMatch[1])
	if err != nil {
		// Unreachable with the pattern above, but never let a capture
		// line take down the producer.
		return Sighting{}, false
	}

	return Sighting{
		MAC:        strings.ToLower(macMatch[1]),
		Signal:     signal,
		ObservedAt: now,
	}, true
}
