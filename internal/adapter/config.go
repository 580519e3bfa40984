// Package adapter implements the SHDR connector (C7): one TCP connection
// per configured adapter, running the {Disconnected -> Connecting ->
// Connected -> Disconnected} state machine of spec.md §4.5, parsing the
// SHDR grammar, and routing parsed values into the ring buffer. Grounded
// on original_source/agent/connector.cpp (state machine, heartbeat
// protocol, parseBuffer framing) and original_source/agent/adapter.cpp
// (per-line device:item routing).
package adapter

import "time"

// Config is one adapter's configuration (spec.md §6's per-adapter surface).
type Config struct {
	Name    string // adapter instance name, used in logs and dataSource tagging
	Host    string
	Port    int
	Device  string // primary device uuid or name this adapter feeds

	PreserveUUID         bool
	FilterDuplicates     bool
	AutoAvailable        bool
	IgnoreTimestamps     bool
	ConversionRequired   bool
	RelativeTime         bool
	UpcaseDataItemValue  bool
	AdditionalDevices    []string

	ReconnectInterval time.Duration // default 10s
	LegacyTimeout     time.Duration // default 600s
}

// DefaultReconnectInterval and DefaultLegacyTimeout are spec.md §4.5's
// documented defaults, applied by internal/config when an adapter entry
// omits them.
const (
	DefaultReconnectInterval = 10 * time.Second
	DefaultLegacyTimeout     = 600 * time.Second
	// MaxHeartbeat is the 30-minute cap original_source/agent/connector.cpp's
	// startHeartbeats applies to a negotiated PONG frequency — kept
	// separate from the HTTP streamer's 600s bound per spec.md §9's second
	// open question.
	MaxHeartbeat = 30 * time.Minute
)
