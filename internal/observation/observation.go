// Package observation defines the Observation value type (C2): one
// timestamped value tied to a data item, shaped according to the data
// item's category and representation per spec.md §3.
package observation

import (
	"time"

	"github.com/mtconnect-org/agent/internal/model"
)

// Unavailable is the sentinel value spec.md uses for VALUE+SAMPLE,
// VALUE+EVENT, and CONDITION observations that have no reading.
const Unavailable = "UNAVAILABLE"

// Level is a CONDITION observation's severity.
type Level string

const (
	LevelNormal      Level = "NORMAL"
	LevelWarning     Level = "WARNING"
	LevelFault       Level = "FAULT"
	LevelUnavailable Level = "UNAVAILABLE"
)

// Condition is the parsed value of a CONDITION observation plus the
// previous-link that forms the active-condition chain (spec.md §3, §4.3).
// The chain is an immutable singly-linked list: Previous is never mutated
// once an Observation is constructed, only replaced wholesale by
// checkpoint.Add (spec.md §9's copy-on-write design note).
type Condition struct {
	Level          Level
	NativeCode     string
	NativeSeverity string
	Qualifier      string
	Description    string

	// Previous is the next-older active entry in the chain, or nil if this
	// is the last one. Forms a singly-linked list headed by the Checkpoint
	// entry at this data item's id.
	Previous *Observation
}

// TimeSeries is the parsed value of a TIME_SERIES observation.
type TimeSeries struct {
	SampleCount int
	SampleRate  float64
	HasRate     bool
	Samples     []float64
}

// Value is a sum type over the shapes spec.md §3 defines. Exactly one
// field beyond IsUnavailable is meaningful, selected by the owning
// DataItem's Category/Representation.
type Value struct {
	IsUnavailable bool

	// Number/String hold a VALUE+SAMPLE numeric reading (post unit-conversion) or
	// a VALUE+EVENT numeric/string reading. Use HasNumber/HasString to tell
	// which is populated.
	Number    float64
	HasNumber bool
	String    string
	HasString bool

	TimeSeries *TimeSeries
	Condition  *Condition
}

// UnavailableValue is the canonical UNAVAILABLE value.
func UnavailableValue() Value { return Value{IsUnavailable: true} }

// NumberValue wraps a numeric scalar reading.
func NumberValue(n float64) Value { return Value{HasNumber: true, Number: n} }

// StringValue wraps a string scalar reading.
func StringValue(s string) Value { return Value{HasString: true, String: s} }

// Observation is one timestamped value tied to a data item. Sequence is
// assigned by the ring buffer at append time and never changes thereafter;
// Observations are immutable once constructed (spec.md §4.1 concurrency
// note, §9 "reference-counted observation handles" design note — ref
// counting doesn't translate, but the immutability it exists to protect
// does).
type Observation struct {
	DataItem  *model.DataItem
	Sequence  uint64
	Timestamp time.Time
	Duration  time.Duration // optional @duration suffix, zero if absent
	HasDuration bool
	Value     Value
}

// IsUnavailable reports whether this observation's value is the
// UNAVAILABLE sentinel (true for scalar UNAVAILABLE and for
// Condition.Level == LevelUnavailable).
func (o *Observation) IsUnavailable() bool {
	if o == nil {
		return true
	}
	if o.Value.IsUnavailable {
		return true
	}
	if o.Value.Condition != nil && o.Value.Condition.Level == LevelUnavailable {
		return true
	}
	return false
}
