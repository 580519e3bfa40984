// Package buffer implements the ring buffer (C4): a power-of-two circular
// store of observations plus the latest/periodic/first checkpoints that
// bound the cost of a current-at-sequence query (spec.md §4.1).
package buffer

import (
	"sync"
	"time"

	"github.com/mtconnect-org/agent/internal/checkpoint"
	"github.com/mtconnect-org/agent/internal/model"
	"github.com/mtconnect-org/agent/internal/notify"
	"github.com/mtconnect-org/agent/internal/observation"
)

// Buffer is the sequence-locked ring buffer. append, and every read that
// touches nextSeq/firstSeq, take mu — the "sequence lock" spec.md §5
// describes. Observation values themselves are immutable once stored, so
// callers may release mu after snapshotting references and before
// serializing them.
type Buffer struct {
	mu sync.Mutex

	capacity        uint64 // power of two
	checkpointFreq  uint64
	slots           []*observation.Observation
	nextSeq         uint64 // next sequence to assign; starts at 1
	latest          *checkpoint.Checkpoint
	periodic        map[uint64]*checkpoint.Checkpoint // keyed by seq/checkpointFreq
	first           *checkpoint.Checkpoint

	notifier *notify.Notifier
}

// New returns an empty Buffer. capacity must already be a power of two
// (internal/config validates the configured exponent); checkpointFreq is
// the spacing, in sequence numbers, between periodic checkpoints.
func New(capacity uint64, checkpointFreq uint64, notifier *notify.Notifier) *Buffer {
	return &Buffer{
		capacity:       capacity,
		checkpointFreq: checkpointFreq,
		slots:          make([]*observation.Observation, capacity),
		nextSeq:        1,
		latest:         checkpoint.New(),
		periodic:       make(map[uint64]*checkpoint.Checkpoint),
		first:          checkpoint.New(),
		notifier:       notifier,
	}
}

// firstSeqLocked returns firstSeq = max(1, nextSeq-N). Caller must hold mu.
func (b *Buffer) firstSeqLocked() uint64 {
	if b.nextSeq <= b.capacity {
		return 1
	}
	return b.nextSeq - b.capacity
}

// Append assigns the next sequence number to a new observation built from
// di/value/timestamp (unit conversion and dedup/filter decisions are made
// upstream by internal/adapter or internal/httpapi, per spec.md §4.1), and
// stores it. It updates latest and, when due, a periodic checkpoint, then
// wakes any observer subscribed to this data item. Constant data items
// (spec.md §13.5) are rejected after their first observation, signaled by a
// returned sequence of 0.
func (b *Buffer) Append(di *model.DataItem, value observation.Value, timestamp time.Time) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if di.IsConstant() {
		if _, ok := b.latest.Get(di.ID); ok {
			return 0
		}
	}

	seq := b.nextSeq
	b.nextSeq++

	obs := &observation.Observation{
		DataItem:  di,
		Sequence:  seq,
		Timestamp: timestamp,
		Value:     value,
	}

	idx := seq % b.capacity
	if evicted := b.slots[idx]; evicted != nil {
		// Once the buffer has wrapped, every append overwrites the oldest
		// slot. first must hold the checkpoint at the new firstSeq: it
		// absorbs the observation being overwritten (already absorbed on
		// every wrap but the first, where it is sequence 1) and then the
		// observation at the new firstSeq.
		b.first.Add(evicted)
		newFirstSeq := b.firstSeqLocked()
		if atFirst := b.slots[newFirstSeq%b.capacity]; atFirst != nil {
			b.first.Add(atFirst)
		}
	}
	b.slots[idx] = obs

	b.latest.Add(obs)

	if seq%b.checkpointFreq == 0 {
		b.periodic[seq/b.checkpointFreq] = b.latest.CopyFiltered(nil)
	}

	if b.notifier != nil {
		b.notifier.Signal(di.ID, seq)
	}

	return seq
}

// Get returns the observation at seq, or (nil, false) if seq has fallen out
// of the retained window or hasn't been assigned yet.
func (b *Buffer) Get(seq uint64) (*observation.Observation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if seq < b.firstSeqLocked() || seq >= b.nextSeq {
		return nil, false
	}
	obs := b.slots[seq%b.capacity]
	return obs, obs != nil
}

// Snapshot returns (nextSeq, firstSeq) atomically.
func (b *Buffer) Snapshot() (nextSeq, firstSeq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextSeq, b.firstSeqLocked()
}

// contains reports whether id is present in filter, or filter is empty
// (meaning "every id").
func contains(filter []string, id string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == id {
			return true
		}
	}
	return false
}

// Range returns up to count observations whose data-item id is in filter,
// starting at max(start, firstSeq) and advancing one sequence per inspected
// slot (spec.md §4.1). endSeq is the first sequence not included; atEnd
// reports endSeq >= nextSeq.
func (b *Buffer) Range(filter []string, start uint64, count int) (obs []*observation.Observation, endSeq uint64, atEnd bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	firstSeq := b.firstSeqLocked()
	s := start
	if s < firstSeq {
		s = firstSeq
	}

	for s < b.nextSeq && len(obs) < count {
		o := b.slots[s%b.capacity]
		s++
		if o == nil {
			continue
		}
		if contains(filter, o.DataItem.ID) {
			obs = append(obs, o)
		}
	}
	return obs, s, s >= b.nextSeq
}

// CurrentAt returns, for each id in filter, the observation whose sequence
// is the largest <= at. It starts from the nearest periodic checkpoint
// <= at (or first, if at has fallen before firstSeq) and replays forward
// (spec.md §4.1).
func (b *Buffer) CurrentAt(filter []string, at uint64) []*observation.Observation {
	b.mu.Lock()
	defer b.mu.Unlock()

	firstSeq := b.firstSeqLocked()
	if at >= b.nextSeq {
		at = b.nextSeq - 1
	}

	var base *checkpoint.Checkpoint
	var replayFrom uint64

	if at < firstSeq {
		base = b.first.CopyFiltered(filter)
		return base.Snapshot(filter)
	}

	k := at / b.checkpointFreq
	if cp, ok := b.periodic[k]; ok && k*b.checkpointFreq >= firstSeq {
		base = cp.CopyFiltered(filter)
		replayFrom = k*b.checkpointFreq + 1
	} else {
		base = b.first.CopyFiltered(filter)
		replayFrom = firstSeq
	}

	for s := replayFrom; s <= at; s++ {
		o := b.slots[s%b.capacity]
		if o == nil {
			continue
		}
		if contains(filter, o.DataItem.ID) {
			base.Add(o)
		}
	}
	return base.Snapshot(filter)
}

// Latest returns the snapshot of the live latest checkpoint (spec.md P4:
// CurrentAt(filter, nextSeq-1) == Latest(filter)).
func (b *Buffer) Latest(filter []string) []*observation.Observation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest.CopyFiltered(filter).Snapshot(filter)
}
