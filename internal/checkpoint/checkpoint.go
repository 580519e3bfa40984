// Package checkpoint implements the Checkpoint map (C3): a snapshot of the
// latest observation per data item, with the condition-chain state machine
// spec.md §4.3 defines for CONDITION data items. A Checkpoint carries no
// locking of its own — callers (internal/buffer) serialize access under
// their own sequence lock per spec.md §4.1's concurrency note.
package checkpoint

import (
	"github.com/mtconnect-org/agent/internal/observation"
)

// Checkpoint is map<data-item-id, Observation>. For CONDITION data items the
// stored Observation is the head of an active-condition chain; Snapshot
// flattens the whole chain, Add applies the splice rules below.
type Checkpoint struct {
	entries map[string]*observation.Observation
}

// New returns an empty Checkpoint.
func New() *Checkpoint {
	return &Checkpoint{entries: make(map[string]*observation.Observation)}
}

// Add records obs at its data item's id. Non-condition items simply replace
// the prior entry. Condition items run the chain-splice rules of spec.md
// §4.3.
func (c *Checkpoint) Add(obs *observation.Observation) {
	if obs == nil || obs.DataItem == nil {
		return
	}
	id := obs.DataItem.ID
	if !obs.DataItem.IsCondition() || obs.Value.Condition == nil {
		c.entries[id] = obs
		return
	}
	c.entries[id] = spliceCondition(c.entries[id], obs)
}

// spliceCondition implements spec.md §4.3 rules 1-4. prev is the existing
// chain head at this data item (possibly nil), ev is the incoming condition
// observation.
func spliceCondition(prev *observation.Observation, ev *observation.Observation) *observation.Observation {
	cond := ev.Value.Condition

	// Rule 3: UNAVAILABLE replaces the whole chain unconditionally.
	if cond.Level == observation.LevelUnavailable {
		return ev
	}

	// Rule 1: global clear — NORMAL with no native code replaces the chain.
	if cond.Level == observation.LevelNormal && cond.NativeCode == "" {
		return ev
	}

	// Rule 2: NORMAL clearing one specific code.
	if cond.Level == observation.LevelNormal {
		rest, removed := removeCode(prev, cond.NativeCode)
		if !removed {
			// No matching entry existed; record but don't introduce a new
			// active entry — the chain is unchanged.
			return prev
		}
		if rest == nil {
			// Emptying the chain: head becomes a synthetic NORMAL with the
			// code cleared, carrying the incoming observation's metadata.
			synthetic := *ev
			syntheticCond := *cond
			syntheticCond.NativeCode = ""
			synthetic.Value.Condition = &syntheticCond
			return &synthetic
		}
		return rest
	}

	// Rule 4: WARNING or FAULT with a code — remove any existing entry with
	// the same code (copy-on-write), then prepend ev. A NORMAL or UNAVAILABLE
	// head is not an active entry, so ev starts a new chain instead.
	rest, _ := removeCode(prev, cond.NativeCode)
	if rest != nil && (rest.Value.Condition == nil ||
		rest.Value.Condition.Level == observation.LevelNormal ||
		rest.Value.Condition.Level == observation.LevelUnavailable) {
		rest = nil
	}
	spliced := *ev
	splicedCond := *cond
	splicedCond.Previous = rest
	spliced.Value.Condition = &splicedCond
	return &spliced
}

// removeCode returns a copy of the chain rooted at head with the entry
// whose NativeCode == code excised (copy-on-write along the path to it),
// and whether such an entry was found.
func removeCode(head *observation.Observation, code string) (*observation.Observation, bool) {
	if head == nil || head.Value.Condition == nil {
		return head, false
	}
	if head.Value.Condition.NativeCode == code {
		return head.Value.Condition.Previous, true
	}
	restHead, found := removeCode(head.Value.Condition.Previous, code)
	if !found {
		return head, false
	}
	copied := *head
	copiedCond := *head.Value.Condition
	copiedCond.Previous = restHead
	copied.Value.Condition = &copiedCond
	return &copied, true
}

// CopyFiltered returns a deep copy of this Checkpoint, optionally retaining
// only the ids in filter. A nil or empty filter copies everything.
func (c *Checkpoint) CopyFiltered(filter []string) *Checkpoint {
	out := New()
	if len(filter) == 0 {
		for id, obs := range c.entries {
			out.entries[id] = obs
		}
		return out
	}
	for _, id := range filter {
		if obs, ok := c.entries[id]; ok {
			out.entries[id] = obs
		}
	}
	return out
}

// Snapshot flattens the Checkpoint into an observation list. Condition
// chains emit every entry, head first; every other data item emits its one
// current observation. A nil or empty filter includes every registered id.
func (c *Checkpoint) Snapshot(filter []string) []*observation.Observation {
	ids := filter
	if len(ids) == 0 {
		ids = make([]string, 0, len(c.entries))
		for id := range c.entries {
			ids = append(ids, id)
		}
	}
	var out []*observation.Observation
	for _, id := range ids {
		obs, ok := c.entries[id]
		if !ok {
			continue
		}
		if obs.DataItem != nil && obs.DataItem.IsCondition() {
			for node := obs; node != nil; {
				out = append(out, node)
				if node.Value.Condition == nil {
					break
				}
				node = node.Value.Condition.Previous
			}
			continue
		}
		out = append(out, obs)
	}
	return out
}

// Get returns the raw entry (chain head, for conditions) at id.
func (c *Checkpoint) Get(id string) (*observation.Observation, bool) {
	obs, ok := c.entries[id]
	return obs, ok
}
