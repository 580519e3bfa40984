// Package notify implements the change notifier (C5): per-data-item
// observer lists that the ring buffer signals on every append, and that a
// long-poll streamer waits on between chunks (spec.md §4.4, §4.8).
package notify

import (
	"sync"
	"time"
)

// Observer holds the wait state for one subscriber (typically one HTTP
// streaming request). triggeredSeq is ⊥ (hasValue == false) until signaled;
// signaling keeps the *minimum* of all seen sequences so a streamer waiting
// across several data items wakes at the earliest one that changed.
type Observer struct {
	mu           sync.Mutex
	cond         *sync.Cond
	triggeredSeq uint64
	hasValue     bool
}

func newObserver() *Observer {
	o := &Observer{}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// signal records seq as an interesting sequence and wakes waiters.
func (o *Observer) signal(seq uint64) {
	o.mu.Lock()
	if !o.hasValue || seq < o.triggeredSeq {
		o.triggeredSeq = seq
		o.hasValue = true
	}
	o.mu.Unlock()
	o.cond.Broadcast()
}

// WasSignaled reports whether triggeredSeq is set, without blocking.
func (o *Observer) WasSignaled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hasValue
}

// TriggeredSeq returns the recorded sequence and whether one was set. Must
// be called under the caller's sequence lock per spec.md §4.4's reset
// contract, immediately before Reset.
func (o *Observer) TriggeredSeq() (uint64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.triggeredSeq, o.hasValue
}

// Reset clears triggeredSeq atomically. The streamer calls this while
// holding the sequence lock immediately after draining observations, so no
// append between read and reset is missed (spec.md §4.4).
func (o *Observer) Reset() {
	o.mu.Lock()
	o.hasValue = false
	o.triggeredSeq = 0
	o.mu.Unlock()
}

// Wait blocks up to timeout for a signal, returning true immediately if
// already signaled. Spurious wakeups are permitted by spec.md §4.4; callers
// loop on WasSignaled/elapsed time themselves (see internal/httpapi's
// streamer), this just bounds one wait attempt.
func (o *Observer) Wait(timeout time.Duration) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.hasValue {
		return true
	}

	done := make(chan struct{})
	timer := time.AfterFunc(timeout, func() {
		o.mu.Lock()
		close(done)
		o.mu.Unlock()
		o.cond.Broadcast()
	})
	defer timer.Stop()

	for !o.hasValue {
		select {
		case <-done:
			return o.hasValue
		default:
		}
		o.cond.Wait()
	}
	return true
}

// Notifier owns the per-data-item observer lists. One Notifier is shared by
// the whole agent; internal/buffer.Append signals through it under the
// sequence lock.
type Notifier struct {
	mu        sync.Mutex
	observers map[string][]*Observer
}

// New returns an empty Notifier.
func New() *Notifier {
	return &Notifier{observers: make(map[string][]*Observer)}
}

// Subscribe registers a fresh Observer against one or more data-item ids.
// Subscription is idempotent per id: an id listed more than once registers
// the Observer against it only once. Returns the Observer and an
// unsubscribe closure to be called on stream-scope exit.
func (n *Notifier) Subscribe(ids []string) (*Observer, func()) {
	obs := newObserver()
	n.mu.Lock()
	for _, id := range ids {
		list := n.observers[id]
		already := false
		for _, existing := range list {
			if existing == obs {
				already = true
				break
			}
		}
		if !already {
			n.observers[id] = append(list, obs)
		}
	}
	n.mu.Unlock()

	unsubscribe := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for _, id := range ids {
			list := n.observers[id]
			for i, existing := range list {
				if existing == obs {
					n.observers[id] = append(list[:i], list[i+1:]...)
					break
				}
			}
		}
	}
	return obs, unsubscribe
}

// Signal wakes every observer subscribed to id, recording seq. Called by
// internal/buffer.Append under the sequence lock (spec.md §4.1, §4.4).
func (n *Notifier) Signal(id string, seq uint64) {
	n.mu.Lock()
	list := append([]*Observer(nil), n.observers[id]...)
	n.mu.Unlock()
	for _, o := range list {
		o.signal(seq)
	}
}
