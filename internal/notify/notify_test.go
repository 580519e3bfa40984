package notify

import (
	"testing"
	"time"
)

func TestSubscribeAndSignal(t *testing.T) {
	n := New()
	obs, unsubscribe := n.Subscribe([]string{"x1"})
	defer unsubscribe()

	if obs.WasSignaled() {
		t.Fatal("fresh observer should not be signaled")
	}
	n.Signal("x1", 7)
	if !obs.WasSignaled() {
		t.Fatal("expected observer to be signaled after Notifier.Signal")
	}
	seq, ok := obs.TriggeredSeq()
	if !ok || seq != 7 {
		t.Errorf("TriggeredSeq = (%d, %v), want (7, true)", seq, ok)
	}
}

func TestSignal_KeepsMinimumSequence(t *testing.T) {
	n := New()
	obs, unsubscribe := n.Subscribe([]string{"a", "b"})
	defer unsubscribe()

	n.Signal("a", 10)
	n.Signal("b", 3)
	seq, ok := obs.TriggeredSeq()
	if !ok || seq != 3 {
		t.Errorf("TriggeredSeq = (%d, %v), want (3, true) (minimum across ids)", seq, ok)
	}
}

func TestReset_ClearsSignal(t *testing.T) {
	n := New()
	obs, unsubscribe := n.Subscribe([]string{"x"})
	defer unsubscribe()

	n.Signal("x", 1)
	obs.Reset()
	if obs.WasSignaled() {
		t.Fatal("Reset should clear the signaled state")
	}
}

func TestUnsubscribe_StopsFutureSignals(t *testing.T) {
	n := New()
	obs, unsubscribe := n.Subscribe([]string{"y"})
	unsubscribe()
	n.Signal("y", 99)
	if obs.WasSignaled() {
		t.Error("observer should not be signaled after unsubscribe")
	}
}

func TestWait_ReturnsImmediatelyWhenAlreadySignaled(t *testing.T) {
	n := New()
	obs, unsubscribe := n.Subscribe([]string{"z"})
	defer unsubscribe()
	n.Signal("z", 1)

	if !obs.Wait(time.Second) {
		t.Fatal("Wait should return true immediately for an already-signaled observer")
	}
}

func TestWait_TimesOutWithoutSignal(t *testing.T) {
	n := New()
	obs, unsubscribe := n.Subscribe([]string{"w"})
	defer unsubscribe()

	start := time.Now()
	if obs.Wait(20 * time.Millisecond) {
		t.Fatal("Wait should time out and return false")
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Error("Wait returned too early for an unsignaled observer")
	}
}

func TestWait_WakesOnSignalFromAnotherGoroutine(t *testing.T) {
	n := New()
	obs, unsubscribe := n.Subscribe([]string{"v"})
	defer unsubscribe()

	go func() {
		time.Sleep(10 * time.Millisecond)
		n.Signal("v", 5)
	}()

	if !obs.Wait(time.Second) {
		t.Fatal("expected Wait to wake on signal")
	}
}

func TestSubscribe_IdempotentForSameObserverID(t *testing.T) {
	n := New()
	_, unsubscribe := n.Subscribe([]string{"dup", "dup"})
	defer unsubscribe()
	// Subscribing to the same id twice in one call must not register the
	// observer twice.
	if got := len(n.observers["dup"]); got != 1 {
		t.Errorf("observers registered for dup = %d, want 1", got)
	}
	n.Signal("dup", 1)
}
