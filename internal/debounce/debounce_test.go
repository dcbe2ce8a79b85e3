package debounce

import (
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	fired []fired
}

type fired struct {
	key     string
	payload any
}

func (r *recorder) record(key string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, fired{key, payload})
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func (r *recorder) last() (fired, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.fired) == 0 {
		return fired{}, false
	}
	return r.fired[len(r.fired)-1], true
}

func TestBurstCoalescesToOne(t *testing.T) {
	rec := &recorder{}
	c := New(30*time.Millisecond, rec.record)
	defer c.Stop()

	for i := 0; i < 10; i++ {
		c.Trigger("file:///a.go", i)
		time.Sleep(2 * time.Millisecond)
	}

	time.Sleep(80 * time.Millisecond)

	if got := rec.count(); got != 1 {
		t.Fatalf("fired %d times, want 1", got)
	}
	f, _ := rec.last()
	if f.payload != 9 {
		t.Errorf("payload = %v, want last trigger's payload 9", f.payload)
	}
}

func TestIndependentKeys(t *testing.T) {
	rec := &recorder{}
	c := New(20*time.Millisecond, rec.record)
	defer c.Stop()

	c.Trigger("a", 1)
	c.Trigger("b", 2)

	time.Sleep(60 * time.Millisecond)

	if got := rec.count(); got != 2 {
		t.Errorf("fired %d times, want 2 (one per key)", got)
	}
}

func TestFlush(t *testing.T) {
	rec := &recorder{}
	c := New(time.Hour, rec.record)
	defer c.Stop()

	c.Trigger("a", "payload")
	if !c.Flush("a") {
		t.Fatal("Flush should report a firing")
	}
	if got := rec.count(); got != 1 {
		t.Fatalf("fired %d times, want 1", got)
	}
	if c.Pending("a") {
		t.Error("key should no longer be pending after flush")
	}
	if c.Flush("a") {
		t.Error("second flush should be a no-op")
	}
}

func TestCancel(t *testing.T) {
	rec := &recorder{}
	c := New(20*time.Millisecond, rec.record)
	defer c.Stop()

	c.Trigger("a", 1)
	c.Cancel("a")

	time.Sleep(60 * time.Millisecond)

	if got := rec.count(); got != 0 {
		t.Errorf("fired %d times after cancel, want 0", got)
	}
}

func TestRearmedKeyIgnoresStaleFiring(t *testing.T) {
	rec := &recorder{}
	c := New(time.Hour, rec.record)
	defer c.Stop()

	c.Trigger("a", "old")
	c.Trigger("a", "new")

	// Simulates a timer callback that was already scheduled when the second
	// trigger re-armed the key. It must not deliver before the window.
	c.fire("a")

	if got := rec.count(); got != 0 {
		t.Fatalf("fired %d times before the window elapsed, want 0", got)
	}
	if !c.Pending("a") {
		t.Fatal("pending trigger lost to a stale firing")
	}
	if !c.Flush("a") {
		t.Fatal("Flush should report a firing")
	}
	f, _ := rec.last()
	if f.payload != "new" {
		t.Errorf("payload = %v, want the latest trigger's payload", f.payload)
	}
}

func TestStopRejectsTriggers(t *testing.T) {
	rec := &recorder{}
	c := New(10*time.Millisecond, rec.record)

	c.Trigger("a", 1)
	c.Stop()
	c.Trigger("b", 2)

	time.Sleep(40 * time.Millisecond)

	if got := rec.count(); got != 0 {
		t.Errorf("fired %d times after stop, want 0", got)
	}
}

func TestFlushAll(t *testing.T) {
	rec := &recorder{}
	c := New(time.Hour, rec.record)
	defer c.Stop()

	c.Trigger("a", 1)
	c.Trigger("b", 2)
	c.FlushAll()

	if got := rec.count(); got != 2 {
		t.Errorf("fired %d times, want 2", got)
	}
}
