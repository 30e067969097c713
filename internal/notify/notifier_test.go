package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	got    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 1024)}
}

func (r *recorder) Deliver(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.got <- struct{}{}
	return nil
}

func (r *recorder) wait(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-r.got:
		case <-deadline:
			t.Fatalf("timed out after %d of %d events", i, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestPublish_InOrderPerObserver(t *testing.T) {
	n := New(Options{QueueSize: 16})
	defer n.Close()

	a, b := newRecorder(), newRecorder()
	n.Subscribe("a", a)
	n.Subscribe("b", b)

	for i := 0; i < 10; i++ {
		n.Publish(EventUpdate, map[string]interface{}{"i": i})
	}

	for _, r := range []*recorder{a, b} {
		events := r.wait(t, 10)
		for i, e := range events {
			if e.Payload["i"] != i {
				t.Fatalf("event %d has payload %v", i, e.Payload["i"])
			}
			if i > 0 && e.Seq <= events[i-1].Seq {
				t.Fatalf("sequence not increasing at %d", i)
			}
		}
	}
}

func TestPublish_FailingObserverDropped(t *testing.T) {
	var dropped sync.WaitGroup
	dropped.Add(1)
	n := New(Options{OnDrop: func(name string, reason DropReason) {
		if name == "bad" && reason == DropFailed {
			dropped.Done()
		}
	}})
	defer n.Close()

	good := newRecorder()
	n.Subscribe("bad", ObserverFunc(func(context.Context, Event) error { return errors.New("socket closed") }))
	n.Subscribe("good", good)

	n.Publish(EventAdd, nil)
	dropped.Wait()

	n.Publish(EventDelete, nil)
	events := good.wait(t, 2)
	if events[1].Kind != EventDelete {
		t.Errorf("second event kind = %s", events[1].Kind)
	}
	if subs := n.Subscribers(); len(subs) != 1 || subs[0] != "good" {
		t.Errorf("Subscribers() = %v", subs)
	}
}

func TestPublish_SlowObserverDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	n := New(Options{QueueSize: 1})
	defer func() {
		close(release)
		n.Close()
	}()

	n.Subscribe("slow", ObserverFunc(func(ctx context.Context, e Event) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}))
	fast := newRecorder()
	n.Subscribe("fast", fast)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			n.Publish(EventUpdate, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow observer")
	}

	for _, name := range n.Subscribers() {
		if name == "slow" {
			t.Error("slow observer should have been dropped on overflow")
		}
	}
}

func TestPublish_PanickingObserverDropped(t *testing.T) {
	dropped := make(chan struct{})
	n := New(Options{OnDrop: func(string, DropReason) { close(dropped) }})
	defer n.Close()

	n.Subscribe("panics", ObserverFunc(func(context.Context, Event) error { panic("boom") }))
	n.Publish(EventAdd, nil)

	select {
	case <-dropped:
	case <-time.After(2 * time.Second):
		t.Fatal("panicking observer was not dropped")
	}
}

func TestUnsubscribe(t *testing.T) {
	n := New(Options{})
	defer n.Close()

	r := newRecorder()
	unsubscribe := n.Subscribe("r", r)
	unsubscribe()
	unsubscribe()

	n.Publish(EventAdd, nil)
	if len(n.Subscribers()) != 0 {
		t.Errorf("Subscribers() = %v", n.Subscribers())
	}
}

func TestConcurrentSubscribePublish(t *testing.T) {
	n := New(Options{QueueSize: 256})
	defer n.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := n.Subscribe("tmp", newRecorder())
			unsub()
		}()
		go func() {
			defer wg.Done()
			n.Publish(EventUpdate, nil)
		}()
	}
	wg.Wait()
}

func TestPublish_Hook(t *testing.T) {
	var seen []EventKind
	n := New(Options{OnPublish: func(e Event, observers int) { seen = append(seen, e.Kind) }})
	defer n.Close()

	e := n.Publish(EventReload, map[string]interface{}{"count": 3})
	if e.ID == "" || e.Timestamp.IsZero() {
		t.Errorf("event not stamped: %+v", e)
	}
	if len(seen) != 1 || seen[0] != EventReload {
		t.Errorf("hook saw %v", seen)
	}
}
