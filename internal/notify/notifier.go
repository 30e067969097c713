package notify

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"psurops/internal/slogutil"
)

// DefaultQueueSize is the per-observer buffer used when Options.QueueSize is zero.
const DefaultQueueSize = 64

// Observer receives events. Deliver is called from the observer's own
// goroutine, one event at a time, in publish order. Returning an error
// unsubscribes the observer.
type Observer interface {
	Deliver(ctx context.Context, e Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event) error

// Deliver calls f.
func (f ObserverFunc) Deliver(ctx context.Context, e Event) error { return f(ctx, e) }

// DropReason explains why an observer was removed.
type DropReason string

const (
	DropFailed   DropReason = "delivery_failed"
	DropOverflow DropReason = "queue_full"
	DropClosed   DropReason = "unsubscribed"
)

// Options configures a Notifier.
type Options struct {
	QueueSize int
	// DeliveryTimeout bounds a single Deliver call; zero means no bound.
	DeliveryTimeout time.Duration
	Logger          *slog.Logger
	Clock           func() time.Time
	// OnPublish and OnDrop are optional instrumentation hooks.
	OnPublish func(e Event, observers int)
	OnDrop    func(name string, reason DropReason)
}

// Notifier is safe for concurrent Subscribe, Unsubscribe and Publish.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	seq    atomic.Uint64

	queueSize int
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
	onPublish func(Event, int)
	onDrop    func(string, DropReason)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type subscription struct {
	id   uint64
	name string
	obs  Observer
	ch   chan Event
	quit chan struct{}
	once sync.Once
}

// New creates a running notifier.
func New(opts Options) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		subs:      make(map[uint64]*subscription),
		queueSize: opts.QueueSize,
		timeout:   opts.DeliveryTimeout,
		logger:    opts.Logger,
		now:       opts.Clock,
		onPublish: opts.OnPublish,
		onDrop:    opts.OnDrop,
		ctx:       ctx,
		cancel:    cancel,
	}
	if n.queueSize <= 0 {
		n.queueSize = DefaultQueueSize
	}
	if n.logger == nil {
		n.logger = slogutil.NewDiscardLogger()
	}
	n.logger = n.logger.With("component", "notify")
	if n.now == nil {
		n.now = time.Now
	}
	return n
}

// Subscribe registers o under name and returns a function that removes it.
func (n *Notifier) Subscribe(name string, o Observer) (unsubscribe func()) {
	n.mu.Lock()
	n.nextID++
	s := &subscription{
		id:   n.nextID,
		name: name,
		obs:  o,
		ch:   make(chan Event, n.queueSize),
		quit: make(chan struct{}),
	}
	n.subs[s.id] = s
	n.mu.Unlock()

	n.wg.Add(1)
	go n.run(s)

	n.logger.Debug("observer subscribed", "observer", name, "id", s.id)
	return func() { n.drop(s.id, DropClosed) }
}

// Publish stamps and enqueues an event for every observer without waiting
// for any of them.
func (n *Notifier) Publish(kind EventKind, payload map[string]interface{}) Event {
	e := Event{
		ID:        uuid.New().String(),
		Seq:       n.seq.Add(1),
		Kind:      kind,
		Payload:   payload,
		Timestamp: n.now().UTC(),
	}

	var overflow []uint64
	n.mu.RLock()
	count := len(n.subs)
	for id, s := range n.subs {
		select {
		case s.ch <- e:
		default:
			overflow = append(overflow, id)
		}
	}
	n.mu.RUnlock()

	for _, id := range overflow {
		n.drop(id, DropOverflow)
	}
	if n.onPublish != nil {
		n.onPublish(e, count)
	}
	return e
}

// Subscribers returns the names of the current observers, sorted.
func (n *Notifier) Subscribers() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	names := make([]string, 0, len(n.subs))
	for _, s := range n.subs {
		names = append(names, s.name)
	}
	sort.Strings(names)
	return names
}

// Close stops every delivery goroutine and waits for them to exit. Events
// still queued are discarded.
func (n *Notifier) Close() {
	n.cancel()
	n.mu.Lock()
	for id, s := range n.subs {
		delete(n.subs, id)
		s.stop()
	}
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *Notifier) drop(id uint64, reason DropReason) {
	n.mu.Lock()
	s, ok := n.subs[id]
	if ok {
		delete(n.subs, id)
	}
	n.mu.Unlock()
	if !ok {
		return
	}
	s.stop()
	if reason != DropClosed {
		n.logger.Warn("observer dropped", "observer", s.name, "reason", string(reason))
	}
	if n.onDrop != nil {
		n.onDrop(s.name, reason)
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.quit) })
}

func (n *Notifier) run(s *subscription) {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-s.quit:
			return
		case e := <-s.ch:
			if err := n.deliver(s, e); err != nil {
				n.logger.Debug("delivery failed", "observer", s.name, "event", e.ID, "error", err)
				n.drop(s.id, DropFailed)
				return
			}
		}
	}
}

func (n *Notifier) deliver(s *subscription, e Event) (err error) {
	ctx := n.ctx
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			err = panicError{p}
		}
	}()
	return s.obs.Deliver(ctx, e)
}

type panicError struct{ v interface{} }

func (p panicError) Error() string { return "observer panicked" }
