// internal/gateway/feed.go
package gateway

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tamzrod/benchlab-telemetry/internal/cache"
	"github.com/tamzrod/benchlab-telemetry/internal/metrics"
	"github.com/tamzrod/benchlab-telemetry/internal/sensor"
)

// Feed is the per-device cache plus its subscriber hub.
//
// The owning poller is the only writer. Publish stores into the window and
// then offers the reading to every subscriber with a non-blocking send, so
// delivery never depends on the window's capacity and never stalls the
// poller. A subscriber whose buffer is full is dropped with ErrSlowConsumer.
type Feed struct {
	uid    string
	win    *cache.Window[sensor.Reading]
	buffer int
	log    *slog.Logger
	m      *metrics.Metrics

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

func newFeed(uid string, history, buffer int, log *slog.Logger, m *metrics.Metrics) (*Feed, error) {
	win, err := cache.New[sensor.Reading](history)
	if err != nil {
		return nil, err
	}

	return &Feed{
		uid:    uid,
		win:    win,
		buffer: buffer,
		log:    log.With("uid", uid),
		m:      m,
		subs:   make(map[string]*Subscription),
	}, nil
}

// UID returns the device this feed belongs to.
func (f *Feed) UID() string { return f.uid }

// Publish stamps r with the next sequence number and makes it visible to
// queries and subscribers. Single writer only.
func (f *Feed) Publish(r sensor.Reading) {
	r.Seq = f.win.Head() + 1
	f.win.Push(r)

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.subs {
		// subscribed after this reading was stored
		if r.Seq <= s.after {
			continue
		}
		select {
		case s.ch <- r:
		default:
			f.dropLocked(s, ErrSlowConsumer)
		}
	}
}

// Latest returns the newest reading.
func (f *Feed) Latest() (sensor.Reading, bool) { return f.win.Latest() }

// History returns up to n readings, oldest first.
func (f *Feed) History(n int) []sensor.Reading { return f.win.History(n) }

// Subscribers returns the number of open subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// subscribe registers a consumer. Readings stored before the lock is taken
// are history; every later one is delivered.
func (f *Feed) subscribe() (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrShuttingDown
	}

	ch := make(chan sensor.Reading, f.buffer)
	s := &Subscription{
		ID:    uuid.NewString(),
		UID:   f.uid,
		C:     ch,
		ch:    ch,
		after: f.win.Head(),
		feed:  f,
		done:  make(chan struct{}),
	}
	f.subs[s.ID] = s

	f.m.SubscriberAdded(f.uid)
	f.log.Debug("subscriber added", "subscription", s.ID, "after", s.after)
	return s, nil
}

func (f *Feed) remove(s *Subscription, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropLocked(s, err)
}

func (f *Feed) dropLocked(s *Subscription, err error) {
	if _, ok := f.subs[s.ID]; !ok {
		return
	}
	delete(f.subs, s.ID)

	s.err = err
	close(s.ch)
	close(s.done)

	f.m.SubscriberRemoved(f.uid, err == ErrSlowConsumer)
	if err == ErrSlowConsumer {
		f.log.Warn("subscriber dropped", "subscription", s.ID, "error", err)
	} else {
		f.log.Debug("subscriber removed", "subscription", s.ID)
	}
}

// close ends every subscription with ErrShuttingDown.
// The cache stays readable.
func (f *Feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for _, s := range f.subs {
		f.dropLocked(s, ErrShuttingDown)
	}
}

// ------------------------------------------------------------
// Subscription
// ------------------------------------------------------------

// Subscription is one consumer's live view of a device.
// C is closed when the subscription ends; Err then reports why.
type Subscription struct {
	ID  string
	UID string
	C   <-chan sensor.Reading

	ch    chan sensor.Reading
	after uint64 // readings with Seq <= after predate the subscription
	feed  *Feed
	done  chan struct{}
	err   error // written before done is closed
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns nil while open or after Close, ErrSlowConsumer or
// ErrShuttingDown otherwise.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close ends the subscription. Idempotent.
func (s *Subscription) Close() { s.feed.remove(s, nil) }
