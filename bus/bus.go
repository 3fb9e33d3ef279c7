package bus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

const (
	defaultQueueSize   = 1024
	defaultHistorySize = 1000
)

// Handler consumes a message delivered to a subscriber. Returning an error
// counts the delivery as failed without affecting other subscribers.
type Handler func(msg core.Message) error

// Stats is a point-in-time snapshot of bus activity.
type Stats struct {
	Sent        uint64
	Delivered   uint64
	Failed      uint64
	QueueLength int
	HistorySize int
	Subscribers map[string]int
}

// Options configures the bus.
type Options struct {
	// QueueSize bounds the publish queue. A full queue drops instead of
	// blocking the publisher.
	QueueSize int

	// HistorySize bounds the retained message history; older entries are
	// evicted first.
	HistorySize int

	// Logger receives delivery activity.
	Logger logging.Logger
}

// Bus moves messages from publishers to subscribers through a single
// consumer goroutine, so handlers for one recipient never run concurrently
// with each other. Publishing is safe from any goroutine, including from
// inside a handler.
type Bus struct {
	logger  logging.Logger
	inbound chan core.Message
	history *lru.Cache[string, core.Message]

	sent      atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64

	mu       sync.RWMutex
	handlers map[string][]Handler

	stateMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates a bus. Messages may be published before Start; they wait in
// the queue until the consumer runs.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{
		QueueSize:   defaultQueueSize,
		HistorySize: defaultHistorySize,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	if opts.HistorySize <= 0 {
		opts.HistorySize = defaultHistorySize
	}

	// lru.New only errors on a non-positive size, which is guarded above.
	history, _ := lru.New[string, core.Message](opts.HistorySize)

	return &Bus{
		logger:   opts.Logger,
		inbound:  make(chan core.Message, opts.QueueSize),
		history:  history,
		handlers: make(map[string][]Handler),
	}
}

// Start launches the consumer goroutine.
func (b *Bus) Start(ctx context.Context) error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	if b.running {
		return errors.New("message bus is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.running = true

	go b.consume(ctx, b.done)

	return nil
}

// Stop halts the consumer and waits for an in-flight delivery to finish.
// Messages still queued are dropped.
func (b *Bus) Stop() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	if !b.running {
		return errors.New("message bus is not running")
	}

	b.cancel()
	<-b.done
	b.running = false

	return nil
}

// Subscribe registers a handler for messages addressed to name. Multiple
// handlers per name all receive each message.
func (b *Bus) Subscribe(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], handler)
}

// Unsubscribe removes every handler registered under name.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers, name)
}

// Publish queues a message for delivery. A full queue drops the message,
// counting it as failed, so publishers (including handlers publishing
// follow-ups) never block on the bus.
func (b *Bus) Publish(msg core.Message) {
	b.sent.Add(1)

	select {
	case b.inbound <- msg:
	default:
		b.failed.Add(1)
		b.logger.Warn("Message queue full, dropping message", "message_id", msg.ID, "recipient", msg.Recipient)
	}
}

func (b *Bus) consume(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.inbound:
			b.deliver(msg)
		}
	}
}

// deliver records the message in history before fan-out, so history reflects
// traffic even when nobody listens.
func (b *Bus) deliver(msg core.Message) {
	b.history.Add(msg.ID, msg)

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[msg.Recipient]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.failed.Add(1)
		b.logger.Debug("No subscribers for recipient", "recipient", msg.Recipient, "message_id", msg.ID)

		return
	}

	for _, handler := range handlers {
		if err := b.invoke(handler, msg); err != nil {
			b.failed.Add(1)
			b.logger.Warn("Message delivery failed", "recipient", msg.Recipient, "message_id", msg.ID, "error", err.Error())

			continue
		}

		b.delivered.Add(1)
	}
}

// invoke shields the consumer loop from a panicking handler.
func (b *Bus) invoke(handler Handler, msg core.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return handler(msg)
}

// History returns delivered messages addressed to recipient, oldest first.
// An empty recipient matches everything; a non-zero since keeps only
// messages stamped at or after it.
func (b *Bus) History(recipient string, since time.Time) []core.Message {
	var out []core.Message

	for _, msg := range b.history.Values() {
		if recipient != "" && msg.Recipient != recipient {
			continue
		}

		if !since.IsZero() && msg.Timestamp.Before(since) {
			continue
		}

		out = append(out, msg)
	}

	return out
}

// SubscriberNames returns the sorted names with at least one handler.
func (b *Bus) SubscriberNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.handlers))
	for name := range b.handlers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Stats snapshots the counters and current occupancy.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers := make(map[string]int, len(b.handlers))
	for name, handlers := range b.handlers {
		subscribers[name] = len(handlers)
	}

	return Stats{
		Sent:        b.sent.Load(),
		Delivered:   b.delivered.Load(),
		Failed:      b.failed.Load(),
		QueueLength: len(b.inbound),
		HistorySize: b.history.Len(),
		Subscribers: subscribers,
	}
}
