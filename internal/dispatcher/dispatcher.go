// Package dispatcher routes board commands such as ":PLAYBACK:SEEK:" to
// their handlers, optionally through a per-command queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Queued is the result of a command accepted by a buffered handler.
const Queued = "queued"

var (
	// ErrUnknownCommand is returned by Dispatch when no handler is registered.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrQueueFull is returned when a non-blocking queue has no room.
	ErrQueueFull = errors.New("queue full")
)

// Event is one board command, e.g. ":PLAYBACK:SEEK:" with its arguments, as
// sent by the renderer or the HTTP command endpoint.
type Event struct {
	Command   string
	Args      []string
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*registration)

type registration struct {
	queue  int
	block  bool
	logged bool
}

// Buffered runs the handler on its own goroutine behind a queue of size
// events. Dispatch returns Queued once the event is enqueued.
func Buffered(size int) Option {
	return func(r *registration) { r.queue = size }
}

// Blocking makes Dispatch wait for room in a full queue instead of failing
// with ErrQueueFull.
func Blocking() Option {
	return func(r *registration) { r.block = true }
}

// Logged logs each event and its outcome.
func Logged() Option {
	return func(r *registration) { r.logged = true }
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	queues   map[string]chan Event

	logger  Logger
	metrics *metrics
}

// New creates a dispatcher. Metrics go to the global meter provider, which
// is a no-op unless boardd installed one.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		queues:   make(map[string]chan Event),
		logger:   logger,
	}
	m, err := newMetrics(otel.Meter("github.com/tactiboard/engine/internal/dispatcher"), d.queueDepths)
	if err != nil {
		return nil, err
	}
	d.metrics = m
	return d, nil
}

// Register installs h for command. Logging wraps the queue, so a logged
// buffered handler logs the enqueue, not the handling.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var r registration
	for _, opt := range opts {
		opt(&r)
	}
	if r.queue > 0 {
		h = d.queued(command, r.queue, r.block, h)
	}
	if r.logged {
		h = d.logged(command, h)
	}

	d.mu.Lock()
	d.handlers[command] = h
	d.mu.Unlock()
}

// Dispatch runs the handler registered for e.Command.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}

	start := time.Now()
	result, err := h(e)
	d.metrics.latency.Record(context.Background(), float64(time.Since(start).Microseconds())/1000,
		metric.WithAttributes(attribute.String("command", e.Command), attribute.Bool("error", err != nil)))
	return result, err
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// Commands returns the registered commands in sorted order.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for cmd := range d.handlers {
		out = append(out, cmd)
	}
	sort.Strings(out)
	return out
}

// queueDepths reports the number of waiting events per buffered command.
func (d *Dispatcher) queueDepths(observe func(command string, depth int)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for cmd, q := range d.queues {
		observe(cmd, len(q))
	}
}

func (d *Dispatcher) queued(command string, size int, block bool, h HandlerFunc) HandlerFunc {
	q := make(chan Event, size)
	d.mu.Lock()
	d.queues[command] = q
	d.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("command", command))
	go func() {
		for e := range q {
			if _, err := h(e); err != nil {
				d.metrics.failed.Add(context.Background(), 1, attrs)
				d.logger.Error("queued event failed", "command", command, "error", err)
			}
			d.metrics.processed.Add(context.Background(), 1, attrs)
		}
	}()

	if block {
		return func(e Event) (any, error) {
			q <- e
			return Queued, nil
		}
	}
	return func(e Event) (any, error) {
		select {
		case q <- e:
			return Queued, nil
		default:
			d.metrics.dropped.Add(context.Background(), 1, attrs)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
}

func (d *Dispatcher) logged(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "args", len(e.Args))
		result, err := h(e)
		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
			return result, err
		}
		d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		return result, nil
	}
}
