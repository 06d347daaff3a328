package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"table-settlement/internal/logger"
	"table-settlement/internal/models"
)

// Publisher delivers one event to a transport.
type Publisher interface {
	Publish(ctx context.Context, event models.Event) error
	Close() error
}

// Dispatcher decouples event emission from delivery. Emit never blocks: when
// the buffer is full the event is dropped and logged.
type Dispatcher struct {
	publisher Publisher
	log       *logger.Logger
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
	events chan models.Event
	done   chan struct{}
}

func NewDispatcher(publisher Publisher, bufferSize int, log *logger.Logger) *Dispatcher {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Dispatcher{
		publisher: publisher,
		log:       log,
		timeout:   5 * time.Second,
		events:    make(chan models.Event, bufferSize),
		done:      make(chan struct{}),
	}
}

// Start drains the buffer until Close. It returns immediately.
func (d *Dispatcher) Start() {
	go func() {
		defer close(d.done)
		for event := range d.events {
			d.deliver(event)
		}
	}()
}

func (d *Dispatcher) deliver(event models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.publisher.Publish(ctx, event); err != nil {
		d.log.Error("NOTIFY", fmt.Sprintf("Failed to publish %s (key %s): %v", event.Type, event.Key(), err))
		return
	}
	d.log.Debug("NOTIFY", fmt.Sprintf("Delivered %s (key %s)", event.Type, event.Key()))
}

func (d *Dispatcher) Emit(event models.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn("NOTIFY", fmt.Sprintf("Dispatcher closed, dropping %s", event.Type))
		return
	}
	select {
	case d.events <- event:
	default:
		d.log.Warn("NOTIFY", fmt.Sprintf("Buffer full, dropping %s (key %s)", event.Type, event.Key()))
	}
}

// Close stops accepting events, waits for buffered ones to be delivered and
// closes the publisher.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-ctx.Done():
		d.log.Warn("NOTIFY", "Timed out draining notification buffer")
	}
	return d.publisher.Close()
}

// LogPublisher writes events to the log. It is the transport used when no
// broker is configured.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	p.log.Info("EVENT", string(data))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
