// Package amqpsink publishes auth activity events to a RabbitMQ queue.
package amqpsink

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	amqp "github.com/rabbitmq/amqp091-go"

	auth "github.com/carely/go-auth"
	"github.com/carely/go-auth/activitymap"
)

const DefaultQueue = "auth.activity"

// Publisher is the part of an amqp channel the sink uses
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Sink implements auth.ActivitySink. Messages are persistent JSON bodies
// in the activitymap.Normalized shape.
type Sink struct {
	mu      sync.Mutex
	pub     Publisher
	queue   string
	opts    []activitymap.Option
	closers []func() error
}

var _ auth.ActivitySink = (*Sink)(nil)

// New wraps an existing publisher, the queue must already exist
func New(pub Publisher, queue string, opts ...activitymap.Option) *Sink {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Sink{pub: pub, queue: queue, opts: opts}
}

// Dial connects to the broker and declares a durable queue
func Dial(url, queue string, opts ...activitymap.Option) (*Sink, error) {
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "amqp dial failed")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, errors.CategoryExternal, "amqp channel open failed")
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, errors.CategoryExternal, "amqp queue declare failed").
			WithMetadata(map[string]any{"queue": queue})
	}

	s := New(ch, queue, opts...)
	s.closers = []func() error{ch.Close, conn.Close}
	return s, nil
}

func (s *Sink) Record(ctx context.Context, event auth.ActivityEvent) error {
	body, err := json.Marshal(activitymap.Normalize(event, s.opts...))
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "activity event encoding failed")
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         string(event.EventType),
		Body:         body,
	}

	// amqp channels are not safe for concurrent publishing
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pub.PublishWithContext(ctx, "", s.queue, false, false, msg); err != nil {
		return errors.Wrap(err, errors.CategoryExternal, "activity publish failed").
			WithMetadata(map[string]any{"queue": s.queue, "event": string(event.EventType)})
	}
	return nil
}

// Close releases the channel and connection opened by Dial
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
