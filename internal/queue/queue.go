package queue

import (
	"context"
	"time"
)

// Message is one received unit of work. Body is the opaque reference
// (a job or format id) as plain text. ReceiptHandle identifies this
// delivery for acknowledgment; a message that is never deleted becomes
// visible again after the queue's visibility timeout.
type Message struct {
	Body          string
	ReceiptHandle string
}

// Queue is a durable, at-least-once delivery channel. Delivery order is
// not guaranteed and messages may be redelivered; consumers must process
// idempotently.
type Queue interface {
	Send(ctx context.Context, body string) error
	SendBatch(ctx context.Context, bodies []string) error
	// Receive long-polls for up to max messages, waiting at most the
	// configured wait time. An empty slice means no work was available.
	Receive(ctx context.Context, max int) ([]Message, error)
	// Delete acknowledges a delivery so it will not be redelivered.
	Delete(ctx context.Context, receiptHandle string) error
	// Len reports the number of messages pending or in flight.
	Len(ctx context.Context) (int64, error)
	// PopDLQ removes and returns one dead-lettered message body, if any.
	PopDLQ(ctx context.Context) (string, bool, error)
	Ping(ctx context.Context) error
}

// Options tune delivery behavior. Zero values fall back to defaults.
type Options struct {
	// VisibilityTimeout is how long a received message stays invisible
	// before an unacknowledged delivery is retried.
	VisibilityTimeout time.Duration
	// WaitTime bounds how long Receive blocks when the queue is empty.
	WaitTime time.Duration
	// MaxReceiveCount is the number of deliveries before a message is
	// dead-lettered instead of redelivered.
	MaxReceiveCount int
	// PollInterval is how often Receive re-checks an empty queue while
	// waiting.
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = 5 * time.Minute
	}
	if o.WaitTime <= 0 {
		o.WaitTime = 20 * time.Second
	}
	if o.MaxReceiveCount < 1 {
		o.MaxReceiveCount = 3
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	return o
}
