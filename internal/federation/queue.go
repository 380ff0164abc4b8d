package federation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/watzon/actra/internal/metrics"
)

// Sender performs one delivery attempt to a remote identity.
type Sender interface {
	Send(ctx context.Context, d *Delivery) error
}

// Delivery is one queued action-token delivery.
type Delivery struct {
	Kind     string // "send" or "broadcast"
	Target   string
	ActionID string
	Token    string

	Attempt     int
	NextAttempt time.Time
}

// RetryConfig bounds the redelivery schedule.
type RetryConfig struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	PollInterval time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		BaseDelay:    1 * time.Second,
		PollInterval: 500 * time.Millisecond,
	}
}

// Queue is an in-memory at-least-once delivery queue. Entries that exhaust
// their attempt budget are parked on the dead letter list.
type Queue struct {
	sender Sender
	config RetryConfig
	logger zerolog.Logger

	mu         sync.Mutex
	pending    []*Delivery
	deadLetter []*Delivery

	cancel context.CancelFunc
	done   chan struct{}
}

func NewQueue(sender Sender, config RetryConfig, logger zerolog.Logger) *Queue {
	if config.MaxAttempts == 0 {
		config = DefaultRetryConfig()
	}
	return &Queue{
		sender: sender,
		config: config,
		logger: logger,
	}
}

// Enqueue accepts a delivery; it is attempted on the next worker pass.
func (q *Queue) Enqueue(d *Delivery) {
	q.mu.Lock()
	q.pending = append(q.pending, d)
	depth := len(q.pending)
	q.mu.Unlock()
	metrics.SetFederationQueueDepth(depth)
}

// Start runs the delivery worker until Stop is called.
func (q *Queue) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.done = make(chan struct{})

	go func() {
		defer close(q.done)
		ticker := time.NewTicker(q.config.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.processPending(ctx)
			}
		}
	}()
}

// Stop halts the worker and waits for the in-flight pass to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
		<-q.done
	}
}

// Flush runs one delivery pass synchronously. Tests and shutdown paths use
// it to drain without waiting on the poll interval.
func (q *Queue) Flush(ctx context.Context) {
	q.processPending(ctx)
}

// DeadLetters returns deliveries that exhausted their attempts.
func (q *Queue) DeadLetters() []*Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Delivery, len(q.deadLetter))
	copy(out, q.deadLetter)
	return out
}

// Depth reports how many deliveries are waiting.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) processPending(ctx context.Context) {
	now := time.Now()

	q.mu.Lock()
	due := make([]*Delivery, 0, len(q.pending))
	rest := q.pending[:0]
	for _, d := range q.pending {
		if d.NextAttempt.After(now) {
			rest = append(rest, d)
			continue
		}
		due = append(due, d)
	}
	q.pending = rest
	q.mu.Unlock()

	for _, d := range due {
		if ctx.Err() != nil {
			q.requeue(d)
			continue
		}
		err := q.sender.Send(ctx, d)
		if err == nil {
			metrics.RecordFederationDelivery(d.Kind, "ok")
			continue
		}

		d.Attempt++
		if d.Attempt >= q.config.MaxAttempts {
			metrics.RecordFederationDelivery(d.Kind, "dead")
			q.logger.Error().Err(err).
				Str("target", d.Target).
				Str("action_id", d.ActionID).
				Int("attempts", d.Attempt).
				Msg("delivery moved to dead letter queue")
			q.mu.Lock()
			q.deadLetter = append(q.deadLetter, d)
			q.mu.Unlock()
			continue
		}

		metrics.RecordFederationDelivery(d.Kind, "retry")
		d.NextAttempt = now.Add(q.backoff(d.Attempt))
		q.logger.Warn().Err(err).
			Str("target", d.Target).
			Str("action_id", d.ActionID).
			Int("attempt", d.Attempt).
			Time("next_attempt", d.NextAttempt).
			Msg("delivery failed, scheduled for retry")
		q.requeue(d)
	}

	q.mu.Lock()
	depth := len(q.pending)
	q.mu.Unlock()
	metrics.SetFederationQueueDepth(depth)
}

func (q *Queue) requeue(d *Delivery) {
	q.mu.Lock()
	q.pending = append(q.pending, d)
	q.mu.Unlock()
}

func (q *Queue) backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	return q.config.BaseDelay * time.Duration(1<<attempt)
}
