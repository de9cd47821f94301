package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/kafka"
)

// BatchPublisher is implemented by *kafka.Producer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher is an Appender that buffers records and flushes them to the
// activity topic when the batch fills or the flush interval elapses. Records
// are keyed by user id so one user's activity stays ordered on a partition.
// At most one batch is in flight at a time.
type Publisher struct {
	producer      BatchPublisher
	mu            sync.Mutex
	flushMu       sync.Mutex
	buffer        []kafka.Event
	full          chan struct{}
	batchSize     int
	flushInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger
	done          chan struct{}
}

// NewPublisher creates a Publisher that flushes when the buffer reaches
// batchSize records or after flushInterval, whichever comes first.
func NewPublisher(producer BatchPublisher, batchSize int, flushInterval time.Duration) *Publisher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Publisher{
		producer:      producer,
		buffer:        make([]kafka.Event, 0, batchSize),
		full:          make(chan struct{}, 1),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		now:           time.Now,
		logger:        slog.Default().With("component", "activity-publisher"),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop.
func (p *Publisher) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.flush(ctx)
			case <-p.full:
				p.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				p.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	p.logger.Info("activity publisher started",
		"batch_size", p.batchSize,
		"flush_interval", p.flushInterval,
	)
}

// Append validates r and buffers it. A full buffer wakes the flush loop.
func (p *Publisher) Append(_ context.Context, r Record) error {
	r, err := Prepare(r, p.now())
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.buffer = append(p.buffer, kafka.Event{Key: r.UserID, Value: r})
	shouldFlush := len(p.buffer) >= p.batchSize
	p.mu.Unlock()

	if shouldFlush {
		select {
		case p.full <- struct{}{}:
		default:
		}
	}
	return nil
}

// Close waits for the background flush loop to finish.
func (p *Publisher) Close() {
	<-p.done
}

// BufferLen returns the current number of buffered records.
func (p *Publisher) BufferLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Flush publishes whatever is buffered now.
func (p *Publisher) Flush(ctx context.Context) {
	p.flush(ctx)
}

func (p *Publisher) flush(ctx context.Context) {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	batch := p.buffer
	p.buffer = make([]kafka.Event, 0, p.batchSize)
	p.mu.Unlock()

	if err := p.producer.PublishBatch(ctx, batch); err != nil {
		p.logger.Error("activity flush failed",
			"batch_size", len(batch),
			"error", err,
		)
		p.mu.Lock()
		p.buffer = append(batch, p.buffer...)
		if limit := p.batchSize * 3; len(p.buffer) > limit {
			dropped := len(p.buffer) - limit
			p.buffer = p.buffer[:limit]
			p.logger.Warn("activity buffer overflow, records dropped", "dropped", dropped)
		}
		p.mu.Unlock()
		return
	}

	p.logger.Debug("activity batch flushed", "records", len(batch))
}
