package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"EnergyDash/internal/domain/models"
	drepo "EnergyDash/internal/domain/repository"
)

// SampleBatcher buffers samples for a batch backend and flushes them when the
// batch is full or the oldest buffered sample is older than the batch timeout.
// A failed flush keeps the batch for the next attempt; beyond maxPending
// samples the oldest are dropped.
type SampleBatcher struct {
	name         string
	flush        func(ctx context.Context, samples []models.Sample) error
	metrics      drepo.Metrics
	batchSize    int
	batchTimeout time.Duration
	maxPending   int
	now          func() time.Time

	mu    sync.Mutex
	buf   []models.Sample
	first time.Time

	stop chan struct{}
	once sync.Once
}

// NewStoreBatcher batches samples into SampleStore.StoreBatch.
func NewStoreBatcher(store drepo.SampleStore, metrics drepo.Metrics, batchSize int, batchTimeout time.Duration) *SampleBatcher {
	return newSampleBatcher("store_batch", store.StoreBatch, metrics, batchSize, batchTimeout)
}

// NewPublishBatcher batches samples into SamplePublisher.PublishBatch.
func NewPublishBatcher(pub drepo.SamplePublisher, metrics drepo.Metrics, batchSize int, batchTimeout time.Duration) *SampleBatcher {
	return newSampleBatcher("publish_batch", pub.PublishBatch, metrics, batchSize, batchTimeout)
}

func newSampleBatcher(
	name string,
	flush func(ctx context.Context, samples []models.Sample) error,
	metrics drepo.Metrics,
	batchSize int,
	batchTimeout time.Duration,
) *SampleBatcher {
	if batchSize < 1 {
		batchSize = 1
	}
	if batchTimeout <= 0 {
		batchTimeout = 2 * time.Second
	}
	return &SampleBatcher{
		name:         name,
		flush:        flush,
		metrics:      metrics,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		maxPending:   batchSize * 10,
		now:          time.Now,
		stop:         make(chan struct{}),
	}
}

func (b *SampleBatcher) Name() string { return b.name }

// Process buffers s and flushes when a batch is due. Flush failures are
// recorded and retried later, so Process never asks the caller to redeliver.
func (b *SampleBatcher) Process(ctx context.Context, s models.Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buf) == 0 {
		b.first = b.now()
	}
	b.buf = append(b.buf, s)
	if over := len(b.buf) - b.maxPending; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		for i := 0; i < over; i++ {
			b.metrics.RecordDrop(b.name + "_overflow")
		}
	}
	if len(b.buf) >= b.batchSize || b.now().Sub(b.first) >= b.batchTimeout {
		_ = b.flushLocked(ctx)
	}
	return nil
}

// Pending returns the number of buffered samples.
func (b *SampleBatcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Flush writes whatever is buffered.
func (b *SampleBatcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

func (b *SampleBatcher) flushLocked(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}
	start := time.Now()
	if err := b.flush(ctx, b.buf); err != nil {
		b.metrics.RecordError(b.name)
		return fmt.Errorf("%s flush: %w", b.name, err)
	}
	b.metrics.RecordLatency(b.name, time.Since(start).Seconds())
	b.buf = b.buf[:0]
	return nil
}

// Start flushes on the batch timeout until ctx is done or Stop is called.
func (b *SampleBatcher) Start(ctx context.Context) {
	go func() {
		t := time.NewTicker(b.batchTimeout)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stop:
				return
			case <-t.C:
				_ = b.Flush(ctx)
			}
		}
	}()
}

// Stop halts the ticker and writes what is left.
func (b *SampleBatcher) Stop(ctx context.Context) error {
	b.once.Do(func() { close(b.stop) })
	return b.Flush(ctx)
}
