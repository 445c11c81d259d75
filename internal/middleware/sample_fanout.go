package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"EnergyDash/internal/domain/models"
	domrepo "EnergyDash/internal/domain/repository"
	applogger "EnergyDash/pkg/logger"
)

// Sink receives committed samples outside the session loop.
type Sink interface {
	Name() string
	Process(ctx context.Context, s models.Sample) error
}

type funcSink struct {
	name string
	fn   func(ctx context.Context, s models.Sample) error
}

func (f funcSink) Name() string { return f.name }

func (f funcSink) Process(ctx context.Context, s models.Sample) error { return f.fn(ctx, s) }

// SinkFunc adapts a function to Sink.
func SinkFunc(name string, fn func(ctx context.Context, s models.Sample) error) Sink {
	return funcSink{name: name, fn: fn}
}

// PublisherSink forwards samples to a message bus.
func PublisherSink(p domrepo.SamplePublisher) Sink {
	return SinkFunc("publisher", p.Publish)
}

// StoreSink persists samples.
func StoreSink(s domrepo.SampleStore) Sink {
	return SinkFunc("store", s.Store)
}

// CacheSink keeps the latest sample in the snapshot cache.
func CacheSink(c domrepo.SnapshotCache) Sink {
	return SinkFunc("cache", c.PutLatest)
}

// SampleFanout sits between the feed session and the downstream sinks.
// Submit never blocks: samples are buffered and delivered by one background
// worker, with bounded retries and backoff when a sink is unavailable.
type SampleFanout struct {
	sinks       []Sink
	metrics     domrepo.Metrics
	log         *applogger.Logger
	bufSize     int
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	sinkTimeout time.Duration

	bufCh   chan models.Sample
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
	mu      sync.Mutex
}

type FanoutOption func(*SampleFanout)

// WithBufferSize sets how many samples may wait for delivery.
func WithBufferSize(n int) FanoutOption {
	return func(f *SampleFanout) {
		if n > 0 {
			f.bufSize = n
		}
	}
}

// WithMaxAttempts sets delivery attempts per sink before a sample is dropped.
func WithMaxAttempts(n int) FanoutOption {
	return func(f *SampleFanout) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithBackoff sets the retry backoff bounds.
func WithBackoff(min, max time.Duration) FanoutOption {
	return func(f *SampleFanout) {
		if min > 0 && max >= min {
			f.minBackoff, f.maxBackoff = min, max
		}
	}
}

// WithSinkTimeout bounds one delivery attempt.
func WithSinkTimeout(d time.Duration) FanoutOption {
	return func(f *SampleFanout) {
		if d > 0 {
			f.sinkTimeout = d
		}
	}
}

// WithFanoutLogger sets the logger.
func WithFanoutLogger(l *applogger.Logger) FanoutOption {
	return func(f *SampleFanout) {
		if l != nil {
			f.log = l
		}
	}
}

// NewSampleFanout creates a fan-out over sinks.
func NewSampleFanout(metrics domrepo.Metrics, sinks []Sink, opts ...FanoutOption) *SampleFanout {
	f := &SampleFanout{
		sinks:       sinks,
		metrics:     metrics,
		log:         applogger.Nop(),
		bufSize:     1000,
		maxAttempts: 3,
		minBackoff:  50 * time.Millisecond,
		maxBackoff:  2 * time.Second,
		sinkTimeout: 5 * time.Second,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.bufCh = make(chan models.Sample, f.bufSize)
	f.log = f.log.Component("fanout")
	return f
}

// Sinks returns the sink names in delivery order.
func (f *SampleFanout) Sinks() []string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Start launches the delivery worker.
func (f *SampleFanout) Start(ctx context.Context) {
	f.mu.Lock()
	if f.started || f.stopped {
		f.mu.Unlock()
		return
	}
	f.started = true
	f.mu.Unlock()

	go f.run(ctx)
}

// Stop halts the worker after delivering what is already buffered once,
// without retries.
func (f *SampleFanout) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	started := f.started
	f.mu.Unlock()

	close(f.stopCh)
	if started {
		<-f.doneCh
	}
}

// Submit queues a sample for delivery. It drops the sample when the buffer is
// full and is safe to call from the session loop.
func (f *SampleFanout) Submit(s models.Sample) {
	if len(f.sinks) == 0 {
		return
	}
	select {
	case <-f.stopCh:
		return
	default:
	}
	select {
	case f.bufCh <- s:
		f.metrics.RecordLatency("fanout_buffer_depth", float64(len(f.bufCh)))
	default:
		f.metrics.RecordDrop("fanout_buffer_full")
		f.log.Warn("fanout buffer full, sample dropped", applogger.String("datetime", s.Datetime))
	}
}

func (f *SampleFanout) run(ctx context.Context) {
	defer close(f.doneCh)
	for {
		select {
		case <-f.stopCh:
			f.drain(ctx)
			return
		case <-ctx.Done():
			return
		case s := <-f.bufCh:
			for _, sink := range f.sinks {
				f.deliver(ctx, sink, s)
			}
		}
	}
}

func (f *SampleFanout) drain(ctx context.Context) {
	for {
		select {
		case s := <-f.bufCh:
			for _, sink := range f.sinks {
				if err := f.attempt(ctx, sink, s); err != nil {
					f.metrics.RecordDrop("fanout_" + sink.Name())
				}
			}
		default:
			return
		}
	}
}

// deliver retries one sink with exponential backoff, then gives up.
func (f *SampleFanout) deliver(ctx context.Context, sink Sink, s models.Sample) {
	backoff := f.minBackoff
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := f.attempt(ctx, sink, s)
		if err == nil {
			f.metrics.RecordLatency("fanout_"+sink.Name(), time.Since(start).Seconds())
			return
		}
		f.metrics.RecordError("fanout_" + sink.Name())
		if attempt >= f.maxAttempts {
			f.metrics.RecordDrop("fanout_" + sink.Name())
			f.log.Error("sink delivery failed",
				applogger.String("sink", sink.Name()),
				applogger.Int("attempts", attempt),
				applogger.Error(err),
			)
			return
		}
		select {
		case <-time.After(backoff):
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		}
		if backoff < f.maxBackoff {
			backoff *= 2
			if backoff > f.maxBackoff {
				backoff = f.maxBackoff
			}
		}
	}
}

func (f *SampleFanout) attempt(ctx context.Context, sink Sink, s models.Sample) (err error) {
	ctx, cancel := context.WithTimeout(ctx, f.sinkTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink %s panic: %v", sink.Name(), r)
		}
	}()
	return sink.Process(ctx, s)
}
