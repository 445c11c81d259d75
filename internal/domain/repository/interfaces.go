package repository

import (
	"context"
	"time"

	"EnergyDash/internal/domain/models"
)

// FeedConn is one live connection to the energy feed.
type FeedConn interface {
	// ID identifies the connection in logs and stats.
	ID() string
	// ReadFrame blocks until the next text frame arrives or the connection fails.
	ReadFrame() ([]byte, error)
	Close() error
}

// FeedDialer opens connections to the configured feed endpoint.
type FeedDialer interface {
	Dial(ctx context.Context) (FeedConn, error)
	Endpoint() string
}

// SamplePublisher republishes normalized samples to a message bus.
type SamplePublisher interface {
	Publish(ctx context.Context, s models.Sample) error
	PublishBatch(ctx context.Context, samples []models.Sample) error
	Close() error
}

// SampleStore persists normalized samples.
type SampleStore interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, s models.Sample) error
	StoreBatch(ctx context.Context, samples []models.Sample) error
	Query(ctx context.Context, from, to time.Time, limit int) ([]models.Sample, error)
	Health(ctx context.Context) error
	Close() error
}

// SnapshotCache keeps the most recent sample for readers outside the session.
type SnapshotCache interface {
	PutLatest(ctx context.Context, s models.Sample) error
	GetLatest(ctx context.Context) (models.Sample, bool, error)
}

// PurchaseClient calls the simulator's purchase endpoint.
type PurchaseClient interface {
	Purchase(ctx context.Context, req models.PurchaseRequest) (models.PurchaseResult, error)
}

type Metrics interface {
	RecordSample(s models.Sample)
	RecordDrop(reason string)
	RecordError(kind string)
	RecordReconnect()
	RecordState(state string)
	RecordWindowLen(n int)
	RecordLatency(op string, seconds float64)
}
