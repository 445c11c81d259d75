package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"EnergyDash/internal/domain/models"
	"EnergyDash/internal/domain/repository"
	"EnergyDash/internal/services/features"
	"EnergyDash/pkg/util"
)

// DB is the subset of *sql.DB used by the store.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PingContext(ctx context.Context) error
}

const sampleColumns = "ts, received_at, datetime, storage, " +
	"real_wind, real_solar, real_consumption, " +
	"pred_wind, pred_solar, pred_consumption, " +
	"future_storages, action, amount, confidence, reason, " +
	"storage_current, storage_min_24h, storage_max_24h"

const sampleColumnCount = 18

// ClickHouseSampleStore implements SampleStore for ClickHouse.
type ClickHouseSampleStore struct {
	db          DB
	table       string
	capacityKWh float64
}

// NewClickHouseSampleStore creates ClickHouse storage. capacityKWh is used
// to recompute percentages on read.
func NewClickHouseSampleStore(db DB, table string, capacityKWh float64) *ClickHouseSampleStore {
	return &ClickHouseSampleStore{db: db, table: table, capacityKWh: capacityKWh}
}

// Schema returns the DDL for the samples table.
func (s *ClickHouseSampleStore) Schema() []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            ts               DateTime64(3),
            received_at      DateTime64(3),
            datetime         String,
            storage          Float64,
            real_wind        Float64,
            real_solar       Float64,
            real_consumption Float64,
            pred_wind        Float64,
            pred_solar       Float64,
            pred_consumption Float64,
            future_storages  Array(Float64),
            action           LowCardinality(String),
            amount           Float64,
            confidence       Float64,
            reason           String,
            storage_current  Float64,
            storage_min_24h  Float64,
            storage_max_24h  Float64
        ) ENGINE = MergeTree
        PARTITION BY toYYYYMM(received_at)
        ORDER BY received_at
    `, s.table)}
}

func (s *ClickHouseSampleStore) Init(ctx context.Context) error {
	for _, stmt := range s.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init %s: %w", s.table, err)
		}
	}
	return nil
}

func (s *ClickHouseSampleStore) Store(ctx context.Context, smp models.Sample) error {
	return s.StoreBatch(ctx, []models.Sample{smp})
}

func (s *ClickHouseSampleStore) StoreBatch(ctx context.Context, samples []models.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	// multi-row VALUES in chunks to bound statement size
	const chunkSize = 2000
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", sampleColumnCount), ", ") + ")"
	for start := 0; start < len(samples); start += chunkSize {
		end := start + chunkSize
		if end > len(samples) {
			end = len(samples)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*sampleColumnCount)
		for _, smp := range samples[start:end] {
			values = append(values, placeholder)
			args = append(args, sampleRow(smp)...)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, sampleColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert samples: %w", err)
		}
	}
	return nil
}

// sampleRow flattens a sample in sampleColumns order. The feed timestamp
// falls back to the arrival time when it does not parse.
func sampleRow(smp models.Sample) []interface{} {
	received := smp.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}
	curve := smp.FutureStorageCurve
	if curve == nil {
		curve = []float64{}
	}
	return []interface{}{
		util.ParseTimeDefault(smp.Datetime, received),
		received,
		smp.Datetime,
		smp.Storage,
		smp.Real.Wind,
		smp.Real.Solar,
		smp.Real.Consumption,
		smp.Predicted.Wind,
		smp.Predicted.Solar,
		smp.Predicted.Consumption,
		curve,
		string(smp.Recommendation.Action),
		smp.Recommendation.Amount,
		smp.Recommendation.Confidence,
		smp.Recommendation.Reason,
		smp.StorageStats.Current,
		smp.StorageStats.Min24h,
		smp.StorageStats.Max24h,
	}
}

// Query returns samples received in [from, to], oldest first, keeping the
// newest limit rows when limit > 0.
func (s *ClickHouseSampleStore) Query(ctx context.Context, from, to time.Time, limit int) ([]models.Sample, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE received_at >= ? AND received_at <= ? ORDER BY received_at DESC", sampleColumns, s.table)
	args := []interface{}{from, to}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []models.Sample
	for rows.Next() {
		var (
			smp    models.Sample
			ts     time.Time
			action string
		)
		if err := rows.Scan(
			&ts, &smp.ReceivedAt, &smp.Datetime, &smp.Storage,
			&smp.Real.Wind, &smp.Real.Solar, &smp.Real.Consumption,
			&smp.Predicted.Wind, &smp.Predicted.Solar, &smp.Predicted.Consumption,
			&smp.FutureStorageCurve, &action, &smp.Recommendation.Amount,
			&smp.Recommendation.Confidence, &smp.Recommendation.Reason,
			&smp.StorageStats.Current, &smp.StorageStats.Min24h, &smp.StorageStats.Max24h,
		); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		smp.Recommendation.Action = models.Action(action)
		s.derive(&smp)
		out = append(out, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *ClickHouseSampleStore) derive(smp *models.Sample) {
	smp.MinFutureStorage, smp.MaxFutureStorage = features.FutureStorageBounds(smp.FutureStorageCurve)
	smp.StoragePercent = features.CapacityPercent(smp.Storage, s.capacityKWh)
	smp.Min24hPercent = features.CapacityPercent(smp.StorageStats.Min24h, s.capacityKWh)
	smp.Max24hPercent = features.CapacityPercent(smp.StorageStats.Max24h, s.capacityKWh)
}

func (s *ClickHouseSampleStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseSampleStore) Close() error {
	return nil // pool owned by pkg/clickhouse.Client
}

var _ repository.SampleStore = (*ClickHouseSampleStore)(nil)
