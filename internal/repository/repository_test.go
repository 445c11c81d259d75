package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"EnergyDash/internal/domain/models"
	"EnergyDash/pkg/cache"
	pkghttp "EnergyDash/pkg/http"
	pkgkafka "EnergyDash/pkg/kafka"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	query string
	args  []interface{}
}

type fakeDB struct {
	calls []execCall
	err   error
}

func (f *fakeDB) ExecContext(_ context.Context, q string, args ...interface{}) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: q, args: args})
	return nil, f.err
}

func (f *fakeDB) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errors.New("not supported")
}

func (f *fakeDB) PingContext(context.Context) error { return f.err }

func fullSample() models.Sample {
	s := models.DefaultSample()
	s.Datetime = "2024-01-02 13:45:00"
	s.Storage = 400
	s.Real = models.EnergyFlows{Wind: 1, Solar: 2, Consumption: 3}
	s.FutureStorageCurve = []float64{300, 500}
	s.Recommendation = models.Recommendation{Action: models.ActionSell, Amount: 20, Confidence: 0.7, Reason: "high"}
	s.ReceivedAt = time.Date(2024, 5, 5, 5, 5, 5, 0, time.UTC)
	return s
}

func TestClickHouseStoreInsertsRow(t *testing.T) {
	db := &fakeDB{}
	st := NewClickHouseSampleStore(db, "energydash.samples", 800)

	require.NoError(t, st.Store(context.Background(), fullSample()))
	require.Len(t, db.calls, 1)
	call := db.calls[0]
	assert.True(t, strings.HasPrefix(call.query, "INSERT INTO energydash.samples (ts, received_at, datetime"))
	require.Len(t, call.args, sampleColumnCount)
	assert.Equal(t, time.Date(2024, 1, 2, 13, 45, 0, 0, time.UTC), call.args[0])
	assert.Equal(t, "2024-01-02 13:45:00", call.args[2])
	assert.Equal(t, []float64{300, 500}, call.args[10])
	assert.Equal(t, "sell", call.args[11])
}

func TestClickHouseStoreFallsBackToArrivalTime(t *testing.T) {
	db := &fakeDB{}
	st := NewClickHouseSampleStore(db, "samples", 800)
	s := fullSample()
	s.Datetime = "not a time"
	s.FutureStorageCurve = nil

	require.NoError(t, st.Store(context.Background(), s))
	assert.Equal(t, s.ReceivedAt, db.calls[0].args[0])
	assert.Equal(t, []float64{}, db.calls[0].args[10])
}

func TestClickHouseStoreBatchAndErrors(t *testing.T) {
	db := &fakeDB{}
	st := NewClickHouseSampleStore(db, "samples", 800)
	require.NoError(t, st.StoreBatch(context.Background(), nil))
	assert.Empty(t, db.calls)

	require.NoError(t, st.StoreBatch(context.Background(), []models.Sample{fullSample(), fullSample(), fullSample()}))
	require.Len(t, db.calls, 1)
	assert.Len(t, db.calls[0].args, 3*sampleColumnCount)
	assert.Equal(t, 3, strings.Count(db.calls[0].query, "(?, ?"))

	db.err = errors.New("ch down")
	assert.Error(t, st.Store(context.Background(), fullSample()))
	assert.Error(t, st.Health(context.Background()))
	assert.Error(t, st.Init(context.Background()))
}

func TestClickHouseStoreInitCreatesTable(t *testing.T) {
	db := &fakeDB{}
	st := NewClickHouseSampleStore(db, "energydash.samples", 800)
	require.NoError(t, st.Init(context.Background()))
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].query, "CREATE TABLE IF NOT EXISTS energydash.samples")
	assert.Contains(t, db.calls[0].query, "future_storages  Array(Float64)")
}

type fakeBatchPublisher struct {
	topic  string
	msgs   []pkgkafka.Message
	closed bool
}

func (f *fakeBatchPublisher) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	f.topic = topic
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeBatchPublisher) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSamplePublisher(t *testing.T) {
	fp := &fakeBatchPublisher{}
	p := NewKafkaSamplePublisher(fp, "energy.samples")

	require.NoError(t, p.Publish(context.Background(), fullSample()))
	require.NoError(t, p.PublishBatch(context.Background(), nil))
	assert.Equal(t, "energy.samples", fp.topic)
	require.Len(t, fp.msgs, 1)
	assert.Equal(t, []byte("2024-01-02 13:45:00"), fp.msgs[0].Key)
	assert.Equal(t, fullSample(), fp.msgs[0].Value)

	require.NoError(t, p.Close())
	assert.True(t, fp.closed)
}

func TestSnapshotCacheRoundTrip(t *testing.T) {
	mc := cache.NewMemoryCache(cache.MemorySettings{})
	defer mc.Close()
	sc := NewSnapshotCache(mc, time.Minute)
	ctx := context.Background()

	_, ok, err := sc.GetLatest(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	want := fullSample()
	require.NoError(t, sc.PutLatest(ctx, want))
	got, ok, err := sc.GetLatest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Storage, got.Storage)
	assert.Equal(t, want.Recommendation, got.Recommendation)
	assert.Equal(t, want.FutureStorageCurve, got.FutureStorageCurve)
	assert.True(t, want.ReceivedAt.Equal(got.ReceivedAt))
}

func TestPurchaseClientForwardsRequest(t *testing.T) {
	var gotBody models.PurchaseRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/purchase", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"success":true,"storage":850}`))
	}))
	defer srv.Close()

	c := NewHTTPPurchaseClient(pkghttp.NewClient(pkghttp.WithTimeout(time.Second)), srv.URL+"/")
	res, err := c.Purchase(context.Background(), models.PurchaseRequest{Type: "wind", Amount: 50})
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseResult{Success: true, Storage: 850}, res)
	assert.Equal(t, models.PurchaseRequest{Type: "wind", Amount: 50}, gotBody)
}

func TestPurchaseClientUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPPurchaseClient(pkghttp.NewClient(), srv.URL)
	_, err := c.Purchase(context.Background(), models.PurchaseRequest{Type: "solar", Amount: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPurchaseUpstream)
	var se *pkghttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
}
