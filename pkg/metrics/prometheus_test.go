package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"EnergyDash/internal/domain/models"
)

func TestRecorder(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	s := models.DefaultSample()
	s.Storage = 400
	s.StoragePercent = 50
	r.RecordSample(s)
	r.RecordDrop("malformed")
	r.RecordDrop("malformed")
	r.RecordReconnect()
	r.RecordState("open")
	r.RecordWindowLen(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.samplesTotal))
	assert.Equal(t, 400.0, testutil.ToFloat64(r.storage))
	assert.Equal(t, 50.0, testutil.ToFloat64(r.storagePercent))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.dropsTotal.WithLabelValues("malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reconnectTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.state.WithLabelValues("open")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.state.WithLabelValues("closed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.windowLen))

	r.RecordState("reconnect_wait")
	assert.Equal(t, 0.0, testutil.ToFloat64(r.state.WithLabelValues("open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.state.WithLabelValues("reconnect_wait")))
}
