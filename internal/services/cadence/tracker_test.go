package cadence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerEmpty(t *testing.T) {
	assert.Equal(t, Stats{}, New(0.01).Stats())
}

func TestTrackerQuantiles(t *testing.T) {
	tr := New(0.01)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	at := base
	for i := 0; i < 100; i++ {
		tr.Observe(at)
		at = at.Add(3 * time.Second)
	}

	st := tr.Stats()
	assert.Equal(t, int64(99), st.Count)
	assert.InEpsilon(t, 3000.0, st.P50, 0.02)
	assert.InEpsilon(t, 3000.0, st.P99, 0.02)
	assert.Equal(t, 3000.0, st.Max)
}

func TestTrackerResetSkipsReconnectGap(t *testing.T) {
	tr := New(0.01)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.Observe(base)
	tr.Observe(base.Add(time.Second))

	tr.Reset()
	tr.Observe(base.Add(time.Hour))
	tr.Observe(base.Add(time.Hour + time.Second))

	st := tr.Stats()
	assert.Equal(t, int64(2), st.Count)
	assert.Equal(t, 1000.0, st.Max)
}
