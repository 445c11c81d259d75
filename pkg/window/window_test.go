package window

import (
	"testing"

	"EnergyDash/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

func TestWindowNeverExceedsCapacity(t *testing.T) {
	w := New[int](5)
	for i := 0; i < 23; i++ {
		evicted := w.Append(i)
		assert.LessOrEqual(t, w.Len(), 5)
		assert.Equal(t, i >= 5, evicted, "append %d", i)
	}
}

func TestWindowEvictsOldestFirst(t *testing.T) {
	w := New[int](3)
	w.Append(1)
	w.Append(2)
	w.Append(3)
	assert.Equal(t, []int{1, 2, 3}, w.Snapshot())

	w.Append(4)
	assert.Equal(t, []int{2, 3, 4}, w.Snapshot())
}

func TestWindowSnapshotKeepsLastNInArrivalOrder(t *testing.T) {
	const n = 20
	w := New[int](n)
	for _, v := range seq(0, n+5) {
		w.Append(v)
	}
	assert.Equal(t, seq(5, n+5), w.Snapshot())
}

func TestWindowSnapshotIsACopy(t *testing.T) {
	w := New[int](3)
	w.Append(1)
	w.Append(2)

	snap := w.Snapshot()
	snap[0] = 99
	assert.Equal(t, []int{1, 2}, w.Snapshot())
}

func TestWindowCopyKeepsSamplesPrivate(t *testing.T) {
	w := New[models.Sample](3, WithCopy(models.Sample.Clone))
	in := models.DefaultSample()
	in.FutureStorageCurve = []float64{3, 7, 1}
	w.Append(in)

	in.FutureStorageCurve[1] = 42
	snap := w.Snapshot()
	snap[0].FutureStorageCurve[0] = -999
	last := w.Last(1)
	last[0].FutureStorageCurve[2] = -1
	latest, ok := w.Latest()
	require.True(t, ok)
	latest.FutureStorageCurve[0] = -5

	assert.Equal(t, []float64{3, 7, 1}, w.Snapshot()[0].FutureStorageCurve)
}

func TestWindowLatest(t *testing.T) {
	w := New[string](2)
	_, ok := w.Latest()
	assert.False(t, ok)

	w.Append("a")
	w.Append("b")
	w.Append("c")
	v, ok := w.Latest()
	require.True(t, ok)
	assert.Equal(t, "c", v)
}

func TestWindowLast(t *testing.T) {
	w := New[int](4)
	for _, v := range seq(0, 6) {
		w.Append(v)
	}
	assert.Equal(t, []int{4, 5}, w.Last(2))
	assert.Equal(t, []int{2, 3, 4, 5}, w.Last(0))
	assert.Equal(t, []int{2, 3, 4, 5}, w.Last(10))
}

func TestWindowEmptyAndMinimumCapacity(t *testing.T) {
	w := New[int](0)
	assert.Equal(t, 1, w.Cap())
	assert.Empty(t, w.Snapshot())

	w.Append(1)
	w.Append(2)
	assert.Equal(t, []int{2}, w.Snapshot())
}
