package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"EnergyDash/internal/domain/models"
	drepo "EnergyDash/internal/domain/repository"
	"EnergyDash/internal/service/feed"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type fakeConn struct {
	id     string
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, frames: make(chan []byte, 64), closed: make(chan struct{})}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case b := <-c.frames:
		return b, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(s string) { c.frames <- []byte(s) }

type fakeDialer struct {
	mu    sync.Mutex
	fail  bool
	conns []*fakeConn
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context) (drepo.FeedConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn(fmt.Sprintf("conn-%d", d.dials))
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) Endpoint() string { return "ws://fake/ws" }

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) setFail(v bool) {
	d.mu.Lock()
	d.fail = v
	d.mu.Unlock()
}

type fakeTimer struct {
	s       *fakeScheduler
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

// fakeScheduler records timers and fires them only when told to.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) delay(i int) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[i].delay
}

func (s *fakeScheduler) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (s *fakeScheduler) fireActive() {
	s.mu.Lock()
	var due []func()
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t.f)
		}
	}
	s.mu.Unlock()
	for _, f := range due {
		f()
	}
}

// fireAnyway runs the callback of timer i even if it was stopped, as a timer
// racing its own Stop would.
func (s *fakeScheduler) fireAnyway(i int) {
	s.mu.Lock()
	f := s.timers[i].f
	s.mu.Unlock()
	f()
}

func newTestSession(t *testing.T, d *fakeDialer, capacity int, opts ...SessionOption) (*Session, *fakeScheduler) {
	t.Helper()
	sched := &fakeScheduler{}
	opts = append([]SessionOption{WithScheduler(sched)}, opts...)
	s := NewSession(d, SessionConfig{
		ReconnectDelay:     5 * time.Second,
		WindowCapacity:     capacity,
		StorageCapacityKWh: 800,
	}, opts...)
	t.Cleanup(s.Teardown)
	return s, sched
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, waitFor, tick,
		"state stuck at %s, want %s", s.State(), want)
}

func TestSessionStartsDisconnected(t *testing.T) {
	s, _ := newTestSession(t, &fakeDialer{}, 20)
	assert.Equal(t, StateDisconnected, s.State())

	latest, ok := s.Latest()
	assert.False(t, ok)
	assert.Equal(t, models.DefaultSample(), latest)
	assert.Empty(t, s.Snapshot())
}

func TestSessionKeepsNewestSamplesInOrder(t *testing.T) {
	const capacity = 20
	d := &fakeDialer{}
	s, _ := newTestSession(t, d, capacity)
	require.NoError(t, s.Start(context.Background()))
	waitState(t, s, StateOpen)

	conn := d.last()
	for i := 0; i < capacity+5; i++ {
		conn.send(fmt.Sprintf(`{"datetime":"t%d","storage":%d}`, i, i))
	}
	require.Eventually(t, func() bool { return s.Stats().SamplesCommitted == capacity+5 }, waitFor, tick)

	got := s.Snapshot()
	require.Len(t, got, capacity)
	for i, smp := range got {
		assert.Equal(t, float64(i+5), smp.Storage)
		assert.Equal(t, fmt.Sprintf("t%d", i+5), smp.Datetime)
	}
	latest, ok := s.Latest()
	assert.True(t, ok)
	assert.Equal(t, float64(capacity+4), latest.Storage)
}

func TestSessionStampsArrivalTime(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d := &fakeDialer{}
	s, _ := newTestSession(t, d, 5, WithNow(func() time.Time { return at }))
	require.NoError(t, s.Start(context.Background()))
	waitState(t, s, StateOpen)

	d.last().send(`{"storage":400}`)
	require.Eventually(t, func() bool { return s.Stats().SamplesCommitted == 1 }, waitFor, tick)

	latest, _ := s.Latest()
	assert.Equal(t, at, latest.ReceivedAt)
	assert.Equal(t, 50.0, latest.StoragePercent)
	assert.Equal(t, at, s.Stats().LastSampleAt.UTC())
}

func TestSessionDropsMalformedFrames(t *testing.T) {
	d := &fakeDialer{}
	s, _ := newTestSession(t, d, 5)
	require.NoError(t, s.Start(context.Background()))
	waitState(t, s, StateOpen)

	conn := d.last()
	conn.send(`{"storage":10}`)
	conn.send(`not json`)
	conn.send(`[1,2,3]`)
	require.Eventually(t, func() bool { return s.Stats().FramesDropped == 2 }, waitFor, tick)

	got := s.Snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, 10.0, got[0].Storage)
	assert.Equal(t, StateOpen, s.State())
	assert.Equal(t, uint64(3), s.Stats().FramesReceived)
}

func TestSessionCloseArmsOneReconnectTimer(t *testing.T) {
	d := &fakeDialer{}
	s, sched := newTestSession(t, d, 5)
	require.NoError(t, s.Start(context.Background()))
	waitState(t, s, StateOpen)

	_ = d.last().Close()
	waitState(t, s, StateReconnectWait)
	require.Equal(t, 1, sched.active())
	assert.Equal(t, 5*time.Second, sched.delay(0))

	// a second close for the same connection before the timer fires
	require.True(t, s.post(event{kind: evClosed, gen: s.Stats().Generation, err: errors.New("again")}))
	require.Eventually(t, func() bool { return sched.armed() == 2 }, waitFor, tick)

	assert.Equal(t, 1, sched.active())
	assert.Equal(t, uint64(1), s.Stats().ReconnectsScheduled)
	assert.True(t, s.Stats().PendingReconnect)
	assert.Equal(t, 1, d.dialCount())
}

func TestSessionReconnectsWhenTimerFires(t *testing.T) {
	d := &fakeDialer{}
	s, sched := newTestSession(t, d, 5)
	require.NoError(t, s.Start(context.Background()))
	waitState(t, s, StateOpen)
	d.last().send(`{"storage":1}`)
	require.Eventually(t, func() bool { return s.Stats().SamplesCommitted == 1 }, waitFor, tick)

	_ = d.last().Close()
	waitState(t, s, StateReconnectWait)
	sched.fireActive()

	waitState(t, s, StateOpen)
	assert.Equal(t, 2, d.dialCount())
	assert.Equal(t, uint64(2), s.Stats().Generation)
	assert.Equal(t, "conn-2", s.Stats().ConnectionID)
	assert.False(t, s.Stats().PendingReconnect)

	// the window survives reconnects
	d.last().send(`{"storage":2}`)
	require.Eventually(t, func() bool { return s.Stats().SamplesCommitted == 2 }, waitFor, tick)
	assert.Len(t, s.Snapshot(), 2)
}

func TestSessionDialFailureSchedulesReconnect(t *testing.T) {
	d := &fakeDialer{fail: true}
	s, sched := newTestSession(t, d, 5)
	require.NoError(t, s.Start(context.Background()))

	waitState(t, s, StateReconnectWait)
	assert.Equal(t, 1, sched.active())

	d.setFail(false)
	sched.fireActive()
	waitState(t, s, StateOpen)
	assert.Equal(t, 2, d.dialCount())
}

func TestSessionTeardownCancelsPendingReconnect(t *testing.T) {
	d := &fakeDialer{}
	s, sched := newTestSession(t, d, 5)
	require.NoError(t, s.Start(context.Background()))
	waitState(t, s, StateOpen)

	_ = d.last().Close()
	waitState(t, s, StateReconnectWait)
	require.Equal(t, 1, sched.active())

	s.Teardown()
	assert.Equal(t, StateTornDown, s.State())
	assert.Equal(t, 0, sched.active())

	// a timer that slipped past Stop must not reconnect
	sched.fireAnyway(0)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, d.dialCount())
	assert.Equal(t, StateTornDown, s.State())
}

func TestSessionTeardownClosesLiveConnection(t *testing.T) {
	d := &fakeDialer{}
	s, sched := newTestSession(t, d, 5)
	require.NoError(t, s.Start(context.Background()))
	waitState(t, s, StateOpen)

	conn := d.last()
	s.Teardown()
	s.Teardown()

	select {
	case <-conn.closed:
	case <-time.After(waitFor):
		t.Fatal("connection not closed on teardown")
	}
	assert.Equal(t, 0, sched.armed())
	<-s.Done()
}

func TestSessionContextCancelTearsDown(t *testing.T) {
	d := &fakeDialer{}
	s, _ := newTestSession(t, d, 5)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	waitState(t, s, StateOpen)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("loop did not stop")
	}
	assert.Equal(t, StateTornDown, s.State())
}

func TestSessionStartTwice(t *testing.T) {
	s, _ := newTestSession(t, &fakeDialer{}, 5)
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
}

func TestSessionTeardownBeforeStart(t *testing.T) {
	s, _ := newTestSession(t, &fakeDialer{}, 5)
	s.Teardown()
	assert.Equal(t, StateTornDown, s.State())
	assert.Error(t, s.Start(context.Background()))
}

func TestSessionStartRacingTeardown(t *testing.T) {
	for i := 0; i < 200; i++ {
		s := NewSession(&fakeDialer{}, SessionConfig{}, WithScheduler(&fakeScheduler{}))
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			s.Teardown()
		}()
		wg.Wait()
		s.Teardown()

		select {
		case <-s.Done():
		case <-time.After(waitFor):
			t.Fatalf("iteration %d: session never stopped", i)
		}
		assert.Equal(t, StateTornDown, s.State())
	}
}

func TestSessionReadersCannotAliasWindow(t *testing.T) {
	d := &fakeDialer{}
	hooked := make(chan models.Sample, 1)
	s, _ := newTestSession(t, d, 5, WithSampleHook(func(smp models.Sample) { hooked <- smp }))
	require.NoError(t, s.Start(context.Background()))
	waitState(t, s, StateOpen)

	d.last().send(`{"future_storages":[3,7,1]}`)
	require.Eventually(t, func() bool { return s.Stats().SamplesCommitted == 1 }, waitFor, tick)

	fromHook := <-hooked
	fromHook.FutureStorageCurve[1] = 100
	snap := s.Snapshot()
	snap[0].FutureStorageCurve[0] = -999
	recent := s.Recent(1)
	recent[0].FutureStorageCurve[2] = -1
	latest, _ := s.Latest()
	latest.FutureStorageCurve[0] = -5

	assert.Equal(t, []float64{3, 7, 1}, s.Snapshot()[0].FutureStorageCurve)
}

func TestSessionHookRunsPerSampleAndSurvivesPanic(t *testing.T) {
	d := &fakeDialer{}
	var mu sync.Mutex
	var seen []float64
	hook := func(smp models.Sample) {
		mu.Lock()
		seen = append(seen, smp.Storage)
		mu.Unlock()
		if smp.Storage == 2 {
			panic("boom")
		}
	}
	s, _ := newTestSession(t, d, 5, WithSampleHook(hook))
	require.NoError(t, s.Start(context.Background()))
	waitState(t, s, StateOpen)

	conn := d.last()
	conn.send(`{"storage":1}`)
	conn.send(`{"storage":2}`)
	conn.send(`{"storage":3}`)
	require.Eventually(t, func() bool { return s.Stats().SamplesCommitted == 3 }, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float64{1, 2, 3}, seen)
	assert.Equal(t, StateOpen, s.State())
}

func TestSessionOverWebsocket(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range []string{
			`{"datetime":"2024-01-01 00:00","storage":200,"future_storages":[150,250,300],"recommendation":{"action":"buy","amount":10,"confidence":0.8,"reason":"low"}}`,
			`{"datetime":"2024-01-01 00:15","storage":"oops"}`,
			`garbage`,
		} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := feed.New("ws"+strings.TrimPrefix(srv.URL, "http"), feed.WithPingInterval(0))
	sched := &fakeScheduler{}
	s := NewSession(client, SessionConfig{ReconnectDelay: time.Second, WindowCapacity: 20, StorageCapacityKWh: 800}, WithScheduler(sched))
	defer s.Teardown()

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		st := s.Stats()
		return st.SamplesCommitted == 2 && st.FramesDropped == 1
	}, waitFor, tick)

	got := s.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, 150.0, got[0].MinFutureStorage)
	assert.Equal(t, 300.0, got[0].MaxFutureStorage)
	assert.Equal(t, 25.0, got[0].StoragePercent)
	assert.Equal(t, models.ActionBuy, got[0].Recommendation.Action)
	assert.Equal(t, 0.0, got[1].Storage)
	assert.Equal(t, models.DefaultReason, got[1].Recommendation.Reason)
	assert.NotEmpty(t, s.Stats().ConnectionID)
}
