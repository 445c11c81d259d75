package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"EnergyDash/internal/domain/models"
	drepo "EnergyDash/internal/domain/repository"
	"EnergyDash/internal/services/cadence"
	"EnergyDash/internal/services/normalizer"
	applogger "EnergyDash/pkg/logger"
	"EnergyDash/pkg/metrics"
	"EnergyDash/pkg/window"

	"github.com/google/uuid"
)

// State is the lifecycle state of a feed session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateReconnectWait
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateReconnectWait:
		return "reconnect_wait"
	case StateTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Timer is a pending scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler arms one-shot timers. Tests swap in a manual scheduler.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SessionConfig holds the tunables of a feed session.
type SessionConfig struct {
	ReconnectDelay     time.Duration
	WindowCapacity     int
	StorageCapacityKWh float64
}

// SessionStats is a point-in-time view of a session for the dashboard API.
type SessionStats struct {
	SessionID           string        `json:"session_id"`
	State               State         `json:"state"`
	Endpoint            string        `json:"endpoint"`
	ConnectionID        string        `json:"connection_id,omitempty"`
	Generation          uint64        `json:"generation"`
	FramesReceived      uint64        `json:"frames_received"`
	SamplesCommitted    uint64        `json:"samples_committed"`
	FramesDropped       uint64        `json:"frames_dropped"`
	ReconnectsScheduled uint64        `json:"reconnects_scheduled"`
	PendingReconnect    bool          `json:"pending_reconnect"`
	WindowLen           int           `json:"window_len"`
	WindowCap           int           `json:"window_cap"`
	LastSampleAt        time.Time     `json:"last_sample_at,omitempty"`
	Cadence             cadence.Stats `json:"cadence"`
}

// ErrAlreadyStarted is returned by Start on a session that was started before.
var ErrAlreadyStarted = errors.New("session already started")

type eventKind int

const (
	evConnect eventKind = iota
	evDialed
	evFrame
	evClosed
	evTimer
	evTeardown
)

type event struct {
	kind eventKind
	gen  uint64
	seq  uint64
	conn drepo.FeedConn
	data []byte
	err  error
	done chan struct{}
}

// Session owns the feed connection, its reconnect policy and the rolling
// window. Every state change, window append and sample hook call happens on
// the session's event loop goroutine; transport goroutines only post events.
type Session struct {
	id      string
	cfg     SessionConfig
	dialer  drepo.FeedDialer
	metrics drepo.Metrics
	log     *applogger.Logger
	sched   Scheduler
	now     func() time.Time
	hook    func(models.Sample)

	window  *window.Window[models.Sample]
	cadence *cadence.Tracker
	normOpt normalizer.Options

	events    chan event
	stopped   chan struct{}
	started   atomic.Bool
	tearOnce  sync.Once
	startOnce sync.Once

	// owned by the event loop
	state      State
	gen        uint64
	conn       drepo.FeedConn
	dialCancel context.CancelFunc
	timer      Timer
	timerSeq   uint64

	// published for concurrent readers
	stateView  atomic.Int32
	genView    atomic.Uint64
	connID     atomic.Pointer[string]
	frames     atomic.Uint64
	committed  atomic.Uint64
	dropped    atomic.Uint64
	reconnects atomic.Uint64
	pending    atomic.Bool
	lastSample atomic.Int64
}

// SessionOption configures Session.
type SessionOption func(*Session)

// WithScheduler replaces the wall-clock timer source.
func WithScheduler(s Scheduler) SessionOption {
	return func(ss *Session) { ss.sched = s }
}

// WithNow replaces the arrival-time source.
func WithNow(now func() time.Time) SessionOption {
	return func(ss *Session) { ss.now = now }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *applogger.Logger) SessionOption {
	return func(ss *Session) {
		if l != nil {
			ss.log = l
		}
	}
}

// WithSessionMetrics sets the metrics recorder.
func WithSessionMetrics(m drepo.Metrics) SessionOption {
	return func(ss *Session) {
		if m != nil {
			ss.metrics = m
		}
	}
}

// WithSampleHook registers the callback invoked once per committed sample.
func WithSampleHook(fn func(models.Sample)) SessionOption {
	return func(ss *Session) { ss.hook = fn }
}

// NewSession creates a disconnected session.
func NewSession(dialer drepo.FeedDialer, cfg SessionConfig, opts ...SessionOption) *Session {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.WindowCapacity <= 0 {
		cfg.WindowCapacity = 20
	}
	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		dialer:  dialer,
		metrics: metrics.Nop{},
		log:     applogger.Nop(),
		sched:   wallScheduler{},
		now:     time.Now,
		window:  window.New[models.Sample](cfg.WindowCapacity, window.WithCopy(models.Sample.Clone)),
		cadence: cadence.New(0.01),
		normOpt: normalizer.Options{StorageCapacityKWh: cfg.StorageCapacityKWh},
		events:  make(chan event, 64),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Component("session").With(applogger.String("session_id", s.id))
	return s
}

// OnSample sets the sample hook. It must be called before Start.
func (s *Session) OnSample(fn func(models.Sample)) {
	if s.started.Load() {
		return
	}
	s.hook = fn
}

// Start launches the event loop and the first connection attempt. Transport
// failures are never returned; they feed the reconnect cycle instead.
// Cancelling ctx tears the session down.
func (s *Session) Start(ctx context.Context) error {
	if s.State() == StateTornDown {
		return fmt.Errorf("start: session torn down")
	}
	err := ErrAlreadyStarted
	s.startOnce.Do(func() {
		err = nil
		s.started.Store(true)
		go s.run(ctx)
		s.post(event{kind: evConnect})
	})
	if err != nil && s.State() == StateTornDown {
		return fmt.Errorf("start: session torn down")
	}
	return err
}

// Teardown cancels any pending reconnect, closes the live connection and
// stops the event loop. It is idempotent and blocks until cleanup is done.
func (s *Session) Teardown() {
	s.tearOnce.Do(func() {
		// claiming startOnce here means Start can no longer launch the loop
		neverStarted := false
		s.startOnce.Do(func() {
			neverStarted = true
			s.setState(StateTornDown)
			close(s.stopped)
		})
		if neverStarted {
			return
		}
		done := make(chan struct{})
		if s.post(event{kind: evTeardown, done: done}) {
			select {
			case <-done:
			case <-s.stopped:
			}
		}
		<-s.stopped
	})
}

// Done is closed once the event loop has exited.
func (s *Session) Done() <-chan struct{} { return s.stopped }

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.stateView.Load()) }

// Snapshot returns the window contents oldest first.
func (s *Session) Snapshot() []models.Sample { return s.window.Snapshot() }

// Recent returns up to n of the newest samples, oldest first.
func (s *Session) Recent(n int) []models.Sample { return s.window.Last(n) }

// Latest returns the newest sample, or the all-defaults sample when none
// has arrived yet.
func (s *Session) Latest() (models.Sample, bool) {
	if v, ok := s.window.Latest(); ok {
		return v, true
	}
	return models.DefaultSample(), false
}

// Stats returns counters and state for the dashboard.
func (s *Session) Stats() SessionStats {
	st := SessionStats{
		SessionID:           s.id,
		State:               s.State(),
		Endpoint:            s.dialer.Endpoint(),
		Generation:          s.genView.Load(),
		FramesReceived:      s.frames.Load(),
		SamplesCommitted:    s.committed.Load(),
		FramesDropped:       s.dropped.Load(),
		ReconnectsScheduled: s.reconnects.Load(),
		PendingReconnect:    s.pending.Load(),
		WindowLen:           s.window.Len(),
		WindowCap:           s.window.Cap(),
		Cadence:             s.cadence.Stats(),
	}
	if id := s.connID.Load(); id != nil {
		st.ConnectionID = *id
	}
	if ns := s.lastSample.Load(); ns != 0 {
		st.LastSampleAt = time.Unix(0, ns)
	}
	return st
}

// post hands an event to the loop. It reports false once the loop is gone.
func (s *Session) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.stopped:
		return false
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.stopped)
	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return
		case ev := <-s.events:
			s.handle(ctx, ev)
			if s.state == StateTornDown {
				return
			}
		}
	}
}

func (s *Session) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evConnect:
		if s.state == StateDisconnected {
			s.connect(ctx)
		}
	case evDialed:
		s.onDialed(ev)
	case evFrame:
		if ev.gen == s.gen && s.state == StateOpen {
			s.onFrame(ev.data)
		}
	case evClosed:
		s.onClosed(ev)
	case evTimer:
		if ev.seq == s.timerSeq && s.state == StateReconnectWait {
			s.timer = nil
			s.pending.Store(false)
			s.connect(ctx)
		}
	case evTeardown:
		s.teardown()
		close(ev.done)
	}
}

func (s *Session) connect(ctx context.Context) {
	s.gen++
	s.genView.Store(s.gen)
	s.setState(StateConnecting)

	dctx, cancel := context.WithCancel(ctx)
	s.dialCancel = cancel
	gen := s.gen
	go func() {
		conn, err := s.dialer.Dial(dctx)
		if !s.post(event{kind: evDialed, gen: gen, conn: conn, err: err}) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (s *Session) onDialed(ev event) {
	if ev.gen != s.gen || s.state != StateConnecting {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}
	if ev.err != nil {
		s.log.Warn("feed connect failed",
			applogger.String("endpoint", s.dialer.Endpoint()),
			applogger.Error(ev.err),
		)
		s.metrics.RecordError("dial")
		s.closeAndRetry()
		return
	}

	s.conn = ev.conn
	id := ev.conn.ID()
	s.connID.Store(&id)
	s.cadence.Reset()
	s.setState(StateOpen)
	s.log.Info("feed connected",
		applogger.String("endpoint", s.dialer.Endpoint()),
		applogger.String("conn_id", id),
		applogger.Uint64("generation", s.gen),
	)
	go s.readLoop(s.gen, ev.conn)
}

func (s *Session) readLoop(gen uint64, conn drepo.FeedConn) {
	for {
		b, err := conn.ReadFrame()
		if err != nil {
			s.post(event{kind: evClosed, gen: gen, err: err})
			return
		}
		if !s.post(event{kind: evFrame, gen: gen, data: b}) {
			return
		}
	}
}

func (s *Session) onFrame(b []byte) {
	s.frames.Add(1)
	start := time.Now()

	sample, err := normalizer.Normalize(b, s.normOpt)
	if err != nil {
		s.dropped.Add(1)
		s.metrics.RecordDrop("malformed")
		s.log.Warn("feed frame dropped",
			applogger.Int("bytes", len(b)),
			applogger.Error(err),
		)
		return
	}

	at := s.now()
	sample.ReceivedAt = at
	s.window.Append(sample)
	s.cadence.Observe(at)
	s.committed.Add(1)
	s.lastSample.Store(at.UnixNano())

	s.metrics.RecordSample(sample)
	s.metrics.RecordWindowLen(s.window.Len())
	s.metrics.RecordLatency("normalize_commit", time.Since(start).Seconds())

	s.callHook(sample)
}

// callHook runs the sample hook; a panicking hook must not kill the loop.
func (s *Session) callHook(sample models.Sample) {
	if s.hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordError("sample_hook_panic")
			s.log.Error("sample hook panic", applogger.Any("panic", r))
		}
	}()
	s.hook(sample.Clone())
}

func (s *Session) onClosed(ev event) {
	if ev.gen != s.gen {
		return
	}
	switch s.state {
	case StateOpen, StateConnecting:
		s.log.Warn("feed disconnected",
			applogger.Error(ev.err),
			applogger.Duration("reconnect_in", s.cfg.ReconnectDelay),
		)
		s.metrics.RecordError("stream")
		s.closeAndRetry()
	case StateReconnectWait:
		// a late close for the same connection re-arms, never duplicates
		s.scheduleReconnect()
	}
}

func (s *Session) closeAndRetry() {
	s.releaseConn()
	s.setState(StateClosed)
	s.scheduleReconnect()
}

// scheduleReconnect arms the single reconnect timer, replacing a pending one.
func (s *Session) scheduleReconnect() {
	if s.timer != nil {
		s.timer.Stop()
	} else {
		s.reconnects.Add(1)
		s.metrics.RecordReconnect()
	}
	s.timerSeq++
	seq := s.timerSeq
	s.timer = s.sched.AfterFunc(s.cfg.ReconnectDelay, func() {
		s.post(event{kind: evTimer, seq: seq})
	})
	s.pending.Store(true)
	s.setState(StateReconnectWait)
}

func (s *Session) releaseConn() {
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.log.Debug("feed close", applogger.Error(err))
		}
		s.conn = nil
		s.connID.Store(nil)
	}
}

func (s *Session) teardown() {
	if s.state == StateTornDown {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
		s.pending.Store(false)
	}
	s.timerSeq++
	s.releaseConn()
	s.setState(StateTornDown)
	s.log.Info("session torn down")
}

func (s *Session) setState(st State) {
	if s.state == st {
		return
	}
	s.log.Debug("session state", applogger.String("from", s.state.String()), applogger.String("to", st.String()))
	s.state = st
	s.stateView.Store(int32(st))
	s.metrics.RecordState(st.String())
}
