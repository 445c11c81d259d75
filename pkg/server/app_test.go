package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	drepo "EnergyDash/internal/domain/repository"
	"EnergyDash/internal/handler/api"
	mid "EnergyDash/internal/middleware"
	"EnergyDash/internal/service/ratelimit"
	"EnergyDash/internal/usecase"
	"EnergyDash/pkg/config"
	xhttp "EnergyDash/pkg/http"
	applogger "EnergyDash/pkg/logger"
	"EnergyDash/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type downDialer struct{}

func (downDialer) Dial(context.Context) (drepo.FeedConn, error) {
	return nil, errors.New("connection refused")
}

func (downDialer) Endpoint() string { return "ws://127.0.0.1:1/ws" }

type recordingCloser struct {
	mu    *sync.Mutex
	order *[]string
	name  string
}

func (r recordingCloser) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.order = append(*r.order, r.name)
	return nil
}

func TestAppRunAndShutdown(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)

	l := applogger.Nop()
	session := usecase.NewSession(downDialer{}, usecase.SessionConfig{ReconnectDelay: time.Hour})
	clock := usecase.NewClock(time.Second, "")
	fanout := mid.NewSampleFanout(metrics.Nop{}, nil)
	limiter := ratelimit.New(1, 1)
	h := api.NewDashboardHandler(l, session, clock, nil, limiter, metrics.Nop{})
	srv := xhttp.NewServer(h.RegisterRoutes, l, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0), xhttp.WithMetrics(false, ""))

	app := New(cfg, l, session, clock, fanout, limiter, srv)
	var mu sync.Mutex
	var order []string
	app.AddCloser("first", recordingCloser{&mu, &order, "first"})
	app.AddCloser("second", recordingCloser{&mu, &order, "second"})
	app.AddCloser("nil", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()

	require.Eventually(t, func() bool { return srv.Echo().ListenerAddr() != nil }, 2*time.Second, 10*time.Millisecond)
	resp, err := http.Get("http://" + srv.Echo().ListenerAddr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		return session.State() == usecase.StateReconnectWait
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}

	assert.Eventually(t, func() bool { return session.State() == usecase.StateTornDown }, time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"second", "first"}, order)
	mu.Unlock()
}
