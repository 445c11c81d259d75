package api

import (
	"context"
	"net/http"
	"time"

	models "EnergyDash/internal/domain/models"
	domrepo "EnergyDash/internal/domain/repository"
	"EnergyDash/internal/service/ratelimit"
	"EnergyDash/internal/usecase"
	xhttp "EnergyDash/pkg/http"
	xlogger "EnergyDash/pkg/logger"
	"EnergyDash/pkg/util"

	"github.com/labstack/echo/v4"
)

// SessionReader is the read side of the feed session.
type SessionReader interface {
	Snapshot() []models.Sample
	Recent(n int) []models.Sample
	Latest() (models.Sample, bool)
	Stats() usecase.SessionStats
}

// ClockReader exposes the display clock label.
type ClockReader interface {
	Label() string
}

// DashboardHandler serves the read-only dashboard API and the purchase proxy.
type DashboardHandler struct {
	logger   *xlogger.Logger
	session  SessionReader
	clock    ClockReader
	purchase domrepo.PurchaseClient
	limiter  *ratelimit.Limiter
	metrics  domrepo.Metrics

	// optional
	cache domrepo.SnapshotCache
	store domrepo.SampleStore
}

// DashboardOption configures DashboardHandler.
type DashboardOption func(*DashboardHandler)

// WithSnapshotCache lets /api/samples/latest fall back to the cache while
// the window is empty.
func WithSnapshotCache(c domrepo.SnapshotCache) DashboardOption {
	return func(h *DashboardHandler) { h.cache = c }
}

// WithSampleStore enables /api/history.
func WithSampleStore(s domrepo.SampleStore) DashboardOption {
	return func(h *DashboardHandler) { h.store = s }
}

func NewDashboardHandler(
	logger *xlogger.Logger,
	session SessionReader,
	clock ClockReader,
	purchase domrepo.PurchaseClient,
	limiter *ratelimit.Limiter,
	metrics domrepo.Metrics,
	opts ...DashboardOption,
) *DashboardHandler {
	h := &DashboardHandler{
		logger:   logger.Component("api"),
		session:  session,
		clock:    clock,
		purchase: purchase,
		limiter:  limiter,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *DashboardHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/samples", h.Samples)
	g.GET("/samples/latest", h.Latest)
	g.GET("/session", h.Session)
	g.GET("/clock", h.Clock)
	g.GET("/history", h.History)
	g.POST("/purchase", h.Purchase)
}

// Samples lists the rolling window oldest first; limit keeps the newest n.
func (h *DashboardHandler) Samples(c echo.Context) error {
	req := &models.SamplesQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var rows []models.Sample
	if req.Limit > 0 {
		rows = h.session.Recent(req.Limit)
	} else {
		rows = h.session.Snapshot()
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *DashboardHandler) Latest(c echo.Context) error {
	if s, ok := h.session.Latest(); ok {
		return xhttp.SuccessResponse(c, models.LatestSample{Sample: s, Source: "window"})
	}
	if h.cache != nil {
		s, ok, err := h.cache.GetLatest(c.Request().Context())
		if err != nil {
			h.logger.Warn("snapshot cache read failed", xlogger.Error(err))
		} else if ok {
			return xhttp.SuccessResponse(c, models.LatestSample{Sample: s, Source: "cache"})
		}
	}
	return xhttp.SuccessResponse(c, models.LatestSample{Sample: models.DefaultSample(), Source: "default"})
}

func (h *DashboardHandler) Session(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.session.Stats())
}

func (h *DashboardHandler) Clock(c echo.Context) error {
	return xhttp.SuccessResponse(c, models.ClockLabel{Label: h.clock.Label()})
}

// History reads persisted samples; from/to default to the last hour.
func (h *DashboardHandler) History(c echo.Context) error {
	if h.store == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("sample history is not configured"))
	}
	req := &models.HistoryQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	to, ok := parseBound(req.To, time.Now())
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_INVALID", "to", "to must be a timestamp", http.StatusBadRequest))
	}
	from, ok := parseBound(req.From, to.Add(-time.Hour))
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_INVALID", "from", "from must be a timestamp", http.StatusBadRequest))
	}
	if from.After(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must not be after to"))
	}

	start := time.Now()
	rows, err := h.store.Query(c.Request().Context(), from, to, req.Limit)
	h.metrics.RecordLatency("history_query", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("history_query")
		h.logger.Error("history query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadGatewayError("sample history unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// Purchase validates and forwards a buy order to the simulator. A refused
// purchase is reported as 409, an unreachable simulator as 502.
func (h *DashboardHandler) Purchase(c echo.Context) error {
	req := &models.PurchaseRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.limiter.Allow(c.RealIP()) {
		h.metrics.RecordDrop("purchase_rate_limited")
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many purchase requests"))
	}

	start := time.Now()
	res, err := h.purchase.Purchase(c.Request().Context(), *req)
	h.metrics.RecordLatency("purchase", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("purchase")
		h.logger.Error("purchase failed",
			xlogger.String("type", req.Type),
			xlogger.Float64("amount", req.Amount),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, xhttp.BadGatewayError("purchase service unavailable").WithError(err))
	}
	if !res.Success {
		h.logger.Info("purchase rejected",
			xlogger.String("type", req.Type),
			xlogger.Float64("amount", req.Amount),
			xlogger.Float64("storage", res.Storage),
		)
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("purchase rejected").WithParam("storage", res.Storage))
	}
	h.logger.Info("purchase accepted",
		xlogger.String("type", req.Type),
		xlogger.Float64("amount", req.Amount),
		xlogger.Float64("storage", res.Storage),
	)
	return xhttp.SuccessResponse(c, res)
}

func parseBound(s string, def time.Time) (time.Time, bool) {
	if s == "" {
		return def, true
	}
	return util.ParseTime(s)
}

// HealthStatus is the /healthz payload.
type HealthStatus struct {
	Status       string `json:"status"`
	SessionState string `json:"session_state"`
	Store        string `json:"store,omitempty"`
}

// Health reports liveness. The stream being down degrades but never fails it.
func (h *DashboardHandler) Health(c echo.Context) error {
	st := HealthStatus{Status: "ok", SessionState: h.session.Stats().State.String()}
	if st.SessionState != "open" {
		st.Status = "degraded"
	}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Health(ctx); err != nil {
			st.Store = "unavailable"
			st.Status = "degraded"
		} else {
			st.Store = "ok"
		}
	}
	return xhttp.SuccessResponse(c, st)
}
