package di

import (
	"context"
	"fmt"
	"time"

	"EnergyDash/internal/domain/repository"
	"EnergyDash/internal/handler/api"
	mid "EnergyDash/internal/middleware"
	internalrepo "EnergyDash/internal/repository"
	"EnergyDash/internal/service/feed"
	"EnergyDash/internal/service/ratelimit"
	"EnergyDash/internal/usecase"
	"EnergyDash/pkg/cache"
	pkgch "EnergyDash/pkg/clickhouse"
	"EnergyDash/pkg/config"
	xhttp "EnergyDash/pkg/http"
	pkgkafka "EnergyDash/pkg/kafka"
	applogger "EnergyDash/pkg/logger"
	"EnergyDash/pkg/metrics"
	"EnergyDash/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideFeedDialer creates the websocket feed client.
func ProvideFeedDialer(cfg *config.Config) repository.FeedDialer {
	return feed.New(
		cfg.Feed.URL,
		feed.WithDialTimeout(cfg.Feed.DialTimeout),
		feed.WithPingInterval(cfg.Feed.PingInterval),
		feed.WithReadLimit(cfg.Feed.ReadLimit),
	)
}

// ProvideCache creates the in-process or Redis cache.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if cfg.Cache.Backend == "redis" {
		c, err := cache.NewRedisCache(cache.RedisSettings{
			Host:     cfg.Cache.Redis.Host,
			Port:     cfg.Cache.Redis.Port,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return c, nil
	}
	return cache.NewMemoryCache(cache.MemorySettings{
		MaxEntries: 128,
		Sweep:      time.Minute,
	}), nil
}

// ProvideSnapshotCache keeps the latest sample in the cache.
func ProvideSnapshotCache(c cache.Service, cfg *config.Config) repository.SnapshotCache {
	return internalrepo.NewSnapshotCache(c, cfg.Cache.TTL)
}

// ProvideClickHouseClient connects to ClickHouse when the clickhouse sink is
// enabled, and returns nil otherwise.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouseEnabled() {
		return nil, nil
	}
	client, err := pkgch.NewClient(pkgch.Settings{
		Host:         cfg.ClickHouse.Host,
		Port:         cfg.ClickHouse.Port,
		Database:     cfg.ClickHouse.Database,
		User:         cfg.ClickHouse.User,
		Password:     cfg.ClickHouse.Password,
		PoolSize:     cfg.ClickHouse.PoolSize,
		UseHTTP:      cfg.ClickHouse.UseHTTP,
		AsyncInsert:  cfg.ClickHouse.AsyncInsert,
		WaitForAsync: cfg.ClickHouse.WaitForAsync,
		DialTimeout:  cfg.ClickHouse.DialTimeout,
		ReadTimeout:  cfg.ClickHouse.ReadTimeout,
		MaxExecTime:  cfg.ClickHouse.MaxExecutionTime,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideSampleStore creates the ClickHouse sample store and its schema.
func ProvideSampleStore(ch *pkgch.Client, cfg *config.Config) (repository.SampleStore, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseSampleStore(
		ch.DB(),
		cfg.ClickHouse.Database+"."+cfg.ClickHouse.Table,
		cfg.Window.StorageCapacityKWh,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ch.InitSchema(ctx, append([]string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
	}, store.Schema()...)); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer when the kafka sink is
// enabled, and returns nil otherwise.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.KafkaEnabled() {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(pkgkafka.WriterSettings{
		Brokers:      cfg.Kafka.Brokers,
		RequiredAcks: cfg.Kafka.RequiredAcks,
		Compression:  cfg.Kafka.Compression,
		MaxAttempts:  cfg.Kafka.Producer.MaxAttempts,
		BatchSize:    cfg.Kafka.Producer.BatchSize,
		BatchBytes:   cfg.Kafka.Producer.BatchBytes,
		Linger:       cfg.Kafka.Producer.Linger,
		WriteTimeout: cfg.Kafka.Producer.WriteTimeout,
		ReadTimeout:  cfg.Kafka.Producer.ReadTimeout,
		Async:        cfg.Kafka.Producer.Async,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSamplePublisher creates the Kafka sample publisher.
func ProvideSamplePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.SamplePublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaSamplePublisher(producer, cfg.Kafka.Topic)
}

// Sinks are the fan-out targets plus the batchers among them, which the app
// starts and flushes.
type Sinks struct {
	Sinks    []mid.Sink
	Batchers []*usecase.SampleBatcher
}

// ProvideSinks selects the fan-out targets. The snapshot cache is always a
// sink; store and publisher are batched when sinks.batch_size > 1.
func ProvideSinks(
	cfg *config.Config,
	m repository.Metrics,
	snaps repository.SnapshotCache,
	store repository.SampleStore,
	pub repository.SamplePublisher,
) Sinks {
	out := Sinks{Sinks: []mid.Sink{mid.CacheSink(snaps)}}
	batched := cfg.Sinks.BatchSize > 1
	if store != nil {
		if batched {
			b := usecase.NewStoreBatcher(store, m, cfg.Sinks.BatchSize, cfg.Sinks.BatchTimeout)
			out.Sinks = append(out.Sinks, b)
			out.Batchers = append(out.Batchers, b)
		} else {
			out.Sinks = append(out.Sinks, mid.StoreSink(store))
		}
	}
	if pub != nil {
		if batched {
			b := usecase.NewPublishBatcher(pub, m, cfg.Sinks.BatchSize, cfg.Sinks.BatchTimeout)
			out.Sinks = append(out.Sinks, b)
			out.Batchers = append(out.Batchers, b)
		} else {
			out.Sinks = append(out.Sinks, mid.PublisherSink(pub))
		}
	}
	return out
}

// ProvideFanout builds the sink fan-out.
func ProvideFanout(cfg *config.Config, l *applogger.Logger, m repository.Metrics, sinks Sinks) *mid.SampleFanout {
	return mid.NewSampleFanout(m, sinks.Sinks,
		mid.WithBufferSize(cfg.Sinks.BufferSize),
		mid.WithFanoutLogger(l),
	)
}

// ProvideSession creates the feed session and hooks it to the fan-out.
func ProvideSession(
	cfg *config.Config,
	dialer repository.FeedDialer,
	l *applogger.Logger,
	m repository.Metrics,
	fanout *mid.SampleFanout,
) *usecase.Session {
	return usecase.NewSession(dialer,
		usecase.SessionConfig{
			ReconnectDelay:     cfg.Feed.ReconnectDelay,
			WindowCapacity:     cfg.Window.Capacity,
			StorageCapacityKWh: cfg.Window.StorageCapacityKWh,
		},
		usecase.WithSessionLogger(l),
		usecase.WithSessionMetrics(m),
		usecase.WithSampleHook(fanout.Submit),
	)
}

// ProvideClock creates the display clock.
func ProvideClock(cfg *config.Config) *usecase.Clock {
	return usecase.NewClock(cfg.Clock.Interval, cfg.Clock.Layout)
}

// ProvidePurchaseClient creates the simulator purchase client.
func ProvidePurchaseClient(cfg *config.Config) repository.PurchaseClient {
	return internalrepo.NewHTTPPurchaseClient(
		xhttp.NewClient(xhttp.WithTimeout(cfg.Purchase.Timeout)),
		cfg.Purchase.BaseURL,
	)
}

// ProvideLimiter creates the per-client purchase rate limiter.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Purchase.RateLimit.Capacity, cfg.Purchase.RateLimit.RefillPerSec)
}

// ProvideDashboardHandler creates the HTTP API.
func ProvideDashboardHandler(
	l *applogger.Logger,
	session *usecase.Session,
	clock *usecase.Clock,
	purchase repository.PurchaseClient,
	limiter *ratelimit.Limiter,
	m repository.Metrics,
	snaps repository.SnapshotCache,
	store repository.SampleStore,
) *api.DashboardHandler {
	opts := []api.DashboardOption{api.WithSnapshotCache(snaps)}
	if store != nil {
		opts = append(opts, api.WithSampleStore(store))
	}
	return api.NewDashboardHandler(l, session, clock, purchase, limiter, m, opts...)
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.DashboardHandler) *xhttp.Server {
	return xhttp.NewServer(h.RegisterRoutes, l,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithCORS(cfg.Server.CORSOrigins...),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithMetrics(cfg.Metrics.Enabled, cfg.Metrics.Path),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	session *usecase.Session,
	clock *usecase.Clock,
	fanout *mid.SampleFanout,
	sinks Sinks,
	limiter *ratelimit.Limiter,
	httpServer *xhttp.Server,
	c cache.Service,
	ch *pkgch.Client,
	pub repository.SamplePublisher,
) *server.App {
	app := server.New(cfg, l, session, clock, fanout, limiter, httpServer)
	for _, b := range sinks.Batchers {
		app.AddBatcher(b)
	}
	app.AddCloser("cache", c)
	if pub != nil {
		app.AddCloser("kafka", pub)
	}
	if ch != nil {
		app.AddCloser("clickhouse", ch)
	}
	return app
}
