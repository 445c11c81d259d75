package cache

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSettings locate the shared snapshot cache. Keys are stored as
// "<Prefix>:<key>" so several dashboards can share one database.
type RedisSettings struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
	PoolSize int
}

func (s RedisSettings) options() *redis.Options {
	host, port := s.Host, s.Port
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 6379
	}
	pool := s.PoolSize
	if pool <= 0 {
		pool = 10
	}
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Password:     s.Password,
		DB:           s.DB,
		PoolSize:     pool,
		MinIdleConns: 1,
		PoolTimeout:  5 * time.Second,
	}
}

// MemorySettings bound the in-process cache. Zero values pick 1000 entries
// and a five minute sweep.
type MemorySettings struct {
	MaxEntries int
	Sweep      time.Duration
}

func (s MemorySettings) withDefaults() MemorySettings {
	if s.MaxEntries <= 0 {
		s.MaxEntries = 1000
	}
	if s.Sweep <= 0 {
		s.Sweep = 5 * time.Minute
	}
	return s
}
