package clickhouse

import (
	"fmt"
	"net/url"
	"time"
)

// Settings describe the sample store's connection. Zero fields fall back to
// the driver-friendly defaults in withDefaults.
type Settings struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	// PoolSize caps open connections; half of them are kept idle.
	PoolSize int

	UseHTTP      bool
	AsyncInsert  bool
	WaitForAsync bool

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	MaxExecTime  time.Duration
	ConnLifetime time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.Port == 0 {
		s.Port = 9000
	}
	if s.Database == "" {
		s.Database = "default"
	}
	if s.User == "" {
		s.User = "default"
	}
	if s.PoolSize <= 0 {
		s.PoolSize = 10
	}
	if s.DialTimeout <= 0 {
		s.DialTimeout = 5 * time.Second
	}
	if s.ConnLifetime <= 0 {
		s.ConnLifetime = 5 * time.Minute
	}
	return s
}

func (s Settings) idleConns() int {
	if n := s.PoolSize / 2; n > 0 {
		return n
	}
	return 1
}

// DSN renders the clickhouse-go connection string.
func (s Settings) DSN() string {
	scheme := "clickhouse"
	if s.UseHTTP {
		scheme = "http"
	}
	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(s.User, s.Password),
		Host:   fmt.Sprintf("%s:%d", s.Host, s.Port),
		Path:   "/" + s.Database,
	}

	q := url.Values{}
	if s.DialTimeout > 0 {
		q.Set("dial_timeout", s.DialTimeout.String())
	}
	if s.ReadTimeout > 0 {
		q.Set("read_timeout", s.ReadTimeout.String())
	}
	if s.MaxExecTime > 0 {
		q.Set("max_execution_time", fmt.Sprint(int(s.MaxExecTime.Seconds())))
	}
	if s.AsyncInsert {
		q.Set("async_insert", "1")
		if s.WaitForAsync {
			q.Set("wait_for_async_insert", "1")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
