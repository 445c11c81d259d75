package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// WriterSettings configure the writer behind a Producer. Messages are
// always balanced by key so samples sharing a datetime land on one partition.
type WriterSettings struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	BatchSize    int
	BatchBytes   int
	Linger       time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	Async        bool
}

func (s WriterSettings) withDefaults() WriterSettings {
	if s.Compression == "" {
		s.Compression = "gzip"
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 3
	}
	if s.BatchSize <= 0 {
		s.BatchSize = 100
	}
	if s.BatchBytes <= 0 {
		s.BatchBytes = 1 << 20
	}
	if s.Linger <= 0 {
		s.Linger = time.Second
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = 10 * time.Second
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = 10 * time.Second
	}
	return s
}

func (s WriterSettings) writer() *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(s.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(s.RequiredAcks),
		Compression:  parseCompression(s.Compression),
		MaxAttempts:  s.MaxAttempts,
		WriteTimeout: s.WriteTimeout,
		ReadTimeout:  s.ReadTimeout,
		BatchSize:    s.BatchSize,
		BatchBytes:   int64(s.BatchBytes),
		BatchTimeout: s.Linger,
		Async:        s.Async,
	}
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}
