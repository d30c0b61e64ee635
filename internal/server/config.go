package server

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dreamware/statusboard/internal/ingest"
	"github.com/dreamware/statusboard/internal/storage"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxUploadSize   = 10 << 20 // 10 MiB
	defaultMaxMessageSize  = 64 << 10 // 64 KiB
	defaultWriteTimeout    = 10 * time.Second
	defaultPingInterval    = 30 * time.Second
	defaultPingMaxFailures = 3
)

type Config struct {
	Store    *storage.Store
	Ingestor *ingest.Ingestor

	// Optional configuration.
	Clock           clockwork.Clock
	ShutdownTimeout time.Duration
	MaxUploadSize   int64
	MaxMessageSize  int64
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	PingMaxFailures int

	// CheckOrigin decides whether a WebSocket upgrade is accepted. Nil
	// accepts every origin.
	CheckOrigin func(origin string) bool
}

func (c *Config) Validate() error {
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.Ingestor == nil {
		return errors.New("ingestor is required")
	}

	// Optional configuration.
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = defaultMaxUploadSize
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PingMaxFailures <= 0 {
		c.PingMaxFailures = defaultPingMaxFailures
	}
	return nil
}
