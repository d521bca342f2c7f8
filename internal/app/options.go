package app

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cimillas/ticket-inventory/internal/metrics"
)

const (
	defaultHoldDuration   = 15 * time.Minute
	defaultReaperInterval = 30 * time.Second
	defaultReaperBatch    = 100
)

type settings struct {
	holdDuration   time.Duration
	reaperInterval time.Duration
	reaperBatch    int
	logger         logrus.FieldLogger
	notifier       Notifier
	metrics        *metrics.Metrics
}

func newSettings(opts []Option) settings {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := settings{
		holdDuration:   defaultHoldDuration,
		reaperInterval: defaultReaperInterval,
		reaperBatch:    defaultReaperBatch,
		logger:         discard,
		notifier:       nopNotifier{},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures the engine's services. Options a service does not use are ignored.
type Option func(*settings)

// WithHoldDuration overrides how long a PENDING registration holds its unit.
// Zero is allowed and makes every hold immediately reapable.
func WithHoldDuration(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.holdDuration = d
		}
	}
}

// WithReaperInterval sets the delay between expiry sweeps.
func WithReaperInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.reaperInterval = d
		}
	}
}

// WithReaperBatchSize caps how many expired registrations one sweep handles.
func WithReaperBatchSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.reaperBatch = n
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *settings) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}
