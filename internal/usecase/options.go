package usecase

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eslsoft/spacedrep/internal/entity"
	"github.com/eslsoft/spacedrep/internal/hlr"
	"github.com/eslsoft/spacedrep/internal/infrastructure/config"
	"github.com/eslsoft/spacedrep/internal/infrastructure/metrics"
)

const (
	defaultStorageTimeout = 5 * time.Second
	defaultQueueLimit     = 20
	maxQueueLimit         = 100
)

// Options carries the model parameters and service-level limits shared by the usecases.
type Options struct {
	Model             hlr.Config
	StorageTimeout    time.Duration
	DefaultQueueLimit int
	MaxQueueLimit     int
}

// DefaultOptions returns the reference model with the default service limits.
func DefaultOptions() Options {
	return Options{
		Model:             hlr.DefaultConfig(),
		StorageTimeout:    defaultStorageTimeout,
		DefaultQueueLimit: defaultQueueLimit,
		MaxQueueLimit:     maxQueueLimit,
	}
}

// NewOptions builds validated options from application config.
func NewOptions(cfg *config.Config) (Options, error) {
	model, err := cfg.HLRConfig()
	if err != nil {
		return Options{}, err
	}
	def, limit := cfg.QueueLimits()
	return Options{
		Model:             model,
		StorageTimeout:    cfg.StorageTimeout(),
		DefaultQueueLimit: def,
		MaxQueueLimit:     limit,
	}.normalized(), nil
}

func (o Options) normalized() Options {
	if o.StorageTimeout <= 0 {
		o.StorageTimeout = defaultStorageTimeout
	}
	if o.MaxQueueLimit <= 0 {
		o.MaxQueueLimit = maxQueueLimit
	}
	if o.DefaultQueueLimit <= 0 || o.DefaultQueueLimit > o.MaxQueueLimit {
		o.DefaultQueueLimit = min(defaultQueueLimit, o.MaxQueueLimit)
	}
	return o
}

// storage bundles the timeout and failure accounting applied around every
// persistence call.
type storage struct {
	timeout time.Duration
	logger  logrus.FieldLogger
	metrics *metrics.Collector
}

func (s storage) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// fail classifies err and records it when it is a storage failure.
func (s storage) fail(op string, err error) error {
	err = entity.NewStorageError(op, err)
	if entity.IsStorage(err) {
		s.metrics.ObserveStorageError(op)
		s.logger.WithError(err).WithField("op", op).Error("storage operation failed")
	}
	return err
}

func historyOf(s *entity.LearnerContentState) hlr.History {
	return hlr.History{
		Repetitions:     s.Repetitions,
		SuccessCount:    s.SuccessCount,
		TotalReviews:    s.TotalReviews,
		EaseFactor:      s.EaseFactor,
		CurrentInterval: s.CurrentInterval,
	}
}

func nopLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
