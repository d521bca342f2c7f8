package app

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cimillas/ticket-inventory/internal/clock"
	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/cimillas/ticket-inventory/internal/metrics"
)

// Reaper cancels PENDING registrations whose hold deadline passed and
// returns their units to the pool.
type Reaper struct {
	repo         ReservationRepository
	reservations *ReservationService
	clock        clock.Clock
	interval     time.Duration
	batch        int
	logger       logrus.FieldLogger
	metrics      *metrics.Metrics
}

func NewReaper(repo ReservationRepository, reservations *ReservationService, clk clock.Clock, opts ...Option) *Reaper {
	s := newSettings(opts)
	return &Reaper{
		repo:         repo,
		reservations: reservations,
		clock:        clk,
		interval:     s.reaperInterval,
		batch:        s.reaperBatch,
		logger:       s.logger.WithField("object", "reaper"),
		metrics:      s.metrics,
	}
}

type SweepResult struct {
	Scanned int
	Expired int
	// Skipped counts candidates finalized by someone else between the scan
	// and the lock.
	Skipped int
	Failed  int
}

// Sweep expires one batch of overdue registrations, each in its own
// transaction. The returned error joins every unexpected failure; lost races
// are not failures.
func (r *Reaper) Sweep(ctx context.Context) (SweepResult, error) {
	now := r.clock.Now()
	ids, err := r.repo.ListExpiredPending(ctx, now, r.batch)
	if err != nil {
		r.metrics.Sweep(0, true)
		return SweepResult{}, err
	}

	result := SweepResult{Scanned: len(ids)}
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := r.reservations.expire(ctx, id, now)
		switch {
		case err == nil:
			result.Expired++
		case lostRace(err):
			result.Skipped++
		default:
			result.Failed++
			errs = append(errs, err)
			r.logger.WithError(err).WithField("registration_id", id).Error("expire registration")
		}
	}

	r.metrics.Sweep(result.Expired, len(errs) > 0)
	if result.Scanned > 0 {
		r.logger.WithFields(logrus.Fields{
			"scanned": result.Scanned,
			"expired": result.Expired,
			"skipped": result.Skipped,
			"failed":  result.Failed,
		}).Info("sweep finished")
	}
	return result, errors.Join(errs...)
}

func lostRace(err error) bool {
	return errors.Is(err, domain.ErrAlreadyFinalized) ||
		errors.Is(err, domain.ErrAlreadyConfirmed) ||
		errors.Is(err, domain.ErrRegistrationNotFound) ||
		errors.Is(err, errHoldActive)
}

// Run sweeps immediately and then every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	r.logger.WithField("interval", r.interval.String()).Info("reaper started")
	defer r.logger.Info("reaper stopped")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil {
			r.logger.WithError(err).Warn("sweep failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
