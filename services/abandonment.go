package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"challenge-settlement-system/repository"
)

// AbandonmentReaper deletes started challenges nobody but the host joined.
// It runs before PointDistributor in the same firing.
type AbandonmentReaper struct {
	store     repository.Store
	logger    *slog.Logger
	now       func() time.Time
	TxTimeout time.Duration
}

func NewAbandonmentReaper(store repository.Store, logger *slog.Logger) *AbandonmentReaper {
	return &AbandonmentReaper{
		store:     store,
		logger:    logger,
		now:       time.Now,
		TxTimeout: 30 * time.Second,
	}
}

func (r *AbandonmentReaper) Name() string { return JobAbandonmentReaper }

func (r *AbandonmentReaper) Run(ctx context.Context) (RunResult, error) {
	candidates, err := r.store.FindChallenges(ctx, repository.ChallengeFilter{
		StartedBy:   r.now(),
		Distributed: repository.Bool(false),
	})
	if err != nil {
		r.logger.Error("failed to load started challenges", slog.String("error", err.Error()))
		return RunResult{}, fmt.Errorf("load started challenges: %w", err)
	}

	res := RunResult{Candidates: len(candidates)}
	for _, c := range candidates {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		err := r.ReapChallenge(ctx, c.ID)
		switch {
		case err == nil:
			res.Applied++
			r.logger.Info("abandoned challenge deleted", slog.Uint64("challenge_id", uint64(c.ID)))
		case isSkip(err):
			res.Skipped++
		default:
			res.Failed++
			r.logger.Error("failed to reap challenge",
				slog.Uint64("challenge_id", uint64(c.ID)),
				slog.String("error", err.Error()),
			)
		}
	}
	return res, nil
}

// ReapChallenge deletes the challenge if its host is still its only
// challenger and releases the host. ErrNotEligible is returned when
// somebody else joined.
func (r *AbandonmentReaper) ReapChallenge(ctx context.Context, challengeID uint) error {
	if r.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.TxTimeout)
		defer cancel()
	}

	return r.store.Transaction(ctx, func(tx repository.Store) error {
		c, err := tx.GetChallengeForUpdate(ctx, challengeID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("challenge %d: %w", challengeID, ErrChallengeGone)
			}
			return err
		}
		if c.IsDistributed {
			return fmt.Errorf("challenge %d: %w", challengeID, repository.ErrAlreadyDistributed)
		}

		count, err := tx.CountChallengers(ctx, c.ID)
		if err != nil {
			return err
		}
		switch {
		case count == 0:
			return fmt.Errorf("challenge %d: %w", c.ID, ErrNoChallengers)
		case count > 1:
			return fmt.Errorf("challenge %d has %d challengers: %w", c.ID, count, ErrNotEligible)
		}

		host, err := tx.GetHost(ctx, c.ID)
		if err != nil {
			return err
		}
		err = tx.UpdateUser(ctx, host.UserID, repository.UserUpdate{IsInChallenge: repository.Bool(false)})
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			// The host account is gone; the challenge is still abandoned.
			r.logger.Warn("host user missing while reaping", slog.Uint64("challenge_id", uint64(c.ID)),
				slog.Uint64("user_id", uint64(host.UserID)))
		}

		return tx.DeleteChallenge(ctx, c.ID)
	})
}
