package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"challenge-settlement-system/metrics"
	"challenge-settlement-system/models"
	"challenge-settlement-system/repository"
)

// PointDistributor settles challenges whose end date has passed.
// Every challenge is settled in its own transaction; a failure rolls back
// that challenge only and leaves it pending for the next run.
type PointDistributor struct {
	store     repository.Store
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
	TxTimeout time.Duration
}

func NewPointDistributor(store repository.Store, m metrics.MetricsCollector, logger *slog.Logger) *PointDistributor {
	return &PointDistributor{
		store:     store,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
		TxTimeout: 30 * time.Second,
	}
}

func (d *PointDistributor) Name() string { return JobPointDistribution }

// Settlement is the committed outcome of one challenge.
type Settlement struct {
	Challenge models.Challenge
	Plan      PayoutPlan
}

func (d *PointDistributor) Run(ctx context.Context) (RunResult, error) {
	now := d.now()
	candidates, err := d.store.FindChallenges(ctx, repository.ChallengeFilter{
		EndedBy:     now,
		Distributed: repository.Bool(false),
	})
	if err != nil {
		d.logger.Error("failed to load challenges to distribute", slog.String("error", err.Error()))
		return RunResult{}, fmt.Errorf("load challenges to distribute: %w", err)
	}

	res := RunResult{Candidates: len(candidates)}
	for _, c := range candidates {
		if ctx.Err() != nil {
			d.logger.Warn("point distribution interrupted",
				slog.Int("remaining", res.Candidates-res.Applied-res.Skipped-res.Failed),
				slog.String("error", ctx.Err().Error()),
			)
			return res, ctx.Err()
		}

		s, err := d.SettleChallenge(ctx, c.ID)
		switch {
		case err == nil:
			res.Applied++
			for _, po := range s.Plan.Payouts {
				d.metrics.RecordPointDelta(string(po.Reason), po.Delta)
			}
			d.logger.Info("challenge settled",
				slog.Uint64("challenge_id", uint64(c.ID)),
				slog.Int("entry_point", s.Plan.EntryPoint),
				slog.Int("succeeded", s.Plan.Succeeded),
				slog.Int("failed", s.Plan.Failed),
				slog.Int("rounding_loss", s.Plan.Remainder()),
			)
		case isSkip(err):
			res.Skipped++
			d.logger.Debug("challenge skipped",
				slog.Uint64("challenge_id", uint64(c.ID)),
				slog.String("reason", err.Error()),
			)
		default:
			res.Failed++
			d.logger.Error("challenge settlement rolled back",
				slog.Uint64("challenge_id", uint64(c.ID)),
				slog.String("error", err.Error()),
			)
		}
	}
	return res, nil
}

// SettleChallenge applies the payout plan of one challenge atomically.
// The challenge row is locked and re-checked inside the transaction, and
// is_distributed is flipped by a conditional write as the last statement,
// so concurrent runs settle each challenge at most once.
func (d *PointDistributor) SettleChallenge(ctx context.Context, challengeID uint) (*Settlement, error) {
	if d.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.TxTimeout)
		defer cancel()
	}

	var settled *Settlement
	err := d.store.Transaction(ctx, func(tx repository.Store) error {
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

		challengers, err := tx.GetChallengers(ctx, c.ID)
		if err != nil {
			return err
		}
		if len(challengers) == 0 {
			return fmt.Errorf("challenge %d: %w", c.ID, ErrNoChallengers)
		}

		plan := ComputePayouts(c.EntryPoint, challengers)
		endDate := c.EndDate
		challengeRef := c.ID

		for _, po := range plan.Payouts {
			user, err := tx.GetUserForUpdate(ctx, po.UserID)
			if err != nil {
				return fmt.Errorf("challenger %d: %w", po.ChallengerID, err)
			}
			if err := tx.UpdateUser(ctx, user.ID, repository.UserUpdate{
				PointDelta:          po.Delta,
				IsInChallenge:       repository.Bool(false),
				LatestChallengeDate: &endDate,
			}); err != nil {
				return err
			}
			if err := tx.CreatePointTransaction(ctx, &models.PointTransaction{
				UserID:       user.ID,
				ChallengeID:  &challengeRef,
				Reason:       po.Reason,
				Delta:        po.Delta,
				BalanceAfter: user.Point + po.Delta,
			}); err != nil {
				return err
			}
		}

		if err := tx.MarkDistributed(ctx, c.ID); err != nil {
			return err
		}
		c.IsDistributed = true
		settled = &Settlement{Challenge: *c, Plan: plan}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}
