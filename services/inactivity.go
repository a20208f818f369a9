package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"challenge-settlement-system/metrics"
	"challenge-settlement-system/models"
	"challenge-settlement-system/repository"
)

const day = 24 * time.Hour

// InactivityPenalizer deducts Penalty points, once per run, from every user
// who has not been in a challenge for more than WindowDays whole days.
type InactivityPenalizer struct {
	store      repository.Store
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	now        func() time.Time
	WindowDays int
	Penalty    int
	TxTimeout  time.Duration
}

func NewInactivityPenalizer(store repository.Store, m metrics.MetricsCollector, logger *slog.Logger) *InactivityPenalizer {
	return &InactivityPenalizer{
		store:      store,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
		WindowDays: 14,
		Penalty:    20,
		TxTimeout:  30 * time.Second,
	}
}

func (p *InactivityPenalizer) Name() string { return JobInactivityPenalty }

// IdleDays is the number of whole days since the user last took part in a challenge.
func IdleDays(u models.User, now time.Time) int {
	elapsed := now.Sub(u.LastActiveAt())
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / day)
}

func (p *InactivityPenalizer) overdue(u models.User, now time.Time) bool {
	return !u.IsInChallenge && IdleDays(u, now) > p.WindowDays
}

func (p *InactivityPenalizer) Run(ctx context.Context) (RunResult, error) {
	if p.Penalty <= 0 {
		p.logger.Info("inactivity penalty disabled", slog.Int("penalty", p.Penalty))
		return RunResult{}, nil
	}

	now := p.now()
	users, err := p.store.FindUsers(ctx, repository.UserFilter{InChallenge: repository.Bool(false)})
	if err != nil {
		p.logger.Error("failed to load idle users", slog.String("error", err.Error()))
		return RunResult{}, fmt.Errorf("load idle users: %w", err)
	}

	res := RunResult{Candidates: len(users)}
	for _, u := range users {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !p.overdue(u, now) {
			res.Skipped++
			continue
		}

		err := p.PenalizeUser(ctx, u.ID, now)
		switch {
		case err == nil:
			res.Applied++
			p.metrics.RecordPointDelta(string(models.PointReasonInactivity), -p.Penalty)
			p.logger.Info("inactivity penalty applied",
				slog.Uint64("user_id", uint64(u.ID)),
				slog.Int("idle_days", IdleDays(u, now)),
				slog.Int("penalty", p.Penalty),
			)
		case isSkip(err):
			res.Skipped++
		default:
			res.Failed++
			p.logger.Error("failed to apply inactivity penalty",
				slog.Uint64("user_id", uint64(u.ID)),
				slog.String("error", err.Error()),
			)
		}
	}
	return res, nil
}

// PenalizeUser re-reads the user under a row lock and deducts the penalty
// if the user is still idle past the window.
func (p *InactivityPenalizer) PenalizeUser(ctx context.Context, userID uint, now time.Time) error {
	if p.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.TxTimeout)
		defer cancel()
	}

	return p.store.Transaction(ctx, func(tx repository.Store) error {
		u, err := tx.GetUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if !p.overdue(*u, now) {
			return fmt.Errorf("user %d: %w", userID, ErrNotEligible)
		}

		if err := tx.UpdateUser(ctx, u.ID, repository.UserUpdate{PointDelta: -p.Penalty}); err != nil {
			return err
		}
		return tx.CreatePointTransaction(ctx, &models.PointTransaction{
			UserID:       u.ID,
			Reason:       models.PointReasonInactivity,
			Delta:        -p.Penalty,
			BalanceAfter: u.Point - p.Penalty,
		})
	})
}
