// Package repository is the record store consumed by the settlement jobs.
package repository

import (
	"context"
	"errors"
	"time"

	"challenge-settlement-system/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyDistributed is returned by MarkDistributed when another
	// writer settled the challenge first.
	ErrAlreadyDistributed = errors.New("challenge already distributed")
)

// ChallengeFilter selects challenges by their settlement thresholds.
// Zero values mean "no constraint".
type ChallengeFilter struct {
	StartedBy   time.Time // start_date <= StartedBy
	EndedBy     time.Time // end_date <= EndedBy
	Distributed *bool
}

// UserFilter selects users for the inactivity scan.
type UserFilter struct {
	InChallenge *bool
}

// UserUpdate is a partial update of the settlement-owned user fields.
// PointDelta is applied relative to the stored balance.
type UserUpdate struct {
	PointDelta          int
	IsInChallenge       *bool
	LatestChallengeDate *time.Time
}

// Store is the read/write surface the settlement jobs need.
// Methods called on the Store handed to Transaction's callback run inside that
// transaction; the callback's error rolls everything back.
type Store interface {
	FindChallenges(ctx context.Context, f ChallengeFilter) ([]models.Challenge, error)
	GetChallengeForUpdate(ctx context.Context, id uint) (*models.Challenge, error)
	CountChallengers(ctx context.Context, challengeID uint) (int64, error)
	GetHost(ctx context.Context, challengeID uint) (*models.Challenger, error)
	GetChallengers(ctx context.Context, challengeID uint) ([]models.Challenger, error)
	DeleteChallenge(ctx context.Context, id uint) error
	MarkDistributed(ctx context.Context, id uint) error

	FindUsers(ctx context.Context, f UserFilter) ([]models.User, error)
	GetUserForUpdate(ctx context.Context, id uint) (*models.User, error)
	UpdateUser(ctx context.Context, id uint, u UserUpdate) error

	CreatePointTransaction(ctx context.Context, pt *models.PointTransaction) error
	CreateSettlementRun(ctx context.Context, run *models.SettlementRun) error
	ListSettlementRuns(ctx context.Context, job string, limit int) ([]models.SettlementRun, error)

	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// Bool returns a pointer to b, for filters and partial updates.
func Bool(b bool) *bool {
	return &b
}
