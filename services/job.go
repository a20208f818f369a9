package services

import (
	"context"
	"errors"

	"challenge-settlement-system/repository"
)

const (
	JobAbandonmentReaper = "abandonment-reaper"
	JobPointDistribution = "point-distribution"
	JobInactivityPenalty = "inactivity-penalty"
)

var (
	// ErrChallengeGone means the challenge was deleted between the scan and its transaction.
	ErrChallengeGone = errors.New("challenge no longer exists")
	// ErrNoChallengers means a challenge has no participation rows at all.
	ErrNoChallengers = errors.New("challenge has no challengers")
	// ErrNotEligible means the record no longer matches the job's predicate once locked.
	ErrNotEligible = errors.New("record no longer eligible")
)

// Job is one settlement pass. Run returns an error only when the candidate
// scan itself fails; per-record failures are counted in the result.
type Job interface {
	Name() string
	Run(ctx context.Context) (RunResult, error)
}

// RunResult counts what happened to the candidates of one run.
type RunResult struct {
	Candidates int
	Applied    int
	Skipped    int
	Failed     int
}

// isSkip reports whether err means "someone else already handled this record".
func isSkip(err error) bool {
	return errors.Is(err, ErrChallengeGone) ||
		errors.Is(err, ErrNotEligible) ||
		errors.Is(err, repository.ErrAlreadyDistributed)
}
