package services

import (
	"context"
	"log/slog"

	"challenge-settlement-system/models"
	"challenge-settlement-system/repository"
)

// ReportArchiver stores a copy of a finished run outside the database.
type ReportArchiver interface {
	Archive(ctx context.Context, run models.SettlementRun) error
}

// RunJournal persists settlement runs and hands them to the archiver.
// Journal failures are logged and never affect the settlement itself.
type RunJournal struct {
	store    repository.Store
	archiver ReportArchiver
	logger   *slog.Logger
}

// NewRunJournal creates a journal. archiver may be nil.
func NewRunJournal(store repository.Store, archiver ReportArchiver, logger *slog.Logger) *RunJournal {
	return &RunJournal{store: store, archiver: archiver, logger: logger}
}

func (j *RunJournal) Record(ctx context.Context, run *models.SettlementRun) {
	if err := j.store.CreateSettlementRun(ctx, run); err != nil {
		j.logger.Error("failed to journal settlement run",
			slog.String("run_id", run.ID),
			slog.String("job", run.Job),
			slog.String("error", err.Error()),
		)
	}
	if j.archiver == nil {
		return
	}
	if err := j.archiver.Archive(ctx, *run); err != nil {
		j.logger.Warn("failed to archive settlement run report",
			slog.String("run_id", run.ID),
			slog.String("job", run.Job),
			slog.String("error", err.Error()),
		)
	}
}

// Recent lists the latest runs, newest first.
func (j *RunJournal) Recent(ctx context.Context, job string, limit int) ([]models.SettlementRun, error) {
	return j.store.ListSettlementRuns(ctx, job, limit)
}
