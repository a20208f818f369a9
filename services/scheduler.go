// services/scheduler.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"challenge-settlement-system/metrics"
	"challenge-settlement-system/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

var (
	ErrUnknownJob = errors.New("unknown settlement job")
	ErrJobRunning = errors.New("settlement job already running")
)

// Cadence returns the firing schedule: a fixed interval when one is set,
// otherwise the cron expression (minute resolution).
func Cadence(cronExpr string, interval time.Duration) gocron.JobDefinition {
	if interval > 0 {
		return gocron.DurationJob(interval)
	}
	return gocron.CronJob(cronExpr, false)
}

// Scheduler fires the registered jobs, in registration order, at every
// scheduled instant. Jobs never overlap with themselves: a firing that finds
// the previous one still running is skipped, and RunNow refuses a job that is
// already in progress.
type Scheduler struct {
	sched   gocron.Scheduler
	cadence gocron.JobDefinition
	journal *RunJournal
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time

	JobTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    []Job
	running map[string]bool
}

// NewScheduler creates a stopped scheduler. loc may be nil for the local zone.
func NewScheduler(cadence gocron.JobDefinition, loc *time.Location, journal *RunJournal, m metrics.MetricsCollector, logger *slog.Logger) (*Scheduler, error) {
	var opts []gocron.SchedulerOption
	if loc != nil {
		opts = append(opts, gocron.WithLocation(loc))
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sched:      sched,
		cadence:    cadence,
		journal:    journal,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
		JobTimeout: 30 * time.Minute,
		ctx:        ctx,
		cancel:     cancel,
		running:    map[string]bool{},
	}, nil
}

// Register adds jobs. Order matters: they run in the order registered.
func (s *Scheduler) Register(jobs ...Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, jobs...)
}

// Jobs returns the registered job names in run order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name()
	}
	return names
}

// Start schedules the settlement firing and starts the scheduler.
func (s *Scheduler) Start() error {
	_, err := s.sched.NewJob(
		s.cadence,
		gocron.NewTask(func() {
			s.RunAll(s.ctx)
		}),
		gocron.WithName("settlement"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule settlement: %w", err)
	}
	s.sched.Start()
	s.logger.Info("settlement scheduler started", slog.Any("jobs", s.Jobs()))
	return nil
}

// Shutdown cancels in-flight jobs and stops the scheduler.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.sched.Shutdown()
}

// RunAll runs every registered job once, in order. A failing or panicking
// job does not stop the ones after it.
func (s *Scheduler) RunAll(ctx context.Context) {
	s.mu.Lock()
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.runJob(ctx, job); err != nil {
			if errors.Is(err, ErrJobRunning) {
				s.logger.Warn("skipping overlapping job run", slog.String("job", job.Name()))
			}
		}
	}
}

// RunNow runs the named job immediately and returns its journal entry.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*models.SettlementRun, error) {
	s.mu.Lock()
	var job Job
	for _, j := range s.jobs {
		if j.Name() == name {
			job = j
			break
		}
	}
	s.mu.Unlock()
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.runJob(ctx, job)
}

func (s *Scheduler) acquire(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, name)
}

func (s *Scheduler) runJob(parent context.Context, job Job) (*models.SettlementRun, error) {
	name := job.Name()
	if !s.acquire(name) {
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	defer s.release(name)

	ctx := parent
	if s.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.JobTimeout)
		defer cancel()
	}

	run := &models.SettlementRun{ID: uuid.NewString(), Job: name, StartedAt: s.now()}
	res, err := safeRun(ctx, job)
	run.FinishedAt = s.now()
	run.Candidates = res.Candidates
	run.Applied = res.Applied
	run.Skipped = res.Skipped
	run.Failed = res.Failed
	if err != nil {
		run.Error = err.Error()
	}

	s.metrics.RecordJobRun(name, run.Duration(), res.Applied, res.Skipped, res.Failed)

	attrs := []any{
		slog.String("job", name),
		slog.String("run_id", run.ID),
		slog.Int("candidates", res.Candidates),
		slog.Int("applied", res.Applied),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
		slog.Float64("duration_ms", float64(run.Duration().Milliseconds())),
	}
	if err != nil {
		s.logger.Error("settlement job failed", append(attrs, slog.String("error", err.Error()))...)
	} else {
		s.logger.Info("settlement job finished", attrs...)
	}

	if s.journal != nil {
		jctx, cancel := context.WithTimeout(context.WithoutCancel(parent), 10*time.Second)
		s.journal.Record(jctx, run)
		cancel()
	}
	return run, err
}

func safeRun(ctx context.Context, job Job) (res RunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}
