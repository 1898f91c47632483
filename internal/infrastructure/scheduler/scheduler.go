// Package scheduler runs housekeeping jobs on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobStatus represents the outcome of a job's latest run
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Job is a unit of periodic work
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

// NewJob wraps fn as a Job
func NewJob(name string, fn func(ctx context.Context) error) Job {
	return funcJob{name: name, fn: fn}
}

// JobState is the run history of one job
type JobState struct {
	Name        string
	Status      JobStatus
	Runs        int
	Failures    int
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// start marks the job as running
func (s *JobState) start(now time.Time) {
	s.Status = JobStatusRunning
	s.StartedAt = &now
	s.Runs++
}

// complete marks the run as successful
func (s *JobState) complete(now time.Time) {
	s.Status = JobStatusSuccess
	s.CompletedAt = &now
	s.Error = ""
}

// fail marks the run as failed
func (s *JobState) fail(now time.Time, err string) {
	s.Status = JobStatusFailed
	s.CompletedAt = &now
	s.Error = err
	s.Failures++
}

// Config holds scheduler configuration
type Config struct {
	Interval   time.Duration
	JobTimeout time.Duration
	// RunOnStart runs every job once as soon as the scheduler starts
	RunOnStart bool
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Interval:   5 * time.Minute,
		JobTimeout: time.Minute,
	}
}

// Scheduler runs its registered jobs one after another on every tick
type Scheduler struct {
	config Config
	logger *zap.Logger

	mu        sync.Mutex
	jobs      []Job
	states    map[string]*JobState
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config: config,
		logger: logger,
		states: make(map[string]*JobState),
	}
}

// Register adds a job. Jobs cannot be added while the scheduler runs.
func (s *Scheduler) Register(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return ErrSchedulerRunning
	}
	if _, ok := s.states[job.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name())
	}
	s.jobs = append(s.jobs, job)
	s.states[job.Name()] = &JobState{Name: job.Name(), Status: JobStatusPending}
	return nil
}

// Start starts the tick loop
func (s *Scheduler) Start(ctx context.Context) error {
	if s.config.Interval <= 0 || s.config.JobTimeout <= 0 {
		return ErrInvalidConfig
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.loop(ctx, done)

	s.logger.Info("Scheduler started",
		zap.Int("jobs", len(s.jobs)),
		zap.Duration("interval", s.config.Interval),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels the running job, if any, and waits for the loop to exit
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if s.config.RunOnStart {
		s.RunOnce(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs every registered job once, in registration order.
// A failing job does not stop the ones after it.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		s.runJob(ctx, job)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	s.update(job.Name(), func(st *JobState) { st.start(time.Now()) })

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	start := time.Now()
	err := s.execute(jobCtx, job)
	if err != nil {
		s.update(job.Name(), func(st *JobState) { st.fail(time.Now(), err.Error()) })
		s.logger.Error("Job failed",
			zap.String("job", job.Name()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}

	s.update(job.Name(), func(st *JobState) { st.complete(time.Now()) })
	s.logger.Debug("Job completed",
		zap.String("job", job.Name()),
		zap.Duration("duration", time.Since(start)),
	)
}

// execute runs the job, turning a panic into an error
func (s *Scheduler) execute(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Job panicked",
				zap.String("job", job.Name()),
				zap.Any("panic", r),
				zap.Stack("stacktrace"),
			)
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job.Run(ctx)
}

func (s *Scheduler) update(name string, fn func(*JobState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[name]; ok {
		fn(st)
	}
}

// States returns a copy of every job's run history, sorted by name
func (s *Scheduler) States() []JobState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsRunning reports whether the tick loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
