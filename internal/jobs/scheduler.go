package jobs

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Job interface that all periodic bridge jobs must implement
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// JobScheduler runs jobs on fixed intervals. A run that overlaps the previous
// one is skipped rather than queued.
type JobScheduler struct {
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]Job
	handles map[string]gocron.Job
	stats   map[string]*jobStats
	running bool
}

type jobStats struct {
	runs      int64
	failures  int64
	lastRun   time.Time
	lastError string
	failing   bool
}

// JobStatus represents the status of a job
type JobStatus struct {
	Name        string        `json:"name"`
	Interval    time.Duration `json:"interval"`
	NextRunTime time.Time     `json:"next_run_time"`
	LastRunTime time.Time     `json:"last_run_time"`
	Runs        int64         `json:"runs"`
	Failures    int64         `json:"failures"`
	LastError   string        `json:"last_error,omitempty"`
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler() (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		scheduler: scheduler,
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]Job),
		handles:   make(map[string]gocron.Job),
		stats:     make(map[string]*jobStats),
	}, nil
}

// Register adds a job to the scheduler. It first runs as soon as the
// scheduler starts.
func (s *JobScheduler) Register(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	if job.Interval() <= 0 {
		return fmt.Errorf("job %q has no interval", name)
	}

	handle, err := s.scheduler.NewJob(
		gocron.DurationJob(job.Interval()),
		gocron.NewTask(func() { s.runJob(name, job) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to create job %q: %w", name, err)
	}

	s.jobs[name] = job
	s.handles[name] = handle
	s.stats[name] = &jobStats{}
	log.Printf("✅ [SCHEDULER] Registered job: %s (every %s)", name, job.Interval())
	return nil
}

// Start begins running all registered jobs
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.scheduler.Start()
	log.Printf("🚀 [SCHEDULER] Started job scheduler with %d jobs", len(s.jobs))
}

// runJob executes a job and records its outcome
func (s *JobScheduler) runJob(name string, job Job) {
	start := time.Now()
	err := job.Run(s.ctx)

	s.mu.Lock()
	st := s.stats[name]
	st.runs++
	st.lastRun = start
	if err != nil {
		st.failures++
		st.lastError = err.Error()
		if !st.failing {
			log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", name, err)
		}
		st.failing = true
	} else {
		if st.failing {
			log.Printf("✅ [SCHEDULER] Job '%s' recovered", name)
		}
		st.failing = false
		st.lastError = ""
	}
	s.mu.Unlock()

	slog.Debug("job completed", "job", name, "duration", time.Since(start), "error", err)
}

// Stop cancels running jobs and shuts the scheduler down
func (s *JobScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.cancel()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("scheduler shutdown: %w", err)
	}
	log.Println("✅ [SCHEDULER] Job scheduler stopped")
	return nil
}

// RunNow immediately runs a specific job on the caller's goroutine
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	job, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("job %q not found", name)
	}
	return job.Run(s.ctx)
}

// GetStatus returns the status of all jobs, ordered by name
func (s *JobScheduler) GetStatus() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for name, job := range s.jobs {
		st := s.stats[name]
		status := JobStatus{
			Name:        name,
			Interval:    job.Interval(),
			LastRunTime: st.lastRun,
			Runs:        st.runs,
			Failures:    st.failures,
			LastError:   st.lastError,
		}
		if s.running {
			if next, err := s.handles[name].NextRun(); err == nil {
				status.NextRunTime = next
			}
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
