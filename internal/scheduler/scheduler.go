package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mailbridge/mailbridge/pkg/logger"
	"github.com/mailbridge/mailbridge/pkg/metrics"
)

// Job is a unit of work that fires once at or after RunAt. All data the work
// needs is captured at scheduling time.
type Job struct {
	ID    string
	RunAt time.Time
	fn    func() error
}

// Scheduler is a process-local registry of deferred jobs with a scanning
// worker. Jobs are not persisted: a restart silently drops pending work.
// Fired and Failed are both terminal; there is no retry and no cancellation.
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]*Job

	tick time.Duration
	quit chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func New(tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{jobs: make(map[string]*Job), tick: tick, quit: make(chan struct{})}
}

// Schedule registers fn to run once at or after runAt and returns the job id.
// Identical calls produce distinct jobs; there is no deduplication.
func (s *Scheduler) Schedule(runAt time.Time, fn func() error) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.jobs[id] = &Job{ID: id, RunAt: runAt, fn: fn}
	s.mu.Unlock()
	metrics.JobsScheduled.Inc()
	return id
}

// Pending reports how many jobs have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Start launches the scanning worker.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-t.C:
			s.fireDue(time.Now())
		}
	}
}

// fireDue removes due jobs from the registry and runs each in its own
// goroutine. Removal happens before the run, so a job fires at most once.
// No ordering is guaranteed between jobs with equal run times.
func (s *Scheduler) fireDue(now time.Time) {
	s.mu.Lock()
	var due []*Job
	for id, j := range s.jobs {
		if !now.Before(j.RunAt) {
			due = append(due, j)
			delete(s.jobs, id)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		s.wg.Add(1)
		go func(j *Job) {
			defer s.wg.Done()
			if err := j.fn(); err != nil {
				metrics.JobsFailed.Inc()
				logger.Errorf("deferred job %s failed: %v", j.ID, err)
				return
			}
			metrics.JobsFired.Inc()
		}(j)
	}
}

// Stop halts the worker and waits for in-flight jobs to finish. Jobs that
// have not reached their run time are dropped.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.quit) })
	s.wg.Wait()
}
