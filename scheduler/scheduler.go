// Package scheduler is an explicit job registry over a cron runner. Jobs are
// registered by name with a cron cadence and can also be driven manually via
// RunOnce, which is how tests and the ops endpoint trigger them.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one batch of work. It always runs to completion against its initial
// snapshot of due work; the context bounds individual datastore calls, not
// the job's lifetime.
type Job func(ctx context.Context) error

// Scheduler triggers registered jobs on their cron cadence.
type Scheduler struct {
	cron *cron.Cron

	mu   sync.Mutex
	jobs map[string]Job
}

// New creates an empty Scheduler using standard 5-field cron expressions.
func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		jobs: make(map[string]Job),
	}
}

// Register adds a named job on the given cron cadence. Registering the same
// name twice is a programming error and is rejected.
func (s *Scheduler) Register(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	_, err := s.cron.AddFunc(spec, func() {
		s.execute(name, job)
	})
	if err != nil {
		return fmt.Errorf("registering job %q: %w", name, err)
	}

	s.jobs[name] = job
	return nil
}

// RunOnce executes a registered job immediately, outside its cadence.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return job(ctx)
}

// Names returns the registered job names.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Start begins cron-driven execution.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron runner and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// execute runs one job invocation with timing and error logging. A failing
// job is not retried; it simply waits for its next scheduled invocation.
func (s *Scheduler) execute(name string, job Job) {
	start := time.Now()
	err := job(context.Background())
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		log.Printf("job %q failed after %s: %v", name, elapsed, err)
		return
	}
	log.Printf("job %q finished in %s", name, elapsed)
}
