package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Job is a task run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type scheduled struct {
	job     Job
	every   time.Duration
	lastRan time.Time
}

// Registry holds jobs with their own cadence. A job is due on the first
// tick and then once every cadence after its last run.
type Registry struct {
	mu      sync.Mutex
	entries []*scheduled
	byName  map[string]*scheduled
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: map[string]*scheduled{}}
}

// Register adds job to run every interval. Names must be unique since they
// key the job's lock and metrics.
func (r *Registry) Register(job Job, every time.Duration) error {
	if job == nil {
		return errors.New("job is required")
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return errors.New("job name is required")
	}
	if every <= 0 {
		return fmt.Errorf("job %s needs a positive cadence", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("job %s already registered", name)
	}
	entry := &scheduled{job: job, every: every}
	r.entries = append(r.entries, entry)
	r.byName[name] = entry
	return nil
}

// Due lists the jobs whose cadence has elapsed at now, in registration order.
func (r *Registry) Due(now time.Time) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Job
	for _, entry := range r.entries {
		if entry.lastRan.IsZero() || !now.Before(entry.lastRan.Add(entry.every)) {
			due = append(due, entry.job)
		}
	}
	return due
}

// Jobs lists every job in registration order.
func (r *Registry) Jobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]Job, len(r.entries))
	for i, entry := range r.entries {
		jobs[i] = entry.job
	}
	return jobs
}

// MarkRan restarts the cadence of name from at.
func (r *Registry) MarkRan(name string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.byName[name]; ok {
		entry.lastRan = at
	}
}

// Cadence reports the interval name was registered with.
func (r *Registry) Cadence(name string) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byName[name]
	if !ok {
		return 0, false
	}
	return entry.every, true
}
