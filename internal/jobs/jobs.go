// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package jobs is the in-process job runner (C12): single-flight units
// of work with progress counters, an ETA hint, and an SSE-friendly
// broadcaster whose per-subscriber queues are bounded and drop the
// oldest pending update on overflow rather than block the worker.
package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inboxforge/mailpipe/pkg/log"
	"github.com/inboxforge/mailpipe/pkg/schema"
)

const maxErrorSamples = 20
const subscriberQueueSize = 25

// Job is the runner's live handle to a unit of work. Workers mutate it
// through the Registry so updates are observed consistently and
// broadcast to subscribers.
type Job struct {
	mu     sync.Mutex
	status schema.JobStatus
}

// Registry owns job lifecycle and the per-job broadcaster set. Jobs are
// not persistent across process restarts — spec.md §4.7 accepts this;
// outboxes and checkpoints are what make the pipeline durable.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job
	bus  *Broadcaster
}

func NewRegistry(bus *Broadcaster) *Registry {
	return &Registry{jobs: make(map[string]*Job), bus: bus}
}

// MakeJobID mirrors the source system's "job-<yyyymmdd-hhmmss>-<kind>-<hex>" format.
func MakeJobID(kind string, now time.Time) string {
	stamp := now.UTC().Format("20060102-150405")
	return fmt.Sprintf("job-%s-%s-%s", stamp, kind, uuid.New().String()[:6])
}

// Start creates and registers a new queued job, publishes its initial
// snapshot, and returns the job handle.
func (r *Registry) Start(kind string, now time.Time) *Job {
	id := MakeJobID(kind, now)
	j := &Job{status: schema.JobStatus{
		JobID:     id,
		Kind:      kind,
		State:     schema.JobStateQueued,
		StartedAt: now,
		UpdatedAt: now,
	}}

	r.mu.Lock()
	r.jobs[id] = j
	r.mu.Unlock()

	r.bus.publish(id, j.Snapshot())
	return j
}

func (r *Registry) Get(jobID string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	return j, ok
}

// Subscribe returns a live feed of status updates for jobID, bounded
// and drop-oldest-on-overflow per spec §4.7.
func (r *Registry) Subscribe(jobID string) (*Subscription, error) {
	return r.bus.Subscribe(jobID)
}

func (r *Registry) List() []schema.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schema.JobStatus, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Snapshot())
	}
	return out
}

// Snapshot returns a copy of the job's current status.
func (j *Job) Snapshot() schema.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	cp := j.status
	cp.ErrorSamples = append([]string(nil), j.status.ErrorSamples...)
	return cp
}

// update mutates fields in place under lock, recomputes the ETA hint,
// and returns the resulting snapshot for the caller to broadcast.
func (j *Job) update(now time.Time, mutate func(s *schema.JobStatus)) schema.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	mutate(&j.status)
	j.status.UpdatedAt = now
	j.status.ETAHint = computeETAHint(j.status.StartedAt, now, j.status.Counters.Processed, j.status.Total)

	cp := j.status
	cp.ErrorSamples = append([]string(nil), j.status.ErrorSamples...)
	return cp
}

// SetRunning transitions the job to running with an initial phase/total.
func (r *Registry) SetRunning(j *Job, now time.Time, phase string, total *int) {
	snap := j.update(now, func(s *schema.JobStatus) {
		s.State = schema.JobStateRunning
		s.Phase = phase
		s.Total = total
	})
	r.bus.publish(snap.JobID, snap)
}

// Progress advances counters by the given deltas and rebroadcasts.
func (r *Registry) Progress(j *Job, now time.Time, phase string, processedDelta, insertedDelta, skippedDelta, failedDelta int) {
	snap := j.update(now, func(s *schema.JobStatus) {
		if phase != "" {
			s.Phase = phase
		}
		s.Counters.Processed += processedDelta
		s.Counters.Inserted += insertedDelta
		s.Counters.SkippedExisting += skippedDelta
		s.Counters.Failed += failedDelta
	})
	r.bus.publish(snap.JobID, snap)
}

// RecordError appends to the bounded error-sample ring (≤20, spec §4.7).
func (r *Registry) RecordError(j *Job, now time.Time, errMsg string) {
	snap := j.update(now, func(s *schema.JobStatus) {
		s.ErrorSamples = append(s.ErrorSamples, errMsg)
		if len(s.ErrorSamples) > maxErrorSamples {
			s.ErrorSamples = s.ErrorSamples[len(s.ErrorSamples)-maxErrorSamples:]
		}
	})
	r.bus.publish(snap.JobID, snap)
}

// Finish marks the job terminal (succeeded unless failed is true).
func (r *Registry) Finish(j *Job, now time.Time, failed bool, message string) {
	snap := j.update(now, func(s *schema.JobStatus) {
		if failed {
			s.State = schema.JobStateFailed
		} else {
			s.State = schema.JobStateSucceeded
		}
		s.Message = message
	})
	r.bus.publish(snap.JobID, snap)
	log.Infof("jobs: %s %s (%d processed, %d failed)", snap.JobID, snap.State, snap.Counters.Processed, snap.Counters.Failed)
}

// computeETAHint mirrors the source system's remaining/rate estimate:
// no hint until some progress exists, "~0s" once done, else a coarse
// human string (~Ns / ~Nm / ~Nh Nm).
func computeETAHint(startedAt, now time.Time, processed int, total *int) string {
	if total == nil || *total <= 0 || processed <= 0 {
		return ""
	}
	if processed >= *total {
		return "~0s"
	}
	elapsed := now.Sub(startedAt).Seconds()
	if elapsed <= 0 {
		return ""
	}
	rate := float64(processed) / elapsed
	if rate <= 0 {
		return ""
	}
	remaining := float64(*total-processed) / rate
	return formatETA(remaining)
}

func formatETA(seconds float64) string {
	if seconds < 0 {
		return ""
	}
	s := int(seconds)
	switch {
	case s < 60:
		return fmt.Sprintf("~%ds", s)
	case s < 3600:
		m := s / 60
		if m < 1 {
			m = 1
		}
		return fmt.Sprintf("~%dm", m)
	default:
		h := s / 3600
		m := (s % 3600) / 60
		return fmt.Sprintf("~%dh %dm", h, m)
	}
}
