package ingest

import (
	"context"
	"sync"

	"github.com/dtnitsch/persona-ingest/models"
)

// Ack acknowledges a job accepted for background processing.
type Ack struct {
	Status  string `json:"status"`
	JobID   string `json:"jobId"`
	URL     string `json:"url"`
	OwnerID string `json:"ownerId"`
}

// Service starts jobs in the background. Jobs keep running when the caller's
// request ends and stop only when the service is closed.
type Service struct {
	pipeline *Pipeline
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewService derives the lifetime of background jobs from parent without
// inheriting its cancellation.
func NewService(parent context.Context, pipeline *Pipeline) *Service {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &Service{pipeline: pipeline, ctx: ctx, cancel: cancel}
}

// Start validates the request and claims the tracker synchronously, so a
// second job is rejected with jobstatus.ErrJobInProgress before returning.
func (s *Service) Start(rawURL, ownerID string) (Ack, error) {
	j, err := s.pipeline.begin(rawURL, ownerID)
	if err != nil {
		return Ack{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Errors are already logged and persisted on the status.
		_, _ = s.pipeline.run(s.ctx, j)
	}()

	return Ack{Status: "accepted", JobID: j.id, URL: j.seed, OwnerID: j.ownerID}, nil
}

// Status returns the tracker's view of the current or last job.
func (s *Service) Status() models.JobStatus {
	return s.pipeline.deps.Tracker.Snapshot()
}

// Wait blocks until every background job has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close interrupts running jobs and waits for them. An interrupted job is
// recorded as failed.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}
