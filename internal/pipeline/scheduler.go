package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyperjump/sakusei/internal/models"
	"github.com/hyperjump/sakusei/internal/queue"
)

// QueueScheduler dispatches section jobs onto the generation queue with a
// stable report+section key, so re-scheduling the same section is a no-op
// while a job for it is in flight.
type QueueScheduler struct {
	Queue *queue.Queue
}

// ScheduleSection enqueues one section job.
func (s *QueueScheduler) ScheduleSection(ctx context.Context, job *models.GenerationJob) error {
	key := fmt.Sprintf("%s:%d", job.ReportID, job.SectionIndex)
	_, err := s.Queue.Enqueue(key, job)
	return err
}

// GenerationHandler returns the queue handler that executes section jobs.
func (p *Pipeline) GenerationHandler() queue.Handler {
	return func(ctx context.Context, payload []byte) error {
		var job models.GenerationJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return fmt.Errorf("malformed generation job: %w", err)
		}
		return p.GenerateSection(ctx, &job)
	}
}

// GenerationExhaustedHandler returns the callback that settles a section with
// its error once the queue has used up the job's retry budget.
func (p *Pipeline) GenerationExhaustedHandler() func(job *queue.Job, err error) {
	return func(job *queue.Job, err error) {
		var gj models.GenerationJob
		if unmarshalErr := json.Unmarshal(job.Payload, &gj); unmarshalErr != nil {
			return
		}
		_ = p.RecordSectionFailure(context.Background(), gj.ReportID, gj.SectionIndex, err)
	}
}
