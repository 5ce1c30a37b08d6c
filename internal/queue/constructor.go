package queue

import (
	"context"
)

// JobProcessor runs the claim-guarded dispatch of a single job.
type JobProcessor interface {
	ProcessJob(ctx context.Context, jobID string) error
}

type Queue struct {
	jp JobProcessor
}

func NewQueue(jp JobProcessor) *Queue {
	return &Queue{
		jp: jp,
	}
}

const TaskTypeDispatchPost = "dispatch:post"

type DispatchPayload struct {
	JobID string `json:"job_id"`
}
