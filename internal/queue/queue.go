package queue

import (
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer schedules a dispatch nudge for a job. A nil Enqueuer is valid and
// leaves the job to the periodic scan.
type Enqueuer interface {
	EnqueueDispatch(payload DispatchPayload, delay time.Duration) error
}

type asynqEnqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) Enqueuer {
	return &asynqEnqueuer{client: client}
}

func (e *asynqEnqueuer) EnqueueDispatch(payload DispatchPayload, delay time.Duration) error {
	task, err := NewDispatchTask(payload)
	if err != nil {
		return err
	}

	_, err = e.client.Enqueue(task, asynq.ProcessIn(delay), asynq.MaxRetry(0))
	if err != nil {
		return err
	}

	log.Printf("Task scheduled: %+v in %s", payload, delay)
	return nil
}

func NewDispatchTask(payload DispatchPayload) (*asynq.Task, error) {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeDispatchPost, taskPayload), nil
}
