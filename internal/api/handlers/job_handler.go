package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/queue"
	"github.com/maheshrc27/tweetflow/internal/service"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

type JobHandler struct {
	s service.JobService
	q queue.Enqueuer
}

// NewJobHandler takes a nil q when no queue is configured; jobs then wait for
// the periodic dispatch scan.
func NewJobHandler(s service.JobService, q queue.Enqueuer) *JobHandler {
	return &JobHandler{s: s, q: q}
}

func (h *JobHandler) CreateJob(c *fiber.Ctx) error {
	var jc transfer.JobCreation
	if err := c.BodyParser(&jc); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	job, delay, err := h.s.Schedule(c.Context(), GetOwnerID(c), &jc)
	if err != nil {
		return respondError(c, err, "Unable to schedule post")
	}

	h.nudge(job, delay)

	return c.Status(fiber.StatusCreated).JSON(job)
}

func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	jobs, err := h.s.List(c.Context(), GetOwnerID(c))
	if err != nil {
		return respondError(c, err, "Unable to list posts")
	}

	return c.Status(fiber.StatusOK).JSON(jobs)
}

func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	job, err := h.s.Get(c.Context(), GetOwnerID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err, "Unable to load post")
	}

	return c.Status(fiber.StatusOK).JSON(job)
}

func (h *JobHandler) UpdateJob(c *fiber.Ctx) error {
	var ju transfer.JobUpdate
	if err := c.BodyParser(&ju); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	job, delay, err := h.s.Edit(c.Context(), GetOwnerID(c), c.Params("id"), &ju)
	if err != nil {
		return respondError(c, err, "Unable to update post")
	}

	h.nudge(job, delay)

	return c.Status(fiber.StatusOK).JSON(job)
}

func (h *JobHandler) RemoveJob(c *fiber.Ctx) error {
	err := h.s.Remove(c.Context(), GetOwnerID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err, "Unable to remove post")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// nudge asks the queue to dispatch the job when it falls due. On failure the
// periodic scan still picks it up.
func (h *JobHandler) nudge(job *models.Job, delay time.Duration) {
	if h.q == nil {
		return
	}

	err := h.q.EnqueueDispatch(queue.DispatchPayload{JobID: job.ID}, delay)
	if err != nil {
		slog.Info("unable to enqueue dispatch", "job_id", job.ID, "error", err)
	}
}
