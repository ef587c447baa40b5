package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/sites"
)

// jobStore holds all in-flight and completed async jobs.
var jobStore sync.Map

func init() {
	// Expire jobs older than 1 hour.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-1 * time.Hour).Unix()
			jobStore.Range(func(key, value any) bool {
				if value.(*jobEntry).createdAt < cutoff {
					jobStore.Delete(key)
				}
				return true
			})
		}
	}()
}

// jobEntry guards a Job shared between the runner and GetJob.
type jobEntry struct {
	mu        sync.Mutex
	job       models.Job
	createdAt int64
}

func (e *jobEntry) snapshot() models.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job
}

func newJobID() string {
	return "job-" + uuid.NewString()
}

// startJob registers a job for op and runs it in the background.
func startJob(op sites.Operation, req models.ScrapeRequest, webhookSecret string) models.Job {
	now := time.Now().Unix()
	entry := &jobEntry{
		job: models.Job{
			ID:        newJobID(),
			Status:    "processing",
			Site:      op.Site,
			Operation: op.Name,
			CreatedAt: now,
		},
		createdAt: now,
	}
	jobStore.Store(entry.job.ID, entry)

	go runJob(entry, op, req, webhookSecret)
	return entry.snapshot()
}

func runJob(entry *jobEntry, op sites.Operation, req models.ScrapeRequest, webhookSecret string) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), req.Deadline())
	defer cancel()

	resp := Run(ctx, op, &req, start)

	status := "completed"
	switch {
	case !resp.Success:
		status = "failed"
	case resp.Succeeded < resp.Requested:
		status = "partial"
	}

	entry.mu.Lock()
	entry.job.Status = status
	entry.job.Result = resp
	id := entry.job.ID
	entry.mu.Unlock()

	slog.Info("job finished",
		"id", id,
		"operation", op.Key(),
		"status", status,
		"requested", resp.Requested,
		"succeeded", resp.Succeeded,
		"records", len(resp.Records),
	)
	notify(id, op, &req, resp, webhookSecret)
}

// GetJob returns a handler for GET /api/v1/jobs/:id.
func GetJob() gin.HandlerFunc {
	return func(c *gin.Context) {
		val, ok := jobStore.Load(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "job not found",
				},
			})
			return
		}

		job := val.(*jobEntry).snapshot()
		c.JSON(http.StatusOK, models.JobStatusResponse{
			ID:        job.ID,
			Status:    job.Status,
			Site:      job.Site,
			Operation: job.Operation,
			Result:    job.Result,
		})
	}
}
