package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/sites"
	"github.com/use-agent/harvest/webhook"
)

// Scrape returns a handler for POST /api/v1/:site/:operation.
//
// Flow:
//  1. Resolve the operation and bind the request.
//  2. Async requests are handed to a job and answered with its id.
//  3. Otherwise run the operation under the request deadline.
//  4. Notify the webhook, if any, and respond.
func Scrape(reg *sites.Registry, webhookSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		op, ok := reg.Lookup(c.Param("site"), c.Param("operation"))
		if !ok {
			c.JSON(http.StatusNotFound, models.ScrapeResponse{
				Site:      c.Param("site"),
				Operation: c.Param("operation"),
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "unknown operation " + c.Param("site") + "/" + c.Param("operation"),
				},
			})
			return
		}

		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScrapeResponse{
				Site:      op.Site,
				Operation: op.Name,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		if req.Async {
			job := startJob(op, req, webhookSecret)
			c.JSON(http.StatusAccepted, models.JobResponse{ID: job.ID, Status: job.Status})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), req.Deadline())
		defer cancel()

		resp := Run(ctx, op, &req, start)
		notify(newJobID(), op, &req, resp, webhookSecret)
		c.JSON(statusOf(resp), resp)
	}
}

// Run executes op and converts the outcome to a response.
func Run(ctx context.Context, op sites.Operation, req *models.ScrapeRequest, start time.Time) *models.ScrapeResponse {
	resp := &models.ScrapeResponse{Site: op.Site, Operation: op.Name, Records: []map[string]any{}}

	res, err := op.Run(ctx, req)
	resp.Timing = models.TimingInfo{TotalMs: time.Since(start).Milliseconds()}
	if err != nil {
		resp.Error = toScrapeError(err).ToDetail()
		return resp
	}

	resp.Success = true
	resp.Total = res.Total
	resp.Requested = res.Requested
	resp.Succeeded = res.Succeeded
	for _, r := range res.Records {
		resp.Records = append(resp.Records, map[string]any(r))
	}
	return resp
}

func toScrapeError(err error) *models.ScrapeError {
	if errors.Is(err, context.DeadlineExceeded) {
		var se *models.ScrapeError
		if !errors.As(err, &se) {
			return models.NewScrapeError(models.ErrCodeTimeout, "operation timed out", err)
		}
	}
	return models.AsScrapeError(err)
}

// notify sends the completion event when the request asked for one.
func notify(jobID string, op sites.Operation, req *models.ScrapeRequest, resp *models.ScrapeResponse, defaultSecret string) {
	if req.WebhookURL == "" {
		return
	}
	secret := req.WebhookSecret
	if secret == "" {
		secret = defaultSecret
	}
	typ := webhook.EventCompleted
	if !resp.Success {
		typ = webhook.EventFailed
	}
	webhook.DeliverAsync(req.WebhookURL, secret, &webhook.Event{
		Type:      typ,
		JobID:     jobID,
		Operation: op.Key(),
		Timestamp: time.Now().Unix(),
		Data:      resp,
	})
}

func statusOf(resp *models.ScrapeResponse) int {
	if resp.Error == nil {
		return http.StatusOK
	}
	return mapErrorToStatus(resp.Error.Code)
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(code string) int {
	switch code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeTransport, models.ErrCodeDataShape, models.ErrCodeSeed,
		models.ErrCodeSession, models.ErrCodeBrowserCrash:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
