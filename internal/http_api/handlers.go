package http_api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mantraapp1/23-oct-mantra-sub003/internal/models"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// TriggerRunRequest represents the JSON body for a manual settlement run.
// The body is optional; an empty body runs every task.
type TriggerRunRequest struct {
	Tasks []string `json:"tasks"`
}

// TriggerRunResponse wraps the run report for the caller.
type TriggerRunResponse struct {
	Success bool              `json:"success"`
	Report  *models.RunReport `json:"report"`
}

// triggerRun is a handler for the /run endpoint. It executes a settlement
// run synchronously under the configured time budget and reports per-task
// outcomes. Runs are safe to trigger repeatedly; a concurrent run settles
// each item at most once between them.
func (s *HTTPServer) triggerRun(c *gin.Context) {
	var req TriggerRunRequest

	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.logger.Debug("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RunTimeBudget)
	defer cancel()

	s.logger.Infow("settlement run triggered over HTTP", "tasks", req.Tasks)
	report := s.settler.Run(ctx, req.Tasks...)

	status := http.StatusOK
	switch {
	case report.Failed == 0 && report.ItemFailures() == 0:
		status = http.StatusOK
	case report.Succeeded == 0:
		status = http.StatusInternalServerError
	default:
		status = http.StatusMultiStatus
	}

	c.JSON(status, TriggerRunResponse{
		Success: status == http.StatusOK,
		Report:  report,
	})
}

// listRuns is a handler for the /runs endpoint. It returns the newest
// distribution run logs.
func (s *HTTPServer) listRuns(c *gin.Context) {
	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	runs, err := s.settler.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list run logs: ", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// health is a handler for the /health endpoint.
func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
