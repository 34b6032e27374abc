package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ahrav/reviewhound/internal/domain/review"
)

// analyzeRequest is the submission payload for a new review task.
type analyzeRequest struct {
	RepoURL      string `json:"repo_url" binding:"required"`
	ChangeNumber int    `json:"pr_number" binding:"required"`
	Token        string `json:"github_token"`
}

type analyzeResponse struct {
	TaskID  uuid.UUID `json:"task_id"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
}

type progressResponse struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Status  string `json:"status"`
}

type statusResponse struct {
	TaskID       uuid.UUID         `json:"task_id"`
	Status       string            `json:"status"`
	CreatedAt    *time.Time        `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at"`
	CompletedAt  *time.Time        `json:"completed_at"`
	RepoURL      string            `json:"repo_url"`
	ChangeNumber int               `json:"pr_number"`
	Title        string            `json:"pr_title,omitempty"`
	Author       string            `json:"author,omitempty"`
	FilesCount   int               `json:"files_count"`
	Additions    int               `json:"additions"`
	Deletions    int               `json:"deletions"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Progress     *progressResponse `json:"progress,omitempty"`
}

type resultsResponse struct {
	TaskID      uuid.UUID             `json:"task_id"`
	Status      string                `json:"status"`
	CompletedAt *time.Time            `json:"completed_at"`
	Results     *review.ReviewResults `json:"results"`
}

type taskSummaryResponse struct {
	TaskID       uuid.UUID  `json:"task_id"`
	Status       string     `json:"status"`
	RepoURL      string     `json:"repo_url"`
	ChangeNumber int        `json:"pr_number"`
	CreatedAt    *time.Time `json:"created_at"`
	Title        string     `json:"pr_title,omitempty"`
	Author       string     `json:"author,omitempty"`
}

type taskPageResponse struct {
	Tasks   []taskSummaryResponse `json:"tasks"`
	Total   int                   `json:"total"`
	Page    int                   `json:"page"`
	PerPage int                   `json:"per_page"`
	Pages   int                   `json:"pages"`
}

type statsResponse struct {
	TotalTasks      int     `json:"total_tasks"`
	PendingTasks    int     `json:"pending_tasks"`
	ProcessingTasks int     `json:"processing_tasks"`
	CompletedTasks  int     `json:"completed_tasks"`
	FailedTasks     int     `json:"failed_tasks"`
	SuccessRate     float64 `json:"success_rate"`
}

func errorDetail(msg string) gin.H { return gin.H{"detail": msg} }

// nullableTime maps the zero time to a JSON null.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "PR review service is running",
		"status":  "healthy",
	})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorDetail(err.Error()))
		return
	}

	taskID, err := s.dispatcher.Submit(c.Request.Context(), req.RepoURL, req.ChangeNumber, req.Token)
	if err != nil {
		var vErr *review.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, errorDetail(vErr.Error()))
			return
		}
		s.logger.Error(c.Request.Context(), "task submission failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorDetail("Failed to start analysis"))
		return
	}

	c.JSON(http.StatusOK, analyzeResponse{
		TaskID:  taskID,
		Status:  review.TaskStatusPending.Lower(),
		Message: "PR analysis started",
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	taskID, ok := s.taskIDParam(c)
	if !ok {
		return
	}

	view, err := s.status.GetStatus(c.Request.Context(), taskID)
	if err != nil {
		s.renderLookupError(c, err)
		return
	}

	resp := statusResponse{
		TaskID:       view.TaskID,
		Status:       view.Status.Lower(),
		CreatedAt:    nullableTime(view.CreatedAt),
		StartedAt:    nullableTime(view.StartedAt),
		CompletedAt:  nullableTime(view.CompletedAt),
		RepoURL:      view.RepoURL,
		ChangeNumber: view.ChangeNumber,
		Title:        view.Metadata.Title,
		Author:       view.Metadata.Author,
		FilesCount:   view.Metadata.FilesCount,
		Additions:    view.Metadata.Additions,
		Deletions:    view.Metadata.Deletions,
		ErrorMessage: view.ErrorMessage,
	}
	if view.Progress != nil {
		resp.Progress = &progressResponse{
			Current: view.Progress.Current,
			Total:   view.Progress.Total,
			Status:  view.Progress.Phase,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleResults(c *gin.Context) {
	taskID, ok := s.taskIDParam(c)
	if !ok {
		return
	}

	view, err := s.status.GetStatus(c.Request.Context(), taskID)
	if err != nil {
		s.renderLookupError(c, err)
		return
	}
	if view.Status != review.TaskStatusCompleted {
		c.JSON(http.StatusBadRequest, errorDetail(
			fmt.Sprintf("Task not completed. Current status: %s", view.Status.Lower())))
		return
	}

	payload, err := s.status.GetResults(c.Request.Context(), taskID)
	if err != nil {
		s.renderLookupError(c, err)
		return
	}

	resp := resultsResponse{
		TaskID:      taskID,
		Status:      view.Status.Lower(),
		CompletedAt: nullableTime(view.CompletedAt),
	}
	if payload != nil {
		resp.Results = payload.Review
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListTasks(c *gin.Context) {
	page, err := positiveQueryInt(c, "page", 1)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorDetail(err.Error()))
		return
	}
	perPage, err := positiveQueryInt(c, "per_page", 10)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorDetail(err.Error()))
		return
	}
	if perPage > 100 {
		c.JSON(http.StatusBadRequest, errorDetail("per_page must be at most 100"))
		return
	}

	filter := review.ListFilter{Page: page, PerPage: perPage}
	if raw := c.Query("status"); raw != "" {
		status := review.ParseTaskStatus(raw)
		if status == review.TaskStatusUnspecified {
			c.JSON(http.StatusBadRequest, errorDetail(fmt.Sprintf("invalid status filter: %q", raw)))
			return
		}
		filter.Status = status
	}

	pageView, err := s.status.ListTasks(c.Request.Context(), filter)
	if err != nil {
		s.logger.Error(c.Request.Context(), "task listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorDetail("Failed to list tasks"))
		return
	}

	tasks := make([]taskSummaryResponse, 0, len(pageView.Tasks))
	for _, t := range pageView.Tasks {
		tasks = append(tasks, taskSummaryResponse{
			TaskID:       t.TaskID,
			Status:       t.Status.Lower(),
			RepoURL:      t.RepoURL,
			ChangeNumber: t.ChangeNumber,
			CreatedAt:    nullableTime(t.CreatedAt),
			Title:        t.Title,
			Author:       t.Author,
		})
	}
	c.JSON(http.StatusOK, taskPageResponse{
		Tasks:   tasks,
		Total:   pageView.Total,
		Page:    pageView.Page,
		PerPage: pageView.PerPage,
		Pages:   pageView.Pages,
	})
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	taskID, ok := s.taskIDParam(c)
	if !ok {
		return
	}

	if err := s.status.DeleteTask(c.Request.Context(), taskID); err != nil {
		s.renderLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Task %s deleted successfully", taskID),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.status.GetStats(c.Request.Context())
	if err != nil {
		s.logger.Error(c.Request.Context(), "stats aggregation failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorDetail("Failed to compute stats"))
		return
	}
	c.JSON(http.StatusOK, statsResponse{
		TotalTasks:      stats.Total,
		PendingTasks:    stats.Pending,
		ProcessingTasks: stats.Processing,
		CompletedTasks:  stats.Completed,
		FailedTasks:     stats.Failed,
		SuccessRate:     stats.SuccessRate,
	})
}

// taskIDParam parses the task_id path parameter. A malformed id is reported
// as not found rather than a parse error so the endpoint behaves uniformly
// for ids that were never issued.
func (s *Server) taskIDParam(c *gin.Context) (uuid.UUID, bool) {
	taskID, err := uuid.Parse(c.Param("task_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorDetail("Task not found"))
		return uuid.Nil, false
	}
	return taskID, true
}

func (s *Server) renderLookupError(c *gin.Context, err error) {
	if errors.Is(err, review.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, errorDetail("Task not found"))
		return
	}
	s.logger.Error(c.Request.Context(), "task lookup failed", "error", err)
	c.JSON(http.StatusInternalServerError, errorDetail("Internal server error"))
}

func positiveQueryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}
