package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	types "github.com/uinav/appgraph-backend/internal/domain"
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
	"github.com/uinav/appgraph-backend/internal/platform/logger"
	"github.com/uinav/appgraph-backend/internal/services"
	"github.com/uinav/appgraph-backend/internal/temporalx"
	"github.com/uinav/appgraph-backend/internal/temporalx/extraction"
)

type ExtractionHandler struct {
	log      *logger.Logger
	pipeline services.PipelineService
	tc       temporalsdkclient.Client
}

func NewExtractionHandler(log *logger.Logger, pipeline services.PipelineService, tc temporalsdkclient.Client) *ExtractionHandler {
	return &ExtractionHandler{
		log:      log.With("handler", "ExtractionHandler"),
		pipeline: pipeline,
		tc:       tc,
	}
}

// POST /api/extractions
func (h *ExtractionHandler) Start(c *gin.Context) {
	var desc types.SourceDescriptor
	if err := c.ShouldBindJSON(&desc); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	job, err := h.pipeline.StartJob(c.Request.Context(), desc)
	if err != nil {
		if pkgerr.Is(err, pkgerr.ErrInvalidArgument) {
			RespondError(c, http.StatusBadRequest, "invalid_source", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "start_failed", err)
		return
	}

	if h.tc != nil {
		cfg := temporalx.LoadConfig()
		_, err := h.tc.ExecuteWorkflow(c.Request.Context(), temporalsdkclient.StartWorkflowOptions{
			ID:        job.ID.String(),
			TaskQueue: cfg.TaskQueue,
		}, extraction.WorkflowName)
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if err != nil && !errors.As(err, &already) {
			RespondError(c, http.StatusInternalServerError, "workflow_start_failed", err)
			return
		}
	} else {
		// No durable orchestrator configured; run the pipeline in-process.
		// The run must outlive the request, hence the detached context.
		go func(id uuid.UUID) {
			if _, err := h.pipeline.RunToCompletion(context.Background(), id); err != nil {
				h.log.Error("in-process pipeline run failed", "job_id", id, "error", err)
			}
		}(job.ID)
	}

	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// GET /api/extractions/:id
func (h *ExtractionHandler) Get(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.pipeline.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if pkgerr.Is(err, pkgerr.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "get_failed", err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// GET /api/sites/:site_id/extractions
func (h *ExtractionHandler) List(c *gin.Context) {
	siteID := c.Param("site_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	jobs, err := h.pipeline.ListJobs(c.Request.Context(), siteID, limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"jobs": jobs})
}

// POST /api/extractions/:id/cancel
func (h *ExtractionHandler) Cancel(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	if err := h.pipeline.Cancel(c.Request.Context(), jobID); err != nil {
		switch {
		case pkgerr.Is(err, pkgerr.ErrNotFound):
			RespondError(c, http.StatusNotFound, "job_not_found", err)
		case pkgerr.Is(err, pkgerr.ErrInvalidArgument):
			RespondError(c, http.StatusConflict, "job_terminal", err)
		default:
			RespondError(c, http.StatusInternalServerError, "cancel_failed", err)
		}
		return
	}
	if h.tc != nil {
		// Nudge the workflow so it observes the flag without waiting for the
		// next stage boundary.
		_ = h.tc.SignalWorkflow(c.Request.Context(), jobID.String(), "", extraction.SignalCancel, true)
	}
	RespondOK(c, gin.H{"canceled": true})
}
