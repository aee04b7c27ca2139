package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Peleke/comfyui-mcp-sub002/internal/queue"
	"github.com/Peleke/comfyui-mcp-sub002/internal/service"
	"github.com/Peleke/comfyui-mcp-sub002/pkg/response"
)

type JobsHandler struct {
	service *service.GenerationService
}

func NewJobsHandler(svc *service.GenerationService) *JobsHandler {
	return &JobsHandler{service: svc}
}

// Status handles GET /api/jobs/:jobId/status
// @Summary      Get job status
// @Description  Get the current status of a generation job
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobStatusResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId}/status [get]
func (h *JobsHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	status, ok := h.service.GetStatus(jobID)
	if !ok {
		return response.NotFound(c, "Job not found")
	}

	return response.OK(c, status)
}

// Result handles GET /api/jobs/:jobId/result
// @Summary      Get job result
// @Description  Get the result of a completed generation job
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.GenerationResult
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId}/result [get]
func (h *JobsHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResult(jobID)
	if err != nil {
		if errors.Is(err, queue.ErrQueueNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if strings.Contains(err.Error(), "not finished") {
			return response.ValidationError(c, "Job not completed yet", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// List handles GET /api/jobs
// @Summary      List jobs
// @Description  List every tracked generation job across all queues
// @Tags         Jobs
// @Produce      json
// @Success      200 {array} model.JobStatusResponse
// @Security     BearerAuth
// @Router       /api/jobs [get]
func (h *JobsHandler) List(c *fiber.Ctx) error {
	return response.OK(c, h.service.ListJobs())
}
