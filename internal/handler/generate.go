package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/Peleke/comfyui-mcp-sub002/internal/model"
	"github.com/Peleke/comfyui-mcp-sub002/internal/service"
	"github.com/Peleke/comfyui-mcp-sub002/pkg/response"
)

type GenerateHandler struct {
	service   *service.GenerationService
	validator *validator.Validate
}

func NewGenerateHandler(svc *service.GenerationService, v *validator.Validate) *GenerateHandler {
	return &GenerateHandler{
		service:   svc,
		validator: v,
	}
}

// Portrait handles POST /api/generate/portrait
// @Summary      Start portrait generation
// @Description  Start an asynchronous txt2img portrait generation job
// @Tags         Generate
// @Accept       json
// @Produce      json
// @Param        request body model.PortraitRequest true "Portrait generation request"
// @Success      202 {object} model.JobAcceptedResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/generate/portrait [post]
func (h *GenerateHandler) Portrait(c *fiber.Ctx) error {
	var req model.PortraitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	return response.Accepted(c, h.service.StartPortrait(req))
}

// TTS handles POST /api/generate/tts
// @Summary      Start speech synthesis
// @Description  Start an asynchronous voice-cloning TTS job
// @Tags         Generate
// @Accept       json
// @Produce      json
// @Param        request body model.TTSRequest true "TTS generation request"
// @Success      202 {object} model.JobAcceptedResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/generate/tts [post]
func (h *GenerateHandler) TTS(c *fiber.Ctx) error {
	var req model.TTSRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	return response.Accepted(c, h.service.StartTTS(req))
}

// Lipsync handles POST /api/generate/lipsync
// @Summary      Start lip-sync video generation
// @Description  Start an asynchronous lip-sync video job from a portrait and audio
// @Tags         Generate
// @Accept       json
// @Produce      json
// @Param        request body model.LipsyncRequest true "Lipsync generation request"
// @Success      202 {object} model.JobAcceptedResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/generate/lipsync [post]
func (h *GenerateHandler) Lipsync(c *fiber.Ctx) error {
	var req model.LipsyncRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	return response.Accepted(c, h.service.StartLipsync(req))
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
