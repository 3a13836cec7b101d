package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/internal/service"
	"github.com/noah-isme/admissions-sync-api/pkg/response"
)

type publicApplications interface {
	Submit(ctx context.Context, sub dto.AdmissionSubmission) (*service.IngestResult, error)
	PublicItems() []map[string]any
}

// PublicHandler serves the application form used by the public site. It
// keeps the {item}/{items}/{error} bodies the site already parses.
type PublicHandler struct {
	admissions publicApplications
}

// NewPublicHandler constructs PublicHandler.
func NewPublicHandler(admissions publicApplications) *PublicHandler {
	return &PublicHandler{admissions: admissions}
}

// Submit godoc
// @Summary Submit a public application
// @Tags Public
// @Accept json
// @Produce json
// @Param payload body dto.PublicApplicationRequest true "Application"
// @Success 201 {object} response.PublicItem
// @Success 202 {object} response.PublicItem
// @Failure 400 {object} response.PublicError
// @Failure 422 {object} response.PublicError
// @Router /api/public/applications [post]
func (h *PublicHandler) Submit(c *gin.Context) {
	var req dto.PublicApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.PublicFailure(c, invalidPayload(err))
		return
	}
	res, err := h.admissions.Submit(c.Request.Context(), req.Submission())
	if err != nil {
		response.PublicFailure(c, err)
		return
	}
	item := service.PublicItem(res.Admission)
	if res.Outcome == service.OutcomeBuffered {
		item["message"] = res.Message
		response.Item(c, http.StatusAccepted, item)
		return
	}
	response.Item(c, http.StatusCreated, item)
}

// List godoc
// @Summary List applications in the public shape
// @Tags Public
// @Produce json
// @Success 200 {object} response.PublicItems
// @Router /api/public/applications [get]
func (h *PublicHandler) List(c *gin.Context) {
	response.Items(c, h.admissions.PublicItems())
}
