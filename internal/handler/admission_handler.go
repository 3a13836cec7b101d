package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/internal/service"
	"github.com/noah-isme/admissions-sync-api/pkg/export"
	"github.com/noah-isme/admissions-sync-api/pkg/response"
)

type admissionService interface {
	List(filter models.ListFilter) ([]models.Admission, *models.Pagination)
	Get(id string) (*models.Admission, error)
	Submit(ctx context.Context, sub dto.AdmissionSubmission) (*service.IngestResult, error)
	Approve(ctx context.Context, id string) (*models.Admission, *models.Student, error)
	Reject(ctx context.Context, id string, req dto.RejectAdmissionRequest) (*models.Admission, error)
	Suspend(ctx context.Context, id string) (*models.Admission, error)
	Cancel(ctx context.Context, id string) (*models.Admission, error)
	Transfer(ctx context.Context, id string, req dto.TransferAdmissionRequest) (*models.Admission, error)
	MarkPaid(ctx context.Context, id string) (*models.Admission, error)
	Delete(ctx context.Context, id string) error
	Export(format string, filter models.ListFilter) ([]byte, export.Renderer, error)
}

// AdmissionHandler exposes the admission lifecycle endpoints.
type AdmissionHandler struct {
	admissions admissionService
}

// NewAdmissionHandler constructs AdmissionHandler.
func NewAdmissionHandler(admissions admissionService) *AdmissionHandler {
	return &AdmissionHandler{admissions: admissions}
}

// List godoc
// @Summary List admissions
// @Tags Admissions
// @Produce json
// @Param status query string false "Status"
// @Param campus query string false "Campus"
// @Param search query string false "Name, email, phone, course or id"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /api/v1/admissions [get]
func (h *AdmissionHandler) List(c *gin.Context) {
	items, pagination := h.admissions.List(listFilter(c))
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get admission
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /api/v1/admissions/{id} [get]
func (h *AdmissionHandler) Get(c *gin.Context) {
	rec, err := h.admissions.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}

// Create godoc
// @Summary Submit an application
// @Description Runs the insert cascade. A 202 means the record was kept locally and awaits sync.
// @Tags Admissions
// @Accept json
// @Produce json
// @Param payload body dto.AdmissionSubmission true "Application"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /api/v1/admissions [post]
func (h *AdmissionHandler) Create(c *gin.Context) {
	var req dto.AdmissionSubmission
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	res, err := h.admissions.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{"outcome": res.Outcome}
	if res.Strategy != "" {
		meta["strategy"] = res.Strategy
	}
	if res.Outcome == service.OutcomeBuffered {
		meta["message"] = res.Message
		response.Accepted(c, res.Admission, meta)
		return
	}
	response.Created(c, res.Admission, meta)
}

// Approve godoc
// @Summary Verify an application and promote it to a student
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /api/v1/admissions/{id}/approve [post]
func (h *AdmissionHandler) Approve(c *gin.Context) {
	rec, student, err := h.admissions.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"admission": rec, "student": student}, nil)
}

// Reject godoc
// @Summary Reject an application
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.RejectAdmissionRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /api/v1/admissions/{id}/reject [post]
func (h *AdmissionHandler) Reject(c *gin.Context) {
	var req dto.RejectAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	rec, err := h.admissions.Reject(c.Request.Context(), c.Param("id"), req)
	h.respond(c, rec, err)
}

// Suspend godoc
// @Summary Suspend an application
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Router /api/v1/admissions/{id}/suspend [post]
func (h *AdmissionHandler) Suspend(c *gin.Context) {
	rec, err := h.admissions.Suspend(c.Request.Context(), c.Param("id"))
	h.respond(c, rec, err)
}

// Cancel godoc
// @Summary Cancel an application
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Router /api/v1/admissions/{id}/cancel [post]
func (h *AdmissionHandler) Cancel(c *gin.Context) {
	rec, err := h.admissions.Cancel(c.Request.Context(), c.Param("id"))
	h.respond(c, rec, err)
}

// Transfer godoc
// @Summary Move an application to another batch or campus
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.TransferAdmissionRequest true "Target"
// @Success 200 {object} response.Envelope
// @Router /api/v1/admissions/{id}/transfer [post]
func (h *AdmissionHandler) Transfer(c *gin.Context) {
	var req dto.TransferAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	rec, err := h.admissions.Transfer(c.Request.Context(), c.Param("id"), req)
	h.respond(c, rec, err)
}

// MarkPaid godoc
// @Summary Settle every outstanding installment
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Router /api/v1/admissions/{id}/mark-paid [post]
func (h *AdmissionHandler) MarkPaid(c *gin.Context) {
	rec, err := h.admissions.MarkPaid(c.Request.Context(), c.Param("id"))
	h.respond(c, rec, err)
}

// Delete godoc
// @Summary Delete an application
// @Tags Admissions
// @Param id path string true "Admission ID"
// @Success 204
// @Router /api/v1/admissions/{id} [delete]
func (h *AdmissionHandler) Delete(c *gin.Context) {
	if err := h.admissions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Export admissions
// @Tags Admissions
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv, xlsx or pdf"
// @Param status query string false "Status"
// @Param campus query string false "Campus"
// @Param search query string false "Search"
// @Success 200 {file} file
// @Router /api/v1/admissions/export [get]
func (h *AdmissionHandler) Export(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", export.FormatCSV))
	data, renderer, err := h.admissions.Export(format, listFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, fmt.Sprintf("admissions.%s", renderer.Extension()), renderer.ContentType(), data)
}

func (h *AdmissionHandler) respond(c *gin.Context, rec *models.Admission, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}
