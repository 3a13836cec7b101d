package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/internal/middleware"
	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/pkg/response"
)

type certificateService interface {
	Create(ctx context.Context, req dto.CreateCertificateRequest, actor string) (*models.CertificateRequest, error)
	List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateRequest, error)
	Get(ctx context.Context, id string) (*models.CertificateRequest, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdateCertificateStatusRequest, actor string) (*models.CertificateRequest, error)
	Delete(ctx context.Context, id string) error
}

// CertificateHandler exposes certificate request endpoints.
type CertificateHandler struct {
	certificates certificateService
}

// NewCertificateHandler constructs CertificateHandler.
func NewCertificateHandler(certificates certificateService) *CertificateHandler {
	return &CertificateHandler{certificates: certificates}
}

// Create godoc
// @Summary Request a certificate
// @Tags Certificates
// @Accept json
// @Produce json
// @Param payload body dto.CreateCertificateRequest true "Request"
// @Success 201 {object} response.Envelope
// @Router /api/certificates [post]
func (h *CertificateHandler) Create(c *gin.Context) {
	var req dto.CreateCertificateRequest
	if !bind(c, &req) {
		return
	}
	cert, err := h.certificates.Create(c.Request.Context(), req, middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cert)
}

// List godoc
// @Summary List certificate requests
// @Tags Certificates
// @Produce json
// @Param status query string false "Status"
// @Param studentId query string false "Student"
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /api/certificates [get]
func (h *CertificateHandler) List(c *gin.Context) {
	filter := models.CertificateFilter{
		Status:    models.CertificateStatus(strings.TrimSpace(c.Query("status"))),
		StudentID: strings.TrimSpace(c.Query("studentId")),
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		filter.Offset = offset
	}
	items, err := h.certificates.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get a certificate request
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /api/certificates/{id} [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	cert, err := h.certificates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// UpdateStatus godoc
// @Summary Advance a certificate request
// @Tags Certificates
// @Accept json
// @Produce json
// @Param id path string true "Certificate ID"
// @Param payload body dto.UpdateCertificateStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /api/certificates/{id}/status [patch]
func (h *CertificateHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateCertificateStatusRequest
	if !bind(c, &req) {
		return
	}
	cert, err := h.certificates.UpdateStatus(c.Request.Context(), c.Param("id"), req, middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// Delete godoc
// @Summary Delete a certificate request
// @Tags Certificates
// @Param id path string true "Certificate ID"
// @Success 204
// @Router /api/certificates/{id} [delete]
func (h *CertificateHandler) Delete(c *gin.Context) {
	if err := h.certificates.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
