package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/internal/models"
	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
	"github.com/noah-isme/admissions-sync-api/pkg/response"
)

const maxImportSize = 10 << 20

type enquiryService interface {
	List(filter models.ListFilter) ([]models.Enquiry, *models.Pagination)
	Get(id string) (*models.Enquiry, error)
	Create(ctx context.Context, req dto.CreateEnquiryRequest) (*models.Enquiry, error)
	Import(ctx context.Context, r io.Reader, filename string) (*dto.ImportResult, error)
	UpdateStage(ctx context.Context, id string, req dto.UpdateEnquiryStageRequest) (*models.Enquiry, error)
	ScheduleFollowUp(ctx context.Context, id string, req dto.ScheduleFollowUpRequest) (*models.Enquiry, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdateEnquiryStatusRequest) (*models.Enquiry, error)
	Convert(ctx context.Context, id string, req dto.ConvertEnquiryRequest) (*models.Enquiry, *models.Student, error)
}

// EnquiryHandler exposes lead management endpoints.
type EnquiryHandler struct {
	enquiries enquiryService
}

// NewEnquiryHandler constructs EnquiryHandler.
func NewEnquiryHandler(enquiries enquiryService) *EnquiryHandler {
	return &EnquiryHandler{enquiries: enquiries}
}

// List godoc
// @Summary List enquiries
// @Tags Enquiries
// @Produce json
// @Param status query string false "Status"
// @Param campus query string false "Campus"
// @Param search query string false "Search"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /api/v1/enquiries [get]
func (h *EnquiryHandler) List(c *gin.Context) {
	items, pagination := h.enquiries.List(listFilter(c))
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get enquiry
// @Tags Enquiries
// @Produce json
// @Param id path string true "Enquiry ID"
// @Success 200 {object} response.Envelope
// @Router /api/v1/enquiries/{id} [get]
func (h *EnquiryHandler) Get(c *gin.Context) {
	enq, err := h.enquiries.Get(c.Param("id"))
	h.respond(c, enq, err)
}

// Create godoc
// @Summary Create enquiry
// @Tags Enquiries
// @Accept json
// @Produce json
// @Param payload body dto.CreateEnquiryRequest true "Enquiry"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /api/v1/enquiries [post]
func (h *EnquiryHandler) Create(c *gin.Context) {
	var req dto.CreateEnquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	enq, err := h.enquiries.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if enq.Sync() == models.SyncStatePending {
		response.Accepted(c, enq)
		return
	}
	response.Created(c, enq)
}

// Import godoc
// @Summary Import enquiries from a CSV or XLSX file
// @Tags Enquiries
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Spreadsheet"
// @Success 200 {object} response.Envelope
// @Router /api/v1/enquiries/import [post]
func (h *EnquiryHandler) Import(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation, "file is required"))
		return
	}
	if header.Size > maxImportSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is too large"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation, "file could not be read"))
		return
	}
	defer file.Close()

	result, err := h.enquiries.Import(c.Request.Context(), file, header.Filename)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// UpdateStage godoc
// @Summary Move an enquiry to another stage
// @Tags Enquiries
// @Accept json
// @Produce json
// @Param id path string true "Enquiry ID"
// @Param payload body dto.UpdateEnquiryStageRequest true "Stage"
// @Success 200 {object} response.Envelope
// @Router /api/v1/enquiries/{id}/stage [patch]
func (h *EnquiryHandler) UpdateStage(c *gin.Context) {
	var req dto.UpdateEnquiryStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	enq, err := h.enquiries.UpdateStage(c.Request.Context(), c.Param("id"), req)
	h.respond(c, enq, err)
}

// ScheduleFollowUp godoc
// @Summary Schedule the next follow-up
// @Tags Enquiries
// @Accept json
// @Produce json
// @Param id path string true "Enquiry ID"
// @Param payload body dto.ScheduleFollowUpRequest true "Follow-up"
// @Success 200 {object} response.Envelope
// @Router /api/v1/enquiries/{id}/follow-up [patch]
func (h *EnquiryHandler) ScheduleFollowUp(c *gin.Context) {
	var req dto.ScheduleFollowUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	enq, err := h.enquiries.ScheduleFollowUp(c.Request.Context(), c.Param("id"), req)
	h.respond(c, enq, err)
}

// UpdateStatus godoc
// @Summary Close or enroll an enquiry
// @Tags Enquiries
// @Accept json
// @Produce json
// @Param id path string true "Enquiry ID"
// @Param payload body dto.UpdateEnquiryStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /api/v1/enquiries/{id}/status [patch]
func (h *EnquiryHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateEnquiryStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	enq, err := h.enquiries.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	h.respond(c, enq, err)
}

// Convert godoc
// @Summary Convert an enquiry into a student
// @Tags Enquiries
// @Accept json
// @Produce json
// @Param id path string true "Enquiry ID"
// @Param payload body dto.ConvertEnquiryRequest false "Placement"
// @Success 200 {object} response.Envelope
// @Router /api/v1/enquiries/{id}/convert [post]
func (h *EnquiryHandler) Convert(c *gin.Context) {
	var req dto.ConvertEnquiryRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, invalidPayload(err))
			return
		}
	}
	enq, student, err := h.enquiries.Convert(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"enquiry": enq, "student": student}, nil)
}

func (h *EnquiryHandler) respond(c *gin.Context, enq *models.Enquiry, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enq, nil)
}
