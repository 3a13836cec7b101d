package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/pkg/response"
)

type batchService interface {
	List(filter models.ListFilter) ([]models.Batch, *models.Pagination)
	Create(ctx context.Context, req dto.CreateBatchRequest) (*models.Batch, error)
}

// BatchHandler exposes cohort endpoints.
type BatchHandler struct {
	batches batchService
}

// NewBatchHandler constructs BatchHandler.
func NewBatchHandler(batches batchService) *BatchHandler {
	return &BatchHandler{batches: batches}
}

// List godoc
// @Summary List batches
// @Tags Batches
// @Produce json
// @Param status query string false "Status"
// @Param campus query string false "Campus"
// @Param search query string false "Search"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /api/v1/batches [get]
func (h *BatchHandler) List(c *gin.Context) {
	items, pagination := h.batches.List(listFilter(c))
	response.JSON(c, http.StatusOK, items, pagination)
}

// Create godoc
// @Summary Create batch
// @Tags Batches
// @Accept json
// @Produce json
// @Param payload body dto.CreateBatchRequest true "Batch"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /api/v1/batches [post]
func (h *BatchHandler) Create(c *gin.Context) {
	var req dto.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	batch, err := h.batches.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, batch)
}
