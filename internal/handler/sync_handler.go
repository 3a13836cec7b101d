package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/pkg/response"
)

type refresher interface {
	Refresh(ctx context.Context) dto.SyncReport
}

type bufferDrainer interface {
	Drain(ctx context.Context) dto.BufferSyncReport
}

// SyncHandler triggers a refetch or a buffer drain on demand.
type SyncHandler struct {
	poller refresher
	buffer bufferDrainer
}

// NewSyncHandler constructs SyncHandler.
func NewSyncHandler(poller refresher, buffer bufferDrainer) *SyncHandler {
	return &SyncHandler{poller: poller, buffer: buffer}
}

// Refresh godoc
// @Summary Refetch every source and rebuild the merged views
// @Tags Sync
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /api/v1/sync/refresh [post]
func (h *SyncHandler) Refresh(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.poller.Refresh(c.Request.Context()), nil)
}

// Buffer godoc
// @Summary Push locally buffered records to the remote stores
// @Tags Sync
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /api/v1/sync/buffer [post]
func (h *SyncHandler) Buffer(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.buffer.Drain(c.Request.Context()), nil)
}
