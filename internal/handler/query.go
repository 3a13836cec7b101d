package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admissions-sync-api/internal/models"
	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
)

func listFilter(c *gin.Context) models.ListFilter {
	filter := models.ListFilter{
		Status: strings.TrimSpace(c.Query("status")),
		Search: strings.TrimSpace(c.Query("search")),
		Campus: strings.TrimSpace(c.Query("campus")),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}
	return filter
}

func invalidPayload(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation, "invalid payload")
}
