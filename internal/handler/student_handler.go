package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/pkg/response"
)

type studentService interface {
	List(filter models.ListFilter) ([]models.Student, *models.Pagination)
	Get(id string) (*models.Student, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdateStudentStatusRequest) (*models.Student, error)
	AddInstallment(ctx context.Context, id string, req dto.AddInstallmentRequest) (*dto.InstallmentResponse, error)
	Collect(ctx context.Context, id string) (*models.Student, error)
	ApplyDiscount(ctx context.Context, id string, req dto.ApplyDiscountRequest) (*models.Student, error)
	MarkPaid(ctx context.Context, id string) (*models.Student, error)
	RecordAttendance(ctx context.Context, id string, req dto.AttendanceRequest) (*models.Student, error)
	Transfer(ctx context.Context, id string, req dto.TransferStudentRequest) (*models.Student, error)
	EnrollCourses(ctx context.Context, id string, req dto.EnrollCoursesRequest) (*models.Student, error)
	LogCommunication(ctx context.Context, id string, req dto.CommunicationRequest) (*models.Student, error)
	Invoice(id string) ([]byte, string, error)
	Delete(ctx context.Context, id string) error
}

// StudentHandler exposes student endpoints.
type StudentHandler struct {
	students studentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param status query string false "Status"
// @Param campus query string false "Campus"
// @Param search query string false "Search"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /api/v1/students [get]
func (h *StudentHandler) List(c *gin.Context) {
	items, pagination := h.students.List(listFilter(c))
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /api/v1/students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	st, err := h.students.Get(c.Param("id"))
	h.respond(c, st, err)
}

// UpdateStatus godoc
// @Summary Change student status
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.UpdateStudentStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Router /api/v1/students/{id}/status [patch]
func (h *StudentHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateStudentStatusRequest
	if !bind(c, &req) {
		return
	}
	st, err := h.students.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	h.respond(c, st, err)
}

// AddInstallment godoc
// @Summary Add a fee installment
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.AddInstallmentRequest true "Installment"
// @Success 200 {object} response.Envelope
// @Router /api/v1/students/{id}/fee/installments [post]
func (h *StudentHandler) AddInstallment(c *gin.Context) {
	var req dto.AddInstallmentRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.students.AddInstallment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Collect godoc
// @Summary Collect the next unpaid installment
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /api/v1/students/{id}/fee/collect [post]
func (h *StudentHandler) Collect(c *gin.Context) {
	st, err := h.students.Collect(c.Request.Context(), c.Param("id"))
	h.respond(c, st, err)
}

// ApplyDiscount godoc
// @Summary Apply a fee discount
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.ApplyDiscountRequest true "Discount"
// @Success 200 {object} response.Envelope
// @Router /api/v1/students/{id}/fee/discount [post]
func (h *StudentHandler) ApplyDiscount(c *gin.Context) {
	var req dto.ApplyDiscountRequest
	if !bind(c, &req) {
		return
	}
	st, err := h.students.ApplyDiscount(c.Request.Context(), c.Param("id"), req)
	h.respond(c, st, err)
}

// MarkPaid godoc
// @Summary Settle every outstanding installment
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /api/v1/students/{id}/fee/mark-paid [post]
func (h *StudentHandler) MarkPaid(c *gin.Context) {
	st, err := h.students.MarkPaid(c.Request.Context(), c.Param("id"))
	h.respond(c, st, err)
}

// RecordAttendance godoc
// @Summary Record attendance for a day
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.AttendanceRequest true "Attendance"
// @Success 200 {object} response.Envelope
// @Router /api/v1/students/{id}/attendance [post]
func (h *StudentHandler) RecordAttendance(c *gin.Context) {
	var req dto.AttendanceRequest
	if !bind(c, &req) {
		return
	}
	st, err := h.students.RecordAttendance(c.Request.Context(), c.Param("id"), req)
	h.respond(c, st, err)
}

// Transfer godoc
// @Summary Transfer a student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.TransferStudentRequest true "Target"
// @Success 200 {object} response.Envelope
// @Router /api/v1/students/{id}/transfer [post]
func (h *StudentHandler) Transfer(c *gin.Context) {
	var req dto.TransferStudentRequest
	if !bind(c, &req) {
		return
	}
	st, err := h.students.Transfer(c.Request.Context(), c.Param("id"), req)
	h.respond(c, st, err)
}

// EnrollCourses godoc
// @Summary Enroll a student in more courses
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.EnrollCoursesRequest true "Courses"
// @Success 200 {object} response.Envelope
// @Router /api/v1/students/{id}/courses [post]
func (h *StudentHandler) EnrollCourses(c *gin.Context) {
	var req dto.EnrollCoursesRequest
	if !bind(c, &req) {
		return
	}
	st, err := h.students.EnrollCourses(c.Request.Context(), c.Param("id"), req)
	h.respond(c, st, err)
}

// LogCommunication godoc
// @Summary Log an outreach
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.CommunicationRequest true "Communication"
// @Success 200 {object} response.Envelope
// @Router /api/v1/students/{id}/communications [post]
func (h *StudentHandler) LogCommunication(c *gin.Context) {
	var req dto.CommunicationRequest
	if !bind(c, &req) {
		return
	}
	st, err := h.students.LogCommunication(c.Request.Context(), c.Param("id"), req)
	h.respond(c, st, err)
}

// Invoice godoc
// @Summary Download the fee invoice
// @Tags Students
// @Produce application/pdf
// @Param id path string true "Student ID"
// @Success 200 {file} file
// @Router /api/v1/students/{id}/invoice.pdf [get]
func (h *StudentHandler) Invoice(c *gin.Context) {
	data, filename, err := h.students.Invoice(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "application/pdf", data)
}

// Delete godoc
// @Summary Delete a student
// @Tags Students
// @Param id path string true "Student ID"
// @Success 204
// @Router /api/v1/students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.students.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *StudentHandler) respond(c *gin.Context, st *models.Student, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, st, nil)
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, invalidPayload(err))
		return false
	}
	return true
}
