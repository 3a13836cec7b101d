package dto

import (
	"time"

	"github.com/noah-isme/admissions-sync-api/internal/models"
)

// UpdateStudentStatusRequest changes a student's lifecycle state.
type UpdateStudentStatusRequest struct {
	Status models.StudentStatus `json:"status" validate:"required"`
}

// AddInstallmentRequest appends an installment to a student's ledger.
// The third installment ignores Amount and takes the remaining balance.
type AddInstallmentRequest struct {
	Amount  int64      `json:"amount"`
	DueDate *time.Time `json:"dueDate"`
}

// ApplyDiscountRequest sets the discount percentage.
type ApplyDiscountRequest struct {
	Percent float64 `json:"percent" validate:"gte=0,lte=100"`
}

// AttendanceRequest records presence for a day formatted YYYY-MM-DD.
type AttendanceRequest struct {
	Date    string `json:"date" validate:"required,datetime=2006-01-02"`
	Present bool   `json:"present"`
}

// TransferStudentRequest moves a student between batches or campuses.
type TransferStudentRequest struct {
	Batch  string `json:"batch" validate:"required_without=Campus"`
	Campus string `json:"campus" validate:"required_without=Batch"`
	Note   string `json:"note"`
}

// EnrollCoursesRequest adds courses to a student.
type EnrollCoursesRequest struct {
	Courses []string `json:"courses" validate:"required,min=1,dive,required"`
}

// CommunicationRequest logs an outreach.
type CommunicationRequest struct {
	Channel string `json:"channel" validate:"required"`
	Note    string `json:"note" validate:"required"`
}

// InstallmentResponse reports the ledger after adding an installment.
type InstallmentResponse struct {
	Student   models.Student `json:"student"`
	Requested int64          `json:"requested"`
	Applied   int64          `json:"applied"`
	Clamped   bool           `json:"clamped"`
}
