package dto

// CreateBatchRequest captures a new cohort. Dates are YYYY-MM-DD.
type CreateBatchRequest struct {
	Course          string `json:"course" validate:"required"`
	Campus          string `json:"campus" validate:"required"`
	Code            string `json:"code" validate:"required"`
	StartDate       string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate         string `json:"endDate" validate:"required,datetime=2006-01-02"`
	Instructor      string `json:"instructor" validate:"required"`
	MaxStudents     int    `json:"maxStudents" validate:"gt=0"`
	CurrentStudents int    `json:"currentStudents" validate:"gte=0,ltefield=MaxStudents"`
}
