package dto

// AdmissionSubmission is a new application entering the ingest cascade.
type AdmissionSubmission struct {
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"required"`
	Course    string `json:"course" validate:"required"`
	Campus    string `json:"campus"`
	Batch     string `json:"batch"`
	FeeTotal  int64  `json:"feeTotal" validate:"gte=0"`
	StartDate string `json:"startDate"`
	Notes     string `json:"notes"`
}

// PublicApplicationRequest is the reduced form posted by the public site.
type PublicApplicationRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Course         string `json:"course"`
	PreferredStart string `json:"preferredStart"`
}

// Submission maps the public form onto the ingest payload.
func (r PublicApplicationRequest) Submission() AdmissionSubmission {
	return AdmissionSubmission{
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		Course:    r.Course,
		StartDate: r.PreferredStart,
	}
}

// RejectAdmissionRequest carries the mandatory rejection reason.
type RejectAdmissionRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// TransferAdmissionRequest moves an admission to another batch or campus.
type TransferAdmissionRequest struct {
	Batch  string `json:"batch" validate:"required_without=Campus"`
	Campus string `json:"campus" validate:"required_without=Batch"`
}

// IngestResponse reports where a submission ended up.
type IngestResponse struct {
	Outcome  string `json:"outcome"`
	Strategy string `json:"strategy,omitempty"`
	Message  string `json:"message,omitempty"`
}
