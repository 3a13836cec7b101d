package models

import "time"

// StudentStatus enumerates enrolled student states.
type StudentStatus string

const (
	StudentStatusCurrent      StudentStatus = "Current"
	StudentStatusFreeze       StudentStatus = "Freeze"
	StudentStatusConcluded    StudentStatus = "Concluded"
	StudentStatusNotCompleted StudentStatus = "NotCompleted"
	StudentStatusSuspended    StudentStatus = "Suspended"
	StudentStatusAlumni       StudentStatus = "Alumni"
)

// Placement records where a student was admitted.
type Placement struct {
	Course string    `json:"course"`
	Batch  string    `json:"batch"`
	Campus string    `json:"campus"`
	Date   time.Time `json:"date"`
}

// AttendanceEntry marks presence for one day.
type AttendanceEntry struct {
	Date    string `json:"date"`
	Present bool   `json:"present"`
}

// Communication logs an outreach to the student.
type Communication struct {
	Channel string    `json:"channel"`
	Note    string    `json:"note"`
	At      time.Time `json:"at"`
}

// Transfer records a move between batches or campuses.
type Transfer struct {
	FromBatch  string    `json:"fromBatch"`
	ToBatch    string    `json:"toBatch"`
	FromCampus string    `json:"fromCampus"`
	ToCampus   string    `json:"toCampus"`
	Note       string    `json:"note,omitempty"`
	At         time.Time `json:"at"`
}

// Student is a promoted admission or converted enquiry.
type Student struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Email           string            `json:"email,omitempty"`
	Phone           string            `json:"phone,omitempty"`
	Status          StudentStatus     `json:"status"`
	Admission       Placement         `json:"admission"`
	Fee             Fee               `json:"fee"`
	Attendance      []AttendanceEntry `json:"attendance"`
	Documents       []Document        `json:"documents"`
	Communications  []Communication   `json:"communications"`
	EnrolledCourses []string          `json:"enrolledCourses"`
	Transfers       []Transfer        `json:"transfers,omitempty"`
	AdmissionID     string            `json:"admissionId,omitempty"`
	EnquiryID       string            `json:"enquiryId,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	RecordMeta
}

// Key returns the student id.
func (s Student) Key() string { return s.ID }

// Created returns the creation time used for ordering.
func (s Student) Created() time.Time { return s.CreatedAt }

// Version returns the timestamp compared on conflicting writes.
func (s Student) Version() time.Time {
	if s.UpdatedAt.IsZero() {
		return s.CreatedAt
	}
	return s.UpdatedAt
}

// Clone deep-copies every slice.
func (s Student) Clone() Student {
	out := s
	out.Fee = s.Fee.Clone()
	out.Attendance = append([]AttendanceEntry(nil), s.Attendance...)
	out.Documents = append([]Document(nil), s.Documents...)
	out.Communications = append([]Communication(nil), s.Communications...)
	out.EnrolledCourses = append([]string(nil), s.EnrolledCourses...)
	out.Transfers = append([]Transfer(nil), s.Transfers...)
	return out
}
