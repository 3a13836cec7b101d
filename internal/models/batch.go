package models

import "time"

// Batch is a scheduled cohort of a course at a campus.
type Batch struct {
	ID              string    `json:"id"`
	Code            string    `json:"code"`
	Course          string    `json:"course"`
	Campus          string    `json:"campus"`
	StartDate       string    `json:"startDate"`
	EndDate         string    `json:"endDate"`
	Instructor      string    `json:"instructor"`
	MaxStudents     int       `json:"maxStudents"`
	CurrentStudents int       `json:"currentStudents"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	RecordMeta
}

// Key returns the batch id.
func (b Batch) Key() string { return b.ID }

// Created returns the creation time used for ordering.
func (b Batch) Created() time.Time { return b.CreatedAt }

// Version returns the timestamp compared on conflicting writes.
func (b Batch) Version() time.Time {
	if b.UpdatedAt.IsZero() {
		return b.CreatedAt
	}
	return b.UpdatedAt
}

// Seats returns the remaining capacity, never negative.
func (b Batch) Seats() int {
	if left := b.MaxStudents - b.CurrentStudents; left > 0 {
		return left
	}
	return 0
}
