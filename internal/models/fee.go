package models

import "time"

// PaymentStatus is derived from a ledger, never stored.
type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "Paid"
	PaymentStatusOverdue PaymentStatus = "Overdue"
	PaymentStatusPending PaymentStatus = "Pending"
)

// Installment is one scheduled partial fee payment. A nil PaidAt means unpaid.
type Installment struct {
	ID      string     `json:"id"`
	Amount  int64      `json:"amount"`
	DueDate time.Time  `json:"dueDate"`
	PaidAt  *time.Time `json:"paidAt,omitempty"`
}

// Paid reports whether the installment carries a payment timestamp.
func (i Installment) Paid() bool { return i.PaidAt != nil }

// Fee is the ledger attached to admissions and students.
type Fee struct {
	Total           int64         `json:"total"`
	DiscountPercent float64       `json:"discountPercent,omitempty"`
	Installments    []Installment `json:"installments"`
}

// Clone returns a deep copy so callers can mutate freely.
func (f Fee) Clone() Fee {
	out := f
	out.Installments = make([]Installment, len(f.Installments))
	for i, inst := range f.Installments {
		cp := inst
		if inst.PaidAt != nil {
			paid := *inst.PaidAt
			cp.PaidAt = &paid
		}
		out.Installments[i] = cp
	}
	return out
}

// FeeSummary is the derived view of a ledger.
type FeeSummary struct {
	Total           int64         `json:"total"`
	DiscountPercent float64       `json:"discountPercent"`
	DiscountAmount  int64         `json:"discountAmount"`
	DiscountedTotal int64         `json:"discountedTotal"`
	Paid            int64         `json:"paid"`
	Pending         int64         `json:"pending"`
	Status          PaymentStatus `json:"status"`
}
