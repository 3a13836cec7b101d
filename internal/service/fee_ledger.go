package service

import (
	"fmt"
	"math"
	"time"

	"github.com/noah-isme/admissions-sync-api/internal/models"
	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
)

// MaxInstallments bounds every fee ledger.
const MaxInstallments = 3

// InstallmentResult reports what AddInstallment actually stored.
type InstallmentResult struct {
	Fee         models.Fee         `json:"fee"`
	Installment models.Installment `json:"installment"`
	Requested   int64              `json:"requested"`
	Clamped     bool               `json:"clamped"`
}

// DiscountedTotal applies a percentage discount and rounds half away from zero.
func DiscountedTotal(total int64, discountPercent float64) int64 {
	return int64(math.Round(float64(total) * (1 - discountPercent/100)))
}

func installmentSum(fee models.Fee) int64 {
	var sum int64
	for _, inst := range fee.Installments {
		sum += inst.Amount
	}
	return sum
}

// AddInstallment appends an installment without letting the ledger exceed
// the discounted total. The third installment always takes the remainder.
func AddInstallment(fee models.Fee, amount int64, due time.Time) (InstallmentResult, error) {
	count := len(fee.Installments)
	if count >= MaxInstallments {
		return InstallmentResult{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a fee ledger holds at most %d installments", MaxInstallments))
	}

	remaining := DiscountedTotal(fee.Total, fee.DiscountPercent) - installmentSum(fee)
	result := InstallmentResult{Requested: amount}

	if count == MaxInstallments-1 {
		amount = remaining
		if amount <= 0 {
			return InstallmentResult{}, appErrors.Clone(appErrors.ErrValidation, "nothing remains to schedule for the final installment")
		}
	} else if amount > remaining {
		amount = remaining
		result.Clamped = true
	}
	if amount <= 0 {
		return InstallmentResult{}, appErrors.Clone(appErrors.ErrValidation, "installment amount must be positive")
	}

	inst := models.Installment{
		ID:      fmt.Sprintf("I%d", count+1),
		Amount:  amount,
		DueDate: due,
	}
	next := fee.Clone()
	next.Installments = append(next.Installments, inst)

	result.Fee = next
	result.Installment = inst
	return result, nil
}

// PaymentStatus derives Paid, Overdue or Pending. An empty ledger is Pending;
// installments without a due date never count as overdue.
func PaymentStatus(fee models.Fee, now time.Time) models.PaymentStatus {
	if len(fee.Installments) == 0 {
		return models.PaymentStatusPending
	}
	allPaid := true
	overdue := false
	for _, inst := range fee.Installments {
		if inst.Paid() {
			continue
		}
		allPaid = false
		if !inst.DueDate.IsZero() && inst.DueDate.Before(now) {
			overdue = true
		}
	}
	switch {
	case allPaid:
		return models.PaymentStatusPaid
	case overdue:
		return models.PaymentStatusOverdue
	default:
		return models.PaymentStatusPending
	}
}

// Summarize computes the derived totals shown on fee screens and invoices.
func Summarize(fee models.Fee, now time.Time) models.FeeSummary {
	discounted := DiscountedTotal(fee.Total, fee.DiscountPercent)
	var paid int64
	for _, inst := range fee.Installments {
		if inst.Paid() {
			paid += inst.Amount
		}
	}
	pending := discounted - paid
	if pending < 0 {
		pending = 0
	}
	return models.FeeSummary{
		Total:           fee.Total,
		DiscountPercent: fee.DiscountPercent,
		DiscountAmount:  fee.Total - discounted,
		DiscountedTotal: discounted,
		Paid:            paid,
		Pending:         pending,
		Status:          PaymentStatus(fee, now),
	}
}

// CollectNext marks the first unpaid installment as paid at now.
func CollectNext(fee models.Fee, now time.Time) (models.Fee, models.Installment, error) {
	next := fee.Clone()
	for i := range next.Installments {
		if next.Installments[i].Paid() {
			continue
		}
		paidAt := now
		next.Installments[i].PaidAt = &paidAt
		return next, next.Installments[i], nil
	}
	return fee, models.Installment{}, appErrors.Clone(appErrors.ErrValidation, "no unpaid installment to collect")
}

// MarkAllPaid stamps every unpaid installment with now.
func MarkAllPaid(fee models.Fee, now time.Time) models.Fee {
	next := fee.Clone()
	for i := range next.Installments {
		if !next.Installments[i].Paid() {
			paidAt := now
			next.Installments[i].PaidAt = &paidAt
		}
	}
	return next
}

// ApplyDiscount sets the discount percentage. Existing installments are left as saved.
func ApplyDiscount(fee models.Fee, discountPercent float64) (models.Fee, error) {
	if math.IsNaN(discountPercent) || discountPercent < 0 || discountPercent > 100 {
		return fee, appErrors.Clone(appErrors.ErrValidation, "discount must be between 0 and 100")
	}
	next := fee.Clone()
	next.DiscountPercent = discountPercent
	return next, nil
}
