package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admissions-sync-api/internal/models"
	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
)

func TestDiscountedTotal(t *testing.T) {
	assert.Equal(t, int64(27000), DiscountedTotal(30000, 10))
	assert.Equal(t, int64(30000), DiscountedTotal(30000, 0))
	assert.Equal(t, int64(0), DiscountedTotal(30000, 100))
	assert.Equal(t, int64(667), DiscountedTotal(1000, 33.33))
}

func TestAddInstallmentAutoFillsThird(t *testing.T) {
	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	fee := models.Fee{Total: 30000, DiscountPercent: 10}

	first, err := AddInstallment(fee, 10000, due)
	require.NoError(t, err)
	assert.False(t, first.Clamped)

	second, err := AddInstallment(first.Fee, 8000, due)
	require.NoError(t, err)

	third, err := AddInstallment(second.Fee, 1, due)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), third.Installment.Amount)
	assert.Equal(t, "I3", third.Installment.ID)
	assert.Len(t, third.Fee.Installments, 3)
	assert.Empty(t, fee.Installments, "input ledger must not be mutated")

	_, err = AddInstallment(third.Fee, 100, due)
	require.Error(t, err)
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))
}

func TestAddInstallmentClampsToAllowance(t *testing.T) {
	res, err := AddInstallment(models.Fee{Total: 27000}, 50000, time.Time{})
	require.NoError(t, err)
	assert.True(t, res.Clamped)
	assert.Equal(t, int64(27000), res.Installment.Amount)
	assert.Equal(t, int64(50000), res.Requested)

	_, err = AddInstallment(res.Fee, 1, time.Time{})
	require.Error(t, err, "nothing left for the second installment")
}

func TestAddInstallmentRejectsEmptyRemainderOnThird(t *testing.T) {
	fee := models.Fee{Total: 100, Installments: []models.Installment{{ID: "I1", Amount: 60}, {ID: "I2", Amount: 40}}}
	_, err := AddInstallment(fee, 10, time.Time{})
	require.Error(t, err)
}

func TestAddInstallmentRejectsNonPositive(t *testing.T) {
	_, err := AddInstallment(models.Fee{Total: 1000}, 0, time.Time{})
	require.Error(t, err)
	_, err = AddInstallment(models.Fee{Total: 1000}, -5, time.Time{})
	require.Error(t, err)
}

func TestPaymentStatus(t *testing.T) {
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	paid := now.Add(-time.Hour)
	past := now.AddDate(0, 0, -3)
	future := now.AddDate(0, 1, 0)

	allPaid := models.Fee{Total: 27000, Installments: []models.Installment{
		{ID: "I1", Amount: 9000, DueDate: past, PaidAt: &paid},
		{ID: "I2", Amount: 9000, DueDate: past, PaidAt: &paid},
		{ID: "I3", Amount: 9000, DueDate: future, PaidAt: &paid},
	}}
	assert.Equal(t, models.PaymentStatusPaid, PaymentStatus(allPaid, now))

	overdue := models.Fee{Total: 27000, Installments: []models.Installment{
		{ID: "I1", Amount: 9000, DueDate: past},
		{ID: "I2", Amount: 9000, DueDate: future, PaidAt: &paid},
		{ID: "I3", Amount: 9000, DueDate: future},
	}}
	assert.Equal(t, models.PaymentStatusOverdue, PaymentStatus(overdue, now))

	pending := models.Fee{Total: 9000, Installments: []models.Installment{{ID: "I1", Amount: 9000, DueDate: future}}}
	assert.Equal(t, models.PaymentStatusPending, PaymentStatus(pending, now))

	dueNow := models.Fee{Total: 9000, Installments: []models.Installment{{ID: "I1", Amount: 9000, DueDate: now}}}
	assert.Equal(t, models.PaymentStatusPending, PaymentStatus(dueNow, now), "due exactly now is not overdue")

	assert.Equal(t, models.PaymentStatusPending, PaymentStatus(models.Fee{}, now))
}

func TestCollectNextAndSummary(t *testing.T) {
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	fee := models.Fee{Total: 30000, DiscountPercent: 10, Installments: []models.Installment{
		{ID: "I1", Amount: 10000, DueDate: now},
		{ID: "I2", Amount: 17000, DueDate: now.AddDate(0, 1, 0)},
	}}

	next, inst, err := CollectNext(fee, now)
	require.NoError(t, err)
	assert.Equal(t, "I1", inst.ID)
	assert.Nil(t, fee.Installments[0].PaidAt)

	summary := Summarize(next, now)
	assert.Equal(t, int64(3000), summary.DiscountAmount)
	assert.Equal(t, int64(27000), summary.DiscountedTotal)
	assert.Equal(t, int64(10000), summary.Paid)
	assert.Equal(t, int64(17000), summary.Pending)
	assert.Equal(t, models.PaymentStatusPending, summary.Status)

	all := MarkAllPaid(next, now)
	assert.Equal(t, models.PaymentStatusPaid, PaymentStatus(all, now))
	_, _, err = CollectNext(all, now)
	require.Error(t, err)
}

func TestApplyDiscount(t *testing.T) {
	fee, err := ApplyDiscount(models.Fee{Total: 1000}, 25)
	require.NoError(t, err)
	assert.Equal(t, 25.0, fee.DiscountPercent)

	_, err = ApplyDiscount(fee, 101)
	require.Error(t, err)
	_, err = ApplyDiscount(fee, -1)
	require.Error(t, err)
}
