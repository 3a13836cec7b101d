package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/internal/repository"
	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
	"github.com/noah-isme/admissions-sync-api/pkg/realtime"
)

func currentStudent(id string) models.Student {
	return models.Student{
		ID:              id,
		Name:            "Ravi Kumar",
		Email:           "ravi@example.com",
		Status:          models.StudentStatusCurrent,
		Admission:       models.Placement{Course: "Design", Batch: "B1", Campus: "Main", Date: testNow},
		Fee:             models.Fee{Total: 9000, Installments: []models.Installment{}},
		EnrolledCourses: []string{"Design"},
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
		RecordMeta:      models.RecordMeta{Provenance: models.ProvenanceStudents, SyncState: models.SyncStateSynced},
	}
}

func newStudentFixture(records ...models.Student) (*StudentService, *studentStoreStub, *memBuffer, *publisherStub) {
	view := NewViewStore[models.Student]("students")
	for _, st := range records {
		view.Insert(st)
	}
	store := newStudentStoreStub()
	buf := newMemBuffer()
	pub := &publisherStub{}
	svc := NewStudentService(view, store, buf, nil, nil, WithStudentClock(fixedClock()), WithStudentPublisher(pub))
	return svc, store, buf, pub
}

func TestStudentInstallmentsFollowLedgerRules(t *testing.T) {
	svc, store, _, pub := newStudentFixture(currentStudent("STU-1"))
	ctx := context.Background()

	res, err := svc.AddInstallment(ctx, "STU-1", dto.AddInstallmentRequest{Amount: 4000})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), res.Applied)
	assert.False(t, res.Clamped)
	assert.Equal(t, testNow, res.Student.Fee.Installments[0].DueDate, "due date defaults to today")

	due := testNow.AddDate(0, 1, 0)
	res, err = svc.AddInstallment(ctx, "STU-1", dto.AddInstallmentRequest{Amount: 8000, DueDate: &due})
	require.NoError(t, err)
	assert.True(t, res.Clamped)
	assert.Equal(t, int64(5000), res.Applied)

	_, err = svc.AddInstallment(ctx, "STU-1", dto.AddInstallmentRequest{Amount: 10})
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err), "nothing remains for the final installment")

	st, err := svc.Collect(ctx, "STU-1")
	require.NoError(t, err)
	assert.True(t, st.Fee.Installments[0].Paid())
	assert.False(t, st.Fee.Installments[1].Paid())

	st, err = svc.MarkPaid(ctx, "STU-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, PaymentStatus(st.Fee, testNow))

	_, err = svc.Collect(ctx, "STU-1")
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))

	assert.Equal(t, 4, store.upserts)
	changes := pub.published()
	require.Len(t, changes, 4)
	assert.Equal(t, "students", changes[0].Table)
	assert.Equal(t, realtime.ChangeUpdate, changes[0].Type)
	assert.Equal(t, "STU-1", changes[0].Record["id"])
}

func TestStudentDiscountAndStatus(t *testing.T) {
	svc, _, _, _ := newStudentFixture(currentStudent("STU-1"))
	ctx := context.Background()

	_, err := svc.ApplyDiscount(ctx, "STU-1", dto.ApplyDiscountRequest{Percent: 120})
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))

	st, err := svc.ApplyDiscount(ctx, "STU-1", dto.ApplyDiscountRequest{Percent: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(8100), Summarize(st.Fee, testNow).DiscountedTotal)

	st, err = svc.UpdateStatus(ctx, "STU-1", dto.UpdateStudentStatusRequest{Status: models.StudentStatusFreeze})
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusFreeze, st.Status)

	_, err = svc.UpdateStatus(ctx, "STU-1", dto.UpdateStudentStatusRequest{Status: models.StudentStatusAlumni})
	assert.Equal(t, appErrors.KindInvalidTransition, appErrors.KindOf(err))

	_, err = svc.UpdateStatus(ctx, "STU-1", dto.UpdateStudentStatusRequest{Status: "Graduated"})
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))
}

func TestStudentRecordsAttendanceTransfersAndCourses(t *testing.T) {
	svc, store, _, _ := newStudentFixture(currentStudent("STU-1"))
	ctx := context.Background()

	_, err := svc.RecordAttendance(ctx, "STU-1", dto.AttendanceRequest{Date: "01/05/2024", Present: true})
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))

	_, err = svc.RecordAttendance(ctx, "STU-1", dto.AttendanceRequest{Date: "2024-05-01", Present: true})
	require.NoError(t, err)
	st, err := svc.RecordAttendance(ctx, "STU-1", dto.AttendanceRequest{Date: "2024-05-01", Present: false})
	require.NoError(t, err)
	require.Len(t, st.Attendance, 1)
	assert.False(t, st.Attendance[0].Present)

	st, err = svc.Transfer(ctx, "STU-1", dto.TransferStudentRequest{Batch: "B2", Note: "timing"})
	require.NoError(t, err)
	assert.Equal(t, "B2", st.Admission.Batch)
	require.Len(t, st.Transfers, 1)
	assert.Equal(t, "B1", st.Transfers[0].FromBatch)

	upserts := store.upserts
	st, err = svc.Transfer(ctx, "STU-1", dto.TransferStudentRequest{Batch: "B2"})
	require.NoError(t, err)
	assert.Len(t, st.Transfers, 1)
	assert.Equal(t, upserts, store.upserts, "no-op transfer is not saved")

	st, err = svc.EnrollCourses(ctx, "STU-1", dto.EnrollCoursesRequest{Courses: []string{"design", "Motion", "Motion"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Design", "Motion"}, st.EnrolledCourses)
	assert.Empty(t, st.Fee.Installments)

	_, err = svc.LogCommunication(ctx, "STU-1", dto.CommunicationRequest{Channel: "call", Note: "first"})
	require.NoError(t, err)
	st, err = svc.LogCommunication(ctx, "STU-1", dto.CommunicationRequest{Channel: "sms", Note: "second"})
	require.NoError(t, err)
	require.Len(t, st.Communications, 2)
	assert.Equal(t, "second", st.Communications[0].Note)
}

func TestStudentSaveBuffersWhenStoreUnreachable(t *testing.T) {
	svc, store, buf, pub := newStudentFixture(currentStudent("STU-1"))
	store.err = errUnreachable

	st, err := svc.MarkPaid(context.Background(), "STU-1")
	require.NoError(t, err)
	assert.Equal(t, models.ProvenanceLocalStudents, st.Provenance)
	assert.Equal(t, models.SyncStatePending, st.Sync())
	assert.Equal(t, 1, buf.count(repository.CollectionStudents))
	assert.Empty(t, pub.published())

	store.err = nil
	upserts := store.upserts
	_, err = svc.LogCommunication(context.Background(), "STU-1", dto.CommunicationRequest{Channel: "call", Note: "x"})
	require.NoError(t, err)
	assert.Equal(t, upserts, store.upserts, "pending local students wait for the buffer drain")
}

func TestStudentPromoteIsIdempotent(t *testing.T) {
	svc, store, _, pub := newStudentFixture()
	enq := models.Enquiry{ID: "E1", Name: "Mira Sen", Course: "Art", Contact: "555"}
	st := PromotionFromEnquiry(enq, "STU-MS-1", "", "", testNow)
	assert.Equal(t, unassignedBatch, st.Admission.Batch)
	assert.Equal(t, models.DefaultCampus, st.Admission.Campus)

	first, err := svc.Promote(context.Background(), st)
	require.NoError(t, err)
	second, err := svc.Promote(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.upserts)
	require.Len(t, pub.published(), 1)
	assert.Equal(t, realtime.ChangeInsert, pub.published()[0].Type)
}

func TestStudentInvoiceAndDelete(t *testing.T) {
	st := currentStudent("STU-1")
	paid := testNow.Add(-time.Hour)
	st.Fee.Installments = []models.Installment{
		{ID: "I1", Amount: 4000, DueDate: testNow.AddDate(0, 0, -10), PaidAt: &paid},
		{ID: "I2", Amount: 5000, DueDate: testNow.AddDate(0, 0, -1)},
	}
	svc, store, _, _ := newStudentFixture(st)
	store.students["STU-1"] = st

	pdf, name, err := svc.Invoice("STU-1")
	require.NoError(t, err)
	assert.Equal(t, "invoice-STU-1.pdf", name)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	_, _, err = svc.Invoice("nope")
	assert.Equal(t, appErrors.KindNotFound, appErrors.KindOf(err))

	require.NoError(t, svc.Delete(context.Background(), "STU-1"))
	assert.Empty(t, store.students)
	_, err = svc.Get("STU-1")
	assert.Equal(t, appErrors.KindNotFound, appErrors.KindOf(err))
}

func TestStudentListFilters(t *testing.T) {
	north := currentStudent("STU-2")
	north.Name = "Lena Park"
	north.Email = "lena@example.com"
	north.Admission.Campus = "North"
	svc, _, _, _ := newStudentFixture(currentStudent("STU-1"), north)

	items, p := svc.List(models.ListFilter{Campus: "NORTH"})
	require.Len(t, items, 1)
	assert.Equal(t, "STU-2", items[0].ID)
	assert.Equal(t, 1, p.TotalCount)

	items, _ = svc.List(models.ListFilter{Search: "ravi"})
	require.Len(t, items, 1)
	assert.Equal(t, "STU-1", items[0].ID)
}
