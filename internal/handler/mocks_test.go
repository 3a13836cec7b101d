package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/internal/service"
	"github.com/noah-isme/admissions-sync-api/pkg/export"
)

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type admissionServiceMock struct {
	submitRes *service.IngestResult
	submitErr error
	lastSub   dto.AdmissionSubmission
	items     []models.Admission
	filter    models.ListFilter
	rec       *models.Admission
	student   *models.Student
	err       error
	deleted   string
	exportFmt string
}

func (m *admissionServiceMock) List(filter models.ListFilter) ([]models.Admission, *models.Pagination) {
	m.filter = filter
	return m.items, &models.Pagination{Page: 1, PageSize: 50, TotalCount: len(m.items)}
}

func (m *admissionServiceMock) Get(string) (*models.Admission, error) { return m.rec, m.err }

func (m *admissionServiceMock) Submit(_ context.Context, sub dto.AdmissionSubmission) (*service.IngestResult, error) {
	m.lastSub = sub
	return m.submitRes, m.submitErr
}

func (m *admissionServiceMock) PublicItems() []map[string]any {
	out := make([]map[string]any, 0, len(m.items))
	for _, rec := range m.items {
		out = append(out, service.PublicItem(rec))
	}
	return out
}

func (m *admissionServiceMock) Approve(context.Context, string) (*models.Admission, *models.Student, error) {
	return m.rec, m.student, m.err
}

func (m *admissionServiceMock) Reject(context.Context, string, dto.RejectAdmissionRequest) (*models.Admission, error) {
	return m.rec, m.err
}

func (m *admissionServiceMock) Suspend(context.Context, string) (*models.Admission, error) {
	return m.rec, m.err
}

func (m *admissionServiceMock) Cancel(context.Context, string) (*models.Admission, error) {
	return m.rec, m.err
}

func (m *admissionServiceMock) Transfer(context.Context, string, dto.TransferAdmissionRequest) (*models.Admission, error) {
	return m.rec, m.err
}

func (m *admissionServiceMock) MarkPaid(context.Context, string) (*models.Admission, error) {
	return m.rec, m.err
}

func (m *admissionServiceMock) Delete(_ context.Context, id string) error {
	m.deleted = id
	return m.err
}

func (m *admissionServiceMock) Export(format string, _ models.ListFilter) ([]byte, export.Renderer, error) {
	m.exportFmt = format
	if m.err != nil {
		return nil, nil, m.err
	}
	r, err := export.ForFormat(format)
	if err != nil {
		return nil, nil, err
	}
	return []byte("ID,Name\nA1,Asha\n"), r, nil
}

type enquiryServiceMock struct {
	enq      *models.Enquiry
	student  *models.Student
	err      error
	imported string
	filename string
	convert  dto.ConvertEnquiryRequest
}

func (m *enquiryServiceMock) List(models.ListFilter) ([]models.Enquiry, *models.Pagination) {
	return []models.Enquiry{}, &models.Pagination{Page: 1, PageSize: 50}
}

func (m *enquiryServiceMock) Get(string) (*models.Enquiry, error) { return m.enq, m.err }

func (m *enquiryServiceMock) Create(context.Context, dto.CreateEnquiryRequest) (*models.Enquiry, error) {
	return m.enq, m.err
}

func (m *enquiryServiceMock) Import(_ context.Context, r io.Reader, filename string) (*dto.ImportResult, error) {
	raw, _ := io.ReadAll(r)
	m.imported, m.filename = string(raw), filename
	return &dto.ImportResult{Imported: 1, Skipped: []dto.ImportIssue{}}, m.err
}

func (m *enquiryServiceMock) UpdateStage(context.Context, string, dto.UpdateEnquiryStageRequest) (*models.Enquiry, error) {
	return m.enq, m.err
}

func (m *enquiryServiceMock) ScheduleFollowUp(context.Context, string, dto.ScheduleFollowUpRequest) (*models.Enquiry, error) {
	return m.enq, m.err
}

func (m *enquiryServiceMock) UpdateStatus(context.Context, string, dto.UpdateEnquiryStatusRequest) (*models.Enquiry, error) {
	return m.enq, m.err
}

func (m *enquiryServiceMock) Convert(_ context.Context, _ string, req dto.ConvertEnquiryRequest) (*models.Enquiry, *models.Student, error) {
	m.convert = req
	return m.enq, m.student, m.err
}

type studentServiceMock struct {
	st      *models.Student
	err     error
	invoice []byte
}

func (m *studentServiceMock) List(models.ListFilter) ([]models.Student, *models.Pagination) {
	return []models.Student{}, &models.Pagination{Page: 1, PageSize: 50}
}

func (m *studentServiceMock) Get(string) (*models.Student, error) { return m.st, m.err }

func (m *studentServiceMock) UpdateStatus(context.Context, string, dto.UpdateStudentStatusRequest) (*models.Student, error) {
	return m.st, m.err
}

func (m *studentServiceMock) AddInstallment(context.Context, string, dto.AddInstallmentRequest) (*dto.InstallmentResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &dto.InstallmentResponse{Student: *m.st, Requested: 5000, Applied: 4000, Clamped: true}, nil
}

func (m *studentServiceMock) Collect(context.Context, string) (*models.Student, error) {
	return m.st, m.err
}

func (m *studentServiceMock) ApplyDiscount(context.Context, string, dto.ApplyDiscountRequest) (*models.Student, error) {
	return m.st, m.err
}

func (m *studentServiceMock) MarkPaid(context.Context, string) (*models.Student, error) {
	return m.st, m.err
}

func (m *studentServiceMock) RecordAttendance(context.Context, string, dto.AttendanceRequest) (*models.Student, error) {
	return m.st, m.err
}

func (m *studentServiceMock) Transfer(context.Context, string, dto.TransferStudentRequest) (*models.Student, error) {
	return m.st, m.err
}

func (m *studentServiceMock) EnrollCourses(context.Context, string, dto.EnrollCoursesRequest) (*models.Student, error) {
	return m.st, m.err
}

func (m *studentServiceMock) LogCommunication(context.Context, string, dto.CommunicationRequest) (*models.Student, error) {
	return m.st, m.err
}

func (m *studentServiceMock) Invoice(id string) ([]byte, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	return m.invoice, "invoice-" + id + ".pdf", nil
}

func (m *studentServiceMock) Delete(context.Context, string) error { return m.err }

type certificateServiceMock struct {
	cert   *models.CertificateRequest
	err    error
	actor  string
	filter models.CertificateFilter
}

func (m *certificateServiceMock) Create(_ context.Context, _ dto.CreateCertificateRequest, actor string) (*models.CertificateRequest, error) {
	m.actor = actor
	return m.cert, m.err
}

func (m *certificateServiceMock) List(_ context.Context, filter models.CertificateFilter) ([]models.CertificateRequest, error) {
	m.filter = filter
	return []models.CertificateRequest{}, m.err
}

func (m *certificateServiceMock) Get(context.Context, string) (*models.CertificateRequest, error) {
	return m.cert, m.err
}

func (m *certificateServiceMock) UpdateStatus(_ context.Context, _ string, _ dto.UpdateCertificateStatusRequest, actor string) (*models.CertificateRequest, error) {
	m.actor = actor
	return m.cert, m.err
}

func (m *certificateServiceMock) Delete(context.Context, string) error { return m.err }

type syncMock struct {
	refreshes int
	drains    int
}

func (m *syncMock) Refresh(context.Context) dto.SyncReport {
	m.refreshes++
	return dto.SyncReport{Admissions: 3}
}

func (m *syncMock) Drain(context.Context) dto.BufferSyncReport {
	m.drains++
	return dto.BufferSyncReport{Attempted: 2, Synced: 1, Remaining: 1}
}

type batchServiceMock struct {
	items  []models.Batch
	filter models.ListFilter
	last   dto.CreateBatchRequest
	err    error
}

func (m *batchServiceMock) List(filter models.ListFilter) ([]models.Batch, *models.Pagination) {
	m.filter = filter
	return m.items, &models.Pagination{Page: 1, PageSize: 50, TotalCount: len(m.items)}
}

func (m *batchServiceMock) Create(_ context.Context, req dto.CreateBatchRequest) (*models.Batch, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Batch{ID: "B1", Code: req.Code, Course: req.Course, Status: "active"}, nil
}
