package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups every HTTP handler served by the API.
type Handlers struct {
	System       *SystemHandler
	Public       *PublicHandler
	Admissions   *AdmissionHandler
	Enquiries    *EnquiryHandler
	Students     *StudentHandler
	Certificates *CertificateHandler
	Batches      *BatchHandler
	Sync         *SyncHandler
}

// Register mounts the routes. Nil handlers are skipped.
func Register(r gin.IRouter, apiPrefix string, h Handlers) {
	if h.System != nil {
		r.GET("/health", h.System.Health)
		r.GET("/ready", h.System.Ready)
		r.GET("/metrics", h.System.Prometheus)
	}

	if h.Public != nil {
		public := r.Group("/api/public")
		public.POST("/applications", h.Public.Submit)
		public.GET("/applications", h.Public.List)
	}

	if h.Certificates != nil {
		certs := r.Group("/api/certificates")
		certs.POST("", h.Certificates.Create)
		certs.GET("", h.Certificates.List)
		certs.GET("/:id", h.Certificates.Get)
		certs.PATCH("/:id/status", h.Certificates.UpdateStatus)
		certs.DELETE("/:id", h.Certificates.Delete)
	}

	api := r.Group(apiPrefix)

	if h.Admissions != nil {
		adm := api.Group("/admissions")
		adm.GET("", h.Admissions.List)
		adm.POST("", h.Admissions.Create)
		adm.GET("/export", h.Admissions.Export)
		adm.GET("/:id", h.Admissions.Get)
		adm.DELETE("/:id", h.Admissions.Delete)
		adm.POST("/:id/approve", h.Admissions.Approve)
		adm.POST("/:id/reject", h.Admissions.Reject)
		adm.POST("/:id/suspend", h.Admissions.Suspend)
		adm.POST("/:id/cancel", h.Admissions.Cancel)
		adm.POST("/:id/transfer", h.Admissions.Transfer)
		adm.POST("/:id/mark-paid", h.Admissions.MarkPaid)
	}

	if h.Enquiries != nil {
		enq := api.Group("/enquiries")
		enq.GET("", h.Enquiries.List)
		enq.POST("", h.Enquiries.Create)
		enq.POST("/import", h.Enquiries.Import)
		enq.GET("/:id", h.Enquiries.Get)
		enq.PATCH("/:id/stage", h.Enquiries.UpdateStage)
		enq.PATCH("/:id/follow-up", h.Enquiries.ScheduleFollowUp)
		enq.PATCH("/:id/status", h.Enquiries.UpdateStatus)
		enq.POST("/:id/convert", h.Enquiries.Convert)
	}

	if h.Students != nil {
		st := api.Group("/students")
		st.GET("", h.Students.List)
		st.GET("/:id", h.Students.Get)
		st.DELETE("/:id", h.Students.Delete)
		st.GET("/:id/invoice.pdf", h.Students.Invoice)
		st.PATCH("/:id/status", h.Students.UpdateStatus)
		st.POST("/:id/fee/installments", h.Students.AddInstallment)
		st.POST("/:id/fee/collect", h.Students.Collect)
		st.POST("/:id/fee/discount", h.Students.ApplyDiscount)
		st.POST("/:id/fee/mark-paid", h.Students.MarkPaid)
		st.POST("/:id/attendance", h.Students.RecordAttendance)
		st.POST("/:id/transfer", h.Students.Transfer)
		st.POST("/:id/courses", h.Students.EnrollCourses)
		st.POST("/:id/communications", h.Students.LogCommunication)
	}

	if h.Batches != nil {
		api.GET("/batches", h.Batches.List)
		api.POST("/batches", h.Batches.Create)
	}

	if h.Sync != nil {
		api.POST("/sync/refresh", h.Sync.Refresh)
		api.POST("/sync/buffer", h.Sync.Buffer)
	}
}
