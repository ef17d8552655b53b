package api

import (
	"go-workbook-pipeline/internal/api/handler"
	"go-workbook-pipeline/pkg/router"

	httpSwagger "github.com/swaggo/http-swagger"
)

func RegisterRoutes(r *router.Router, h *handler.Handler) {
	r.GET("/api/v1/health", h.Health)

	r.POST("/api/v1/imports", h.CreateImport)
	r.POST("/api/v1/events", h.HandleEvent)

	r.POST("/api/v1/workbooks/*/validate", h.ValidateWorkbook)
	r.GET("/api/v1/workbooks/*/readiness", h.GetReadiness)
	r.POST("/api/v1/workbooks/*/submit", h.SubmitWorkbook)

	r.GET("/api/v1/jobs", h.ListJobs)
	r.POST("/api/v1/jobs/*/retry", h.RetryJob)
	r.GET("/api/v1/jobs/*", h.GetJob)

	r.GET("/api/v1/exports/*/*", h.DownloadExport)
	r.GET("/api/v1/exports/*", h.ListExportFiles)

	r.GET("/swagger/*", router.HandlerFunc(httpSwagger.WrapHandler))
}
