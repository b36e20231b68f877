package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/plantops/workflow-api/internal/middleware"
	"github.com/plantops/workflow-api/internal/service"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth        *AuthHandler
	Application *ApplicationHandler
	Dashboard   *DashboardHandler
	Admin       *AdminHandler
	Attachment  *AttachmentHandler
	Comment     *CommentHandler
	Export      *ExportHandler
}

// RegisterRoutes mounts the API surface under /api/v1.
func RegisterRoutes(r *gin.Engine, h Handlers, auth *service.AuthService, metrics *service.MetricsService) {
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", h.Auth.Login)

	authed := v1.Group("")
	authed.Use(middleware.JWT(auth))

	authed.GET("/auth/me", h.Auth.Me)
	authed.GET("/capabilities", h.Application.Capabilities)

	authed.GET("/dashboard", h.Dashboard.List)
	authed.GET("/dashboard/summary", h.Dashboard.Summary)
	authed.GET("/dashboard/pending-receive", h.Dashboard.PendingReceive)
	authed.GET("/dashboard/pending-approve", h.Dashboard.PendingApprove)

	authed.POST("/applications", h.Application.Create)
	authed.GET("/applications/:id", h.Application.Get)
	authed.PUT("/applications/:id", h.Application.Update)
	authed.POST("/applications/:id/submit", h.Application.Submit)
	authed.POST("/applications/:id/receive", h.Application.Receive)
	authed.POST("/applications/:id/return", h.Application.Return)
	authed.POST("/applications/:id/approve", h.Application.Approve)
	authed.POST("/applications/:id/reject", h.Application.Reject)

	authed.POST("/applications/:id/attachments", h.Attachment.Upload)
	authed.GET("/applications/:id/attachments", h.Attachment.List)
	authed.GET("/attachments/:id", h.Attachment.Download)
	authed.DELETE("/attachments/:id", h.Attachment.Delete)

	authed.POST("/applications/:id/comments", h.Comment.Create)
	authed.GET("/applications/:id/comments", h.Comment.List)

	authed.GET("/export/applications.csv", h.Export.DashboardCSV)
	authed.GET("/applications/:id/audit.pdf", h.Export.AuditTrailPDF)

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireAdmin())

	admin.POST("/roles", h.Admin.CreateRole)
	admin.GET("/roles", h.Admin.ListRoles)
	admin.GET("/roles/:id", h.Admin.GetRole)
	admin.PUT("/roles/:id/active", h.Admin.SetRoleActive)
	admin.POST("/roles/:id/members", h.Admin.AssignMember)
	admin.DELETE("/roles/:id/members/:userId", h.Admin.RemoveMember)
	admin.GET("/routes", h.Admin.ListRoutes)
	admin.POST("/routes", h.Admin.CreateRoute)
	admin.PUT("/routes/:id", h.Admin.UpdateRoute)
}
