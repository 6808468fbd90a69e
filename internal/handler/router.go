package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/pg-defence-api/internal/authz"
	"github.com/noah-isme/pg-defence-api/internal/middleware"
	"github.com/noah-isme/pg-defence-api/internal/service"
)

// Router binds handlers to API routes behind the authorization gate. Nil handlers are
// skipped.
type Router struct {
	Auth          *AuthHandler
	Defences      *DefenceHandler
	DeptSheets    *ScoreSheetHandler
	GeneralSheets *ScoreSheetHandler
	Students      *StudentHandler
	Lecturers     *LecturerHandler
	Org           *OrgHandler
	Submissions   *SubmissionHandler
	Notifications *NotificationHandler
	Activity      *ActivityHandler

	Tokens   middleware.TokenValidator
	Policy   *authz.Policy
	Recorder service.ActivityRecorder
	Logger   *zap.Logger
}

// Register mounts every route under api.
func (r *Router) Register(api *gin.RouterGroup) {
	perm := middleware.RequirePermission
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(r.Recorder, r.Logger, action, resource)
	}
	secured := api.Group("")
	secured.Use(middleware.JWT(r.Tokens, r.Policy))

	if h := r.Auth; h != nil {
		auth := api.Group("/auth")
		auth.POST("/login", h.Login)
		auth.POST("/forgot-password", h.ForgotPassword)
		auth.POST("/reset-password", h.ResetPassword)
		secured.GET("/auth/me", h.Me)
		secured.POST("/auth/change-password", audit("change_password", "auth"), h.ChangePassword)
	}

	if h := r.Defences; h != nil {
		d := secured.Group("/defence")
		d.GET("", perm(authz.PermViewDefense), h.List)
		d.GET("/panel", perm(authz.PermScoreStudent), h.ListMine)
		d.POST("", perm(authz.PermScheduleDefense), audit("schedule", "defence"), h.Schedule)
		d.GET("/:id", perm(authz.PermViewDefense), h.Get)
		d.POST("/:id/start", perm(authz.PermStartDefense), audit("start", "defence"), h.Start)
		d.POST("/:id/end", perm(authz.PermEndDefense), audit("end", "defence"), h.End)
		d.POST("/:id/score", perm(authz.PermScoreStudent), audit("score", "defence"), h.SubmitScore)
		d.GET("/:id/results", perm(authz.PermViewDefense), h.Results)
		d.GET("/:id/results/export", perm(authz.PermViewDefense), h.Export)
		d.POST("/students/:studentId/approve", perm(authz.PermApproveDefense), audit("approve", "student"), h.Approve)
		d.POST("/students/:studentId/reject", perm(authz.PermApproveDefense), audit("reject", "student"), h.Reject)
	}

	r.registerSheet(secured.Group("/scoresheet/department"), r.DeptSheets, authz.PermManageDeptScoreSheet, audit)
	r.registerSheet(secured.Group("/scoresheet/general"), r.GeneralSheets, authz.PermManageGeneralScoreSheet, audit)

	if h := r.Students; h != nil {
		s := secured.Group("/students")
		s.GET("", perm(authz.PermViewStudents), h.List)
		s.GET("/supervised", perm(authz.PermViewStudents), h.ListSupervised)
		s.POST("", perm(authz.PermManageStudents), audit("create", "student"), h.Create)
		s.GET("/:id", perm(authz.PermViewStudents), h.Get)
		s.PUT("/:id", perm(authz.PermManageStudents), audit("update", "student"), h.Update)
		s.DELETE("/:id", perm(authz.PermManageStudents), audit("delete", "student"), h.Delete)
		s.POST("/:id/supervisors", perm(authz.PermAssignSupervisor), audit("assign_supervisor", "student"), h.AssignSupervisor)
	}

	if h := r.Lecturers; h != nil {
		l := secured.Group("/lecturers")
		l.GET("", perm(authz.PermViewLecturers), h.List)
		l.POST("", perm(authz.PermManageLecturers), audit("create", "lecturer"), h.Create)
		l.GET("/:id", perm(authz.PermViewLecturers), h.Get)
		l.DELETE("/:id", perm(authz.PermManageLecturers), audit("delete", "lecturer"), h.Delete)
		l.PATCH("/:id/panel", perm(authz.PermManagePanel), audit("set_panel_member", "lecturer"), h.SetPanelMember)
		l.POST("/:id/roles", perm(authz.PermGrantRoles), audit("grant_role", "lecturer"), h.GrantRole)
		l.DELETE("/:id/roles/:role", perm(authz.PermGrantRoles), audit("revoke_role", "lecturer"), h.RevokeRole)
	}

	if h := r.Org; h != nil {
		secured.GET("/faculties", perm(authz.PermViewOrg), h.ListFaculties)
		secured.POST("/faculties", perm(authz.PermManageOrg), audit("create", "faculty"), h.CreateFaculty)
		secured.DELETE("/faculties/:id", perm(authz.PermManageOrg), audit("delete", "faculty"), h.DeleteFaculty)
		secured.GET("/departments", perm(authz.PermViewOrg), h.ListDepartments)
		secured.POST("/departments", perm(authz.PermManageOrg), audit("create", "department"), h.CreateDepartment)
		secured.DELETE("/departments/:id", perm(authz.PermManageOrg), audit("delete", "department"), h.DeleteDepartment)
		secured.GET("/sessions", perm(authz.PermViewOrg), h.ListSessions)
		secured.POST("/sessions", perm(authz.PermManageOrg), audit("create", "session"), h.CreateSession)
		secured.POST("/sessions/:id/activate", perm(authz.PermManageOrg), audit("activate", "session"), h.ActivateSession)
		secured.DELETE("/sessions/:id", perm(authz.PermManageOrg), audit("delete", "session"), h.DeleteSession)
	}

	if h := r.Submissions; h != nil {
		// The signed token is the credential for downloads.
		api.GET("/projects/download", h.Download)
		p := secured.Group("/projects")
		p.POST("", perm(authz.PermUploadProject), audit("upload", "project"), h.Upload)
		p.GET("/mine", perm(authz.PermUploadProject), h.ListMine)
		p.GET("/students/:studentId", perm(authz.PermViewProjects), h.ListByStudent)
		p.GET("/:id/comments", perm(authz.PermViewProjects), h.ListComments)
		p.POST("/:id/comments", perm(authz.PermCommentProject), audit("comment", "project"), h.Comment)
		p.POST("/:id/approve", perm(authz.PermApproveProject), audit("approve", "project"), h.Approve)
		p.GET("/:id/download-link", perm(authz.PermViewProjects), h.DownloadLink)
	}

	if h := r.Notifications; h != nil {
		n := secured.Group("/notifications", perm(authz.PermViewNotifications))
		n.GET("", h.List)
		n.PATCH("/read-all", h.MarkAllRead)
		n.PATCH("/:id/read", h.MarkRead)
	}

	if h := r.Activity; h != nil {
		secured.GET("/activity-logs", perm(authz.PermViewActivityLogs), h.List)
	}
}

func (r *Router) registerSheet(g *gin.RouterGroup, h *ScoreSheetHandler, manage authz.Permission, audit func(string, string) gin.HandlerFunc) {
	if h == nil {
		return
	}
	perm := middleware.RequirePermission
	resource := "scoresheet_" + string(h.scope)
	g.GET("", perm(authz.PermViewScoreSheet), h.Get)
	g.PUT("", perm(manage), audit("set_criteria", resource), h.Set)
	g.POST("/criteria", perm(manage), audit("add_criterion", resource), h.AddCriterion)
	g.PATCH("/criteria/:criterionId", perm(manage), audit("update_criterion", resource), h.UpdateCriterion)
	g.DELETE("/criteria/:criterionId", perm(manage), audit("delete_criterion", resource), h.DeleteCriterion)
}
