package handlers

import "github.com/gin-gonic/gin"

// Register mounts every herald route on r. Authentication is applied by the
// caller.
func Register(r gin.IRoutes, content *ContentHandler, control *ControlHandler, audit *AuditHandler, analytics *AnalyticsHandler) {
	r.POST("/content", content.Create)
	r.GET("/content", content.List)
	r.GET("/content/:id", content.Get)
	r.PATCH("/content/:id", content.Edit)
	r.GET("/content/:id/history", content.History)

	r.POST("/content/:id/submit", content.Transition(content.submit))
	r.POST("/content/:id/resubmit", content.Transition(content.resubmit))
	r.POST("/content/:id/approve", content.Transition(content.approve))
	r.POST("/content/:id/reject", content.Transition(content.reject))
	r.POST("/content/:id/request-changes", content.Transition(content.requestChanges))
	r.POST("/content/:id/schedule", content.Transition(content.schedule))
	r.POST("/content/:id/publish", content.Transition(content.publish))
	r.POST("/content/:id/archive", content.Transition(content.archive))

	r.GET("/control/status", control.Status)
	r.POST("/control/pause", control.Apply(control.service.Pause))
	r.POST("/control/resume", control.Apply(control.service.Resume))
	r.POST("/control/manual", control.Apply(control.service.SetManual))
	r.POST("/control/normal", control.Apply(control.service.SetNormal))
	r.POST("/control/crisis", control.Apply(control.service.SetCrisis))

	r.GET("/audit", audit.Query)

	r.GET("/analytics/workflow", analytics.Workflow)
}
