package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/cmsconsole/internal/handlers"
)

func registerAuditRoutes(api *gin.RouterGroup, handler *handlers.AuditHandler) {
	group := api.Group("/audit-logs")
	{
		group.GET("", handler.List)
		group.GET("/export", handler.Export)
		group.GET("/:id", handler.Get)
		group.POST("", handler.Record)
	}
}
