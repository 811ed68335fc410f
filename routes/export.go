package routes

import (
	"github.com/gin-gonic/gin"

	"webchat-backend/internal/session"
	"webchat-backend/services"
	"webchat-backend/utils"
)

// SetupExportRoutes registers the conversation download endpoint.
func SetupExportRoutes(router *gin.Engine, sessions *session.Manager, exporter *services.ExportService) {
	router.GET("/sessions/:id/history/export", func(c *gin.Context) {
		s := sessions.Get(c.Param("id"))
		if s == nil {
			utils.RespondWithNotFound(c, "Session not found")
			return
		}

		format := c.DefaultQuery("format", "json")
		if format != "json" && format != "xlsx" {
			utils.RespondWithBadRequest(c, "Unsupported export format", gin.H{"format": format})
			return
		}

		data := exporter.BuildExport(s.Stats(), s.History(), format)
		if err := exporter.StreamExport(c, data, format); err != nil {
			utils.RespondWithInternalError(c, "Export failed", gin.H{"error": err.Error()})
		}
	})
}
