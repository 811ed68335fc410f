package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"webchat-backend/internal/session"
	"webchat-backend/models"
	"webchat-backend/utils"
)

// SetupSessionRoutes registers session lifecycle endpoints.
func SetupSessionRoutes(router *gin.Engine, sessions *session.Manager) {
	grp := router.Group("/sessions")

	// Create a session. Omitted settings fall back to server defaults;
	// pointer binding keeps an explicit zero distinct from an omission.
	grp.POST("", func(c *gin.Context) {
		var patch models.SessionConfigPatch
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&patch); err != nil {
				utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
				return
			}
		}

		s, err := sessions.Create(&patch)
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"session_id": s.ID,
			"state":      s.State(),
			"settings":   redactSettings(s.Settings()),
		})
	})

	grp.DELETE("/:id", func(c *gin.Context) {
		if !sessions.Delete(c.Param("id")) {
			utils.RespondWithNotFound(c, "Session not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	})

	// Replace session settings. Changing chunk parameters drops the
	// index back to empty.
	grp.PUT("/:id/config", func(c *gin.Context) {
		s := sessions.Get(c.Param("id"))
		if s == nil {
			utils.RespondWithNotFound(c, "Session not found")
			return
		}

		var settings models.SessionConfig
		if err := c.ShouldBindJSON(&settings); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		if err := s.Configure(settings); err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"state":    s.State(),
			"settings": redactSettings(s.Settings()),
		})
	})

	grp.GET("/:id/config", func(c *gin.Context) {
		s := sessions.Get(c.Param("id"))
		if s == nil {
			utils.RespondWithNotFound(c, "Session not found")
			return
		}
		c.JSON(http.StatusOK, redactSettings(s.Settings()))
	})

	grp.POST("/:id/reset", func(c *gin.Context) {
		s := sessions.Get(c.Param("id"))
		if s == nil {
			utils.RespondWithNotFound(c, "Session not found")
			return
		}
		s.Reset()
		c.JSON(http.StatusOK, gin.H{"state": s.State()})
	})

	grp.GET("/:id/stats", func(c *gin.Context) {
		s := sessions.Get(c.Param("id"))
		if s == nil {
			utils.RespondWithNotFound(c, "Session not found")
			return
		}
		c.JSON(http.StatusOK, s.Stats())
	})

	grp.GET("/:id/history", func(c *gin.Context) {
		s := sessions.Get(c.Param("id"))
		if s == nil {
			utils.RespondWithNotFound(c, "Session not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"turns": s.History()})
	})
}

// Settings echoes never include the raw API key.
func redactSettings(settings models.SessionConfig) models.SessionConfig {
	if settings.APIKey != "" {
		settings.APIKey = "***"
	}
	return settings
}
