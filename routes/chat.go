package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"webchat-backend/internal/queue"
	"webchat-backend/internal/session"
	"webchat-backend/internal/telemetry"
	"webchat-backend/models"
	"webchat-backend/utils"
)

// recordProviderFailure counts backend failures by provider and kind.
func recordProviderFailure(c *gin.Context, metrics *telemetry.Metrics, err error) {
	var provErr *models.ProviderError
	if errors.As(err, &provErr) {
		metrics.RecordProviderFailure(c.Request.Context(), provErr.Provider, string(provErr.Kind))
	}
}

type ingestRequest struct {
	URL         string `json:"url" binding:"required"`
	Merge       bool   `json:"merge"`
	FollowLinks bool   `json:"follow_links"`
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

// SetupChatRoutes registers the ingest and ask endpoints. queueClient
// may be nil when the background worker is disabled; async ingest then
// responds 503.
func SetupChatRoutes(router *gin.Engine, sessions *session.Manager, queueClient *queue.Client, metrics *telemetry.Metrics) {
	grp := router.Group("/sessions")

	grp.POST("/:id/ingest", func(c *gin.Context) {
		s := sessions.Get(c.Param("id"))
		if s == nil {
			utils.RespondWithNotFound(c, "Session not found")
			return
		}

		var req ingestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		start := time.Now()
		summary, err := s.Ingest(c.Request.Context(), req.URL, req.Merge, req.FollowLinks)
		if err != nil {
			recordProviderFailure(c, metrics, err)
			utils.RespondWithPipelineError(c, err)
			return
		}

		metrics.RecordIngest(c.Request.Context(), s.Settings().EmbedderName(), summary.NumChunks, time.Since(start).Seconds())
		c.JSON(http.StatusOK, summary)
	})

	grp.POST("/:id/ingest/async", func(c *gin.Context) {
		s := sessions.Get(c.Param("id"))
		if s == nil {
			utils.RespondWithNotFound(c, "Session not found")
			return
		}

		var req ingestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		if queueClient == nil {
			utils.RespondWithError(c, http.StatusServiceUnavailable,
				"worker_disabled", "Background ingestion is not enabled", nil)
			return
		}

		jobID, err := queueClient.EnqueueIngest(s.ID, req.URL, req.Merge, req.FollowLinks)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to enqueue ingest job", gin.H{"error": err.Error()})
			return
		}

		// Progress is observable through the stats endpoint.
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "session_id": s.ID})
	})

	grp.POST("/:id/ask", func(c *gin.Context) {
		s := sessions.Get(c.Param("id"))
		if s == nil {
			utils.RespondWithNotFound(c, "Session not found")
			return
		}

		var req askRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		start := time.Now()
		result, err := s.Ask(c.Request.Context(), req.Question)
		if err != nil {
			recordProviderFailure(c, metrics, err)
			utils.RespondWithPipelineError(c, err)
			return
		}

		metrics.RecordAsk(c.Request.Context(), s.Settings().Provider, time.Since(start).Seconds())
		c.JSON(http.StatusOK, result)
	})
}
