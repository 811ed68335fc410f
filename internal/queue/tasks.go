package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"webchat-backend/internal/logger"
	"webchat-backend/internal/session"
	"webchat-backend/models"
)

const TaskIngestURL = "ingest:url"

// IngestPayload is the job body for background ingestion.
type IngestPayload struct {
	SessionID   string `json:"session_id"`
	URL         string `json:"url"`
	Merge       bool   `json:"merge"`
	FollowLinks bool   `json:"follow_links"`
}

// NewIngestTask builds the background ingest job. Crawls of large
// sites can run long, so the timeout is generous.
func NewIngestTask(sessionID, url string, merge, followLinks bool) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		SessionID:   sessionID,
		URL:         url,
		Merge:       merge,
		FollowLinks: followLinks,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestURL,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("default"),
	), nil
}

// TaskProcessor executes queued jobs against the live session set.
type TaskProcessor struct {
	sessions *session.Manager
}

func NewTaskProcessor(sessions *session.Manager) *TaskProcessor {
	return &TaskProcessor{sessions: sessions}
}

// HandleIngestURL runs one background ingest. Failures that retrying
// cannot fix (bad payload, unknown session, invalid settings, auth)
// skip the retry loop.
func (p *TaskProcessor) HandleIngestURL(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	s := p.sessions.Get(payload.SessionID)
	if s == nil {
		// The session may have expired while the job was queued.
		logger.Warn("ingest job for unknown session", "session_id", payload.SessionID)
		return asynq.SkipRetry
	}

	summary, err := s.Ingest(ctx, payload.URL, payload.Merge, payload.FollowLinks)
	if err != nil {
		logger.Error("background ingest failed", "session_id", payload.SessionID, "url", payload.URL, "error", err)
		if !retryableIngestError(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	logger.Info("background ingest completed",
		"session_id", payload.SessionID,
		"url", summary.SourceURL,
		"chunks", summary.NumChunks,
	)
	return nil
}

func retryableIngestError(err error) bool {
	var cfgErr *models.ConfigError
	if errors.As(err, &cfgErr) {
		return false
	}
	var provErr *models.ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable()
	}
	// Fetch and transport errors may be transient.
	return true
}
