package queue

import (
	"context"
	"strings"

	"github.com/hibiken/asynq"

	"webchat-backend/internal/config"
	"webchat-backend/internal/logger"
	"webchat-backend/internal/session"
)

// redisConnOpt accepts both host:port and redis:// URL forms for
// REDIS_URL, matching config.NewRedisClient.
func redisConnOpt(cfg *config.Config) asynq.RedisConnOpt {
	if strings.HasPrefix(cfg.RedisURL, "redis://") || strings.HasPrefix(cfg.RedisURL, "rediss://") {
		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err == nil {
			return opt
		}
		logger.Warn("unparseable redis url, treating as host:port", "error", err)
	}
	return asynq.RedisClientOpt{Addr: cfg.RedisURL, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

// Server is the embedded background worker. It runs inside the API
// process because sessions live in process memory; a separate worker
// binary could not reach them.
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

func NewServer(cfg *config.Config, sessions *session.Manager) *Server {
	srv := asynq.NewServer(
		redisConnOpt(cfg),
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := NewTaskProcessor(sessions)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskIngestURL, processor.HandleIngestURL)

	return &Server{srv: srv, mux: mux}
}

// Start runs the worker loop in the background.
func (s *Server) Start() error {
	return s.srv.Start(s.mux)
}

// Shutdown waits for in-flight tasks before stopping.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
}

// Client enqueues background jobs.
type Client struct {
	inner *asynq.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{inner: asynq.NewClient(redisConnOpt(cfg))}
}

// EnqueueIngest schedules a background ingest and returns the job ID.
func (c *Client) EnqueueIngest(sessionID, url string, merge, followLinks bool) (string, error) {
	task, err := NewIngestTask(sessionID, url, merge, followLinks)
	if err != nil {
		return "", err
	}
	info, err := c.inner.Enqueue(task)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// Close releases the enqueue connection.
func (c *Client) Close() error {
	return c.inner.Close()
}
