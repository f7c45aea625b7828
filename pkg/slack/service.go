package slack

import (
	"context"
	"log/slog"
	"time"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// JobTerminalInput contains data for a job's terminal notification.
type JobTerminalInput struct {
	JobID        string
	Title        string
	Status       string // "done" or "dead_lettered"
	ArtifactPath string
	ErrorMessage string
}

// Service handles Slack notification delivery.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty — every caller treats a nil
// *Service as "notifications disabled".
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NotifyJobTerminal posts a terminal-state notification for FINALIZE_DONE
// or DEAD_LETTERED. Fail-open: errors are logged, never returned, since a
// missed notification must never fail the pipeline.
func (s *Service) NotifyJobTerminal(ctx context.Context, input JobTerminalInput) {
	if s == nil {
		return
	}

	blocks := BuildTerminalMessage(input, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, 10*time.Second); err != nil {
		s.logger.Error("failed to send Slack notification",
			"job_id", input.JobID, "status", input.Status, "error", err)
	}
}
