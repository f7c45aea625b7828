// Package cleanup provides the data retention background loop.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/docwriter/pkg/config"
	"github.com/codeready-toolchain/docwriter/pkg/statusstore"
)

// Service periodically enforces retention policies:
//   - Prunes timeline events past their TTL
//   - Reaps document-index rows for terminal jobs past the retention window
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config *config.RetentionConfig
	store  *statusstore.Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, store *statusstore.Store) *Service {
	return &Service{config: cfg, store: store}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"document_retention_days", s.config.DocumentRetentionDays,
		"timeline_event_ttl", s.config.TimelineEventTTL,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.pruneTimelineEvents(ctx)
	s.pruneDocuments(ctx)
}

func (s *Service) pruneTimelineEvents(ctx context.Context) {
	count, err := s.store.PruneTimelineEvents(ctx, s.config.TimelineEventTTL)
	if err != nil {
		slog.Error("retention: timeline event prune failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: pruned timeline events", "count", count)
	}
}

func (s *Service) pruneDocuments(ctx context.Context) {
	count, err := s.store.PruneDocuments(ctx, s.config.DocumentRetentionDays)
	if err != nil {
		slog.Error("retention: document index prune failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: reaped document index rows", "count", count)
	}
}
