package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/socratic-tutor-api/internal/models"
	"github.com/noah-isme/socratic-tutor-api/pkg/jobs"
)

type auditLogWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// AuditService records audit trail entries asynchronously so request paths
// never block on the audit table.
type AuditService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditService constructs the service and its backing worker queue.
func NewAuditService(repo auditLogWriter, logger *zap.Logger, cfg jobs.QueueConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{logger: logger}
	cfg.Logger = logger
	s.queue = jobs.NewQueue("audit", func(ctx context.Context, job jobs.Job) error {
		entry, ok := job.Payload.(*models.AuditLog)
		if !ok {
			return nil
		}
		return repo.Create(ctx, entry)
	}, cfg)
	return s
}

// Start launches the audit workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the audit workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record enqueues an audit entry. Failures are logged, never surfaced.
func (s *AuditService) Record(actorID *string, action string, targetType, targetID *string, meta map[string]interface{}) {
	entry := &models.AuditLog{
		ID:         uuid.NewString(),
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
	}
	if meta != nil {
		payload, err := json.Marshal(meta)
		if err != nil {
			s.logger.Warn("failed to encode audit meta", zap.String("action", action), zap.Error(err))
		} else {
			entry.Meta = payload
		}
	}

	if err := s.queue.Enqueue(jobs.Job{ID: entry.ID, Type: action, Payload: entry}); err != nil {
		s.logger.Warn("failed to enqueue audit entry", zap.String("action", action), zap.Error(err))
	}
}
