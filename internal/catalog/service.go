package catalog

import (
	"context"
	"log/slog"

	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes the lifecycle gate and deletion guard.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}
