package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/botnet/internal/metrics"
	"github.com/sakif/botnet/internal/model"
	"github.com/sakif/botnet/internal/repository"
)

// AuditService checks the follow graph for cross-reference damage. It only
// reports; nothing is repaired.
type AuditService struct {
	graph  repository.RelationshipRepository
	logger *slog.Logger
}

func NewAuditService(graph repository.RelationshipRepository, logger *slog.Logger) *AuditService {
	return &AuditService{graph: graph, logger: logger}
}

// AuditGraph scans the whole graph. It runs without the per-operation
// timeout: a full scan of a large store takes as long as it takes, bounded
// only by ctx.
func (s *AuditService) AuditGraph(ctx context.Context) (violations []model.Violation, err error) {
	defer observe("audit_graph", time.Now(), &err)

	violations, err = s.graph.Audit(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit graph: %w", err)
	}

	for _, v := range violations {
		s.logger.Error("graph violation",
			slog.String("kind", v.Kind),
			slog.String("profileID", v.ProfileID),
			slog.String("otherID", v.OtherID),
			slog.String("detail", v.Detail),
		)
	}
	metrics.AuditViolations.Set(float64(len(violations)))

	if len(violations) == 0 {
		s.logger.Info("graph audit clean")
	}
	return violations, nil
}
