package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/charlesng35/youthtracker/pkg/logger"
)

// recordAudit persists entry. Audit failures never fail the calling workflow.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	if err := audit.Log(ctx, entry); err != nil {
		logger.WithModule("audit").Warn("audit entry not recorded",
			zap.String("action", entry.Action),
			zap.String("resource", entry.Resource),
			zap.Error(err),
		)
	}
}

// actorEntry builds a successful audit entry attributed to actor.
func actorEntry(actor Actor, action, resource string, metadata map[string]any) AuditEntry {
	return AuditEntry{
		AdminID:   actor.auditID(),
		Username:  actor.Username,
		Action:    action,
		Resource:  resource,
		Result:    "success",
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
		Metadata:  metadata,
	}
}
