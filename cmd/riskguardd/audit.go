package main

import (
	"go.uber.org/zap"

	"github.com/kestrel-trading/riskguard/internal/appconfig"
	"github.com/kestrel-trading/riskguard/internal/audit"
)

// NewAuditStore opens the supplemental enforcement-history store (spec
// §6.2 get_enforcement_history) when a DSN is configured. Returning a nil
// *audit.Store, nil error is deliberate: the audit log is supplemental,
// never required for the daemon to run (spec §1).
func NewAuditStore(cfg *appconfig.Config, logger *zap.Logger) (*audit.Store, error) {
	if cfg.AuditDSN == "" {
		return nil, nil
	}
	return audit.Open(cfg.AuditDSN, logger)
}
