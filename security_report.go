package accessgate

import (
	"github.com/MrEthical07/accessgate/internal/security"
)

// SecurityReport summarizes the effective hardening settings.
type SecurityReport = security.Report

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	return security.BuildReport(security.ReportInput{
		ProductionMode:   e.config.Security.ProductionMode,
		SigningAlgorithm: e.config.JWT.SigningMethod,
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.JWT.RefreshTTL,
		RememberMeTTL:    e.config.JWT.RememberMeTTL,
		Password: security.PasswordReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		UpgradeOnLogin:     e.config.Password.UpgradeOnLogin,
		RevokeThreshold:    e.config.Lockout.RevokeThreshold,
		LockoutWindow:      e.config.Lockout.Window,
		CodeTTL:            e.config.OTP.TTL,
		CodeDigits:         e.config.OTP.Digits,
		ThrottleEnabled:    e.config.Verification.Enabled,
		ThrottleMaxRequest: e.config.Verification.MaxRequests,
		AuditEnabled:       e.config.Audit.Enabled,
	})
}
