package security

import "time"

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Report is the effective security posture of one Engine.
type Report struct {
	ProductionMode   bool
	SigningAlgorithm string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	RememberMeTTL    time.Duration
	Argon2           PasswordReport
	HashUpgrade      bool
	LockoutActive    bool
	RevokeThreshold  int64
	LockoutWindow    time.Duration
	CodeTTL          time.Duration
	CodeEntropyBits  float64
	ThrottleActive   bool
	AuditActive      bool
	// Warnings lists settings weaker than recommended for production.
	Warnings         []string
}

type ReportInput struct {
	ProductionMode     bool
	SigningAlgorithm   string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	RememberMeTTL      time.Duration
	Password           PasswordReport
	UpgradeOnLogin     bool
	RevokeThreshold    int64
	LockoutWindow      time.Duration
	CodeTTL            time.Duration
	CodeDigits         int
	ThrottleEnabled    bool
	ThrottleMaxRequest int
	AuditEnabled       bool
}

func BuildReport(input ReportInput) Report {
	r := Report{
		ProductionMode:   input.ProductionMode,
		SigningAlgorithm: input.SigningAlgorithm,
		AccessTTL:        input.AccessTTL,
		RefreshTTL:       input.RefreshTTL,
		RememberMeTTL:    input.RememberMeTTL,
		Argon2:           input.Password,
		HashUpgrade:      input.UpgradeOnLogin,
		LockoutActive:    input.RevokeThreshold > 0 && input.LockoutWindow > 0,
		RevokeThreshold:  input.RevokeThreshold,
		LockoutWindow:    input.LockoutWindow,
		CodeTTL:          input.CodeTTL,
		CodeEntropyBits:  float64(input.CodeDigits) * 3.321928,
		ThrottleActive:   input.ThrottleEnabled && input.ThrottleMaxRequest > 0,
		AuditActive:      input.AuditEnabled,
	}

	if input.Password.Memory < 64*1024 {
		r.Warnings = append(r.Warnings, "argon2 memory below 64 MiB")
	}
	if input.AccessTTL > time.Hour {
		r.Warnings = append(r.Warnings, "access token lifetime above 1h")
	}
	if input.CodeTTL > 30*time.Minute {
		r.Warnings = append(r.Warnings, "verification code lifetime above 30m")
	}
	if !r.ThrottleActive {
		r.Warnings = append(r.Warnings, "verification request throttle disabled")
	}
	if input.ProductionMode && !input.AuditEnabled {
		r.Warnings = append(r.Warnings, "audit disabled in production mode")
	}
	return r
}
