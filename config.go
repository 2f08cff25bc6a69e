package accessgate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/accessgate/internal/resilience"
	"github.com/MrEthical07/accessgate/internal/workers"
)

// Config is the complete Engine configuration. Build clones it, so later
// changes by the caller have no effect.
type Config struct {
	JWT          JWTConfig                   `yaml:"jwt"`
	Password     PasswordConfig              `yaml:"password"`
	Lockout      LockoutConfig               `yaml:"lockout"`
	OTP          OTPConfig                   `yaml:"otp"`
	Verification VerificationThrottleConfig  `yaml:"verification"`
	Pools        map[string]PoolConfig       `yaml:"pools"`
	Resilience   map[string]ResiliencePolicy `yaml:"resilience"`
	Audit        AuditConfig                 `yaml:"audit"`
	Metrics      MetricsConfig               `yaml:"metrics"`
	Security     SecurityConfig              `yaml:"security"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token signing. RememberMeTTL replaces RefreshTTL for
// logins that asked to be remembered.
type JWTConfig struct {
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
	RememberMeTTL time.Duration `yaml:"remember_me_ttl"`
	SigningMethod string        `yaml:"signing_method"` // "hs256" (default) or "ed25519"
	PrivateKey    []byte        `yaml:"-"`
	PublicKey     []byte        `yaml:"-"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	Leeway        time.Duration `yaml:"leeway"`
	KeyID         string        `yaml:"key_id"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters. UpgradeOnLogin rehashes legacy
// or weaker hashes after a successful password check.
type PasswordConfig struct {
	Memory           uint32 `yaml:"memory"` // in KB
	Time             uint32 `yaml:"time"`
	Parallelism      uint8  `yaml:"parallelism"`
	SaltLength       uint32 `yaml:"salt_length"`
	KeyLength        uint32 `yaml:"key_length"`
	MaxPasswordBytes int    `yaml:"max_password_bytes"`
	UpgradeOnLogin   bool   `yaml:"upgrade_on_login"`
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls failed-attempt revocation. An account is revoked
// once its failure count exceeds RevokeThreshold inside Window.
type LockoutConfig struct {
	RevokeThreshold int64         `yaml:"revoke_threshold"`
	Window          time.Duration `yaml:"window"`
}

/*
====================================
OTP CONFIG
====================================
*/

type OTPConfig struct {
	TTL    time.Duration `yaml:"ttl"`
	Digits int           `yaml:"digits"`
	// Subject is the verification mail subject line.
	Subject string `yaml:"subject"`
}

// VerificationThrottleConfig limits how often codes may be requested per
// email and, optionally, per client IP.
type VerificationThrottleConfig struct {
	Enabled          bool          `yaml:"enabled"`
	EnableIPThrottle bool          `yaml:"enable_ip_throttle"`
	Window           time.Duration `yaml:"window"`
	MaxRequests      int           `yaml:"max_requests"`
}

/*
====================================
POOL CONFIG
====================================
*/

// PoolConfig sizes one worker pool class. Overload is "caller-runs" or
// "reject".
type PoolConfig struct {
	Core       int           `yaml:"core"`
	Max        int           `yaml:"max"`
	Queue      int           `yaml:"queue"`
	Overload   string        `yaml:"overload"`
	IdleExpiry time.Duration `yaml:"idle_expiry"`
}

/*
====================================
RESILIENCE CONFIG
====================================
*/

// ResiliencePolicy configures retry and circuit breaking for one dependency
// class: database, cache or mail.
type ResiliencePolicy struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	InitialBackoff   time.Duration `yaml:"initial_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	AttemptTimeout   time.Duration `yaml:"attempt_timeout"`
	FailureRatio     float64       `yaml:"failure_ratio"`
	MinRequests      uint32        `yaml:"min_requests"`
	Window           time.Duration `yaml:"window"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	HalfOpenRequests uint32        `yaml:"half_open_requests"`
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
	// DrainTimeout caps how long Engine.Close waits on a slow sink.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds process-wide hardening switches.
type SecurityConfig struct {
	ProductionMode bool `yaml:"production_mode"`
	// IDNode is the snowflake node number of this process. Every replica
	// needs a distinct value.
	IDNode int64 `yaml:"id_node"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the stock configuration. JWT key material still has
// to be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	pools := make(map[string]PoolConfig)
	for class, pc := range workers.DefaultPools() {
		pools[string(class)] = PoolConfig{
			Core:       pc.Core,
			Max:        pc.Max,
			Queue:      pc.Queue,
			Overload:   pc.Overload.String(),
			IdleExpiry: pc.IdleExpiry,
		}
	}

	policies := make(map[string]ResiliencePolicy)
	for name, p := range resilience.DefaultPolicies() {
		policies[name] = ResiliencePolicy{
			MaxAttempts:      p.MaxAttempts,
			InitialBackoff:   p.InitialBackoff,
			MaxBackoff:       p.MaxBackoff,
			AttemptTimeout:   p.AttemptTimeout,
			FailureRatio:     p.FailureRatio,
			MinRequests:      p.MinRequests,
			Window:           p.Window,
			OpenTimeout:      p.OpenTimeout,
			HalfOpenRequests: p.HalfOpenRequests,
		}
	}

	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    12 * time.Hour,
			RememberMeTTL: 5 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "accessgate",
		},
		Password: PasswordConfig{
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: 1024,
			UpgradeOnLogin:   true,
		},
		Lockout: LockoutConfig{
			RevokeThreshold: 5,
			Window:          24 * time.Hour,
		},
		OTP: OTPConfig{
			TTL:     600 * time.Second,
			Digits:  6,
			Subject: "Verify Your Account - OTP",
		},
		Verification: VerificationThrottleConfig{
			Enabled:          true,
			EnableIPThrottle: true,
			Window:           15 * time.Minute,
			MaxRequests:      5,
		},
		Pools:      pools,
		Resilience: policies,
		Audit: AuditConfig{
			Enabled:      false,
			BufferSize:   1024,
			DropIfFull:   true,
			DrainTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode: false,
			IDNode:         1,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.Pools != nil {
		out.Pools = make(map[string]PoolConfig, len(cfg.Pools))
		for k, v := range cfg.Pools {
			out.Pools[k] = v
		}
	}
	if cfg.Resilience != nil {
		out.Resilience = make(map[string]ResiliencePolicy, len(cfg.Resilience))
		for k, v := range cfg.Resilience {
			out.Resilience[k] = v
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
CONVERSION
====================================
*/

// WorkerPools converts Pools for workers.NewManager, for callers that own
// the pool lifecycle and inject the manager with WithPoolManager.
func (c *Config) WorkerPools() (map[workers.Class]workers.PoolConfig, error) {
	return c.poolConfigs()
}

func (c *Config) poolConfigs() (map[workers.Class]workers.PoolConfig, error) {
	out := make(map[workers.Class]workers.PoolConfig, len(c.Pools))
	for name, pc := range c.Pools {
		overload, err := workers.ParseOverload(pc.Overload)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", name, err)
		}
		out[workers.Class(name)] = workers.PoolConfig{
			Core:       pc.Core,
			Max:        pc.Max,
			Queue:      pc.Queue,
			Overload:   overload,
			IdleExpiry: pc.IdleExpiry,
		}
	}
	return out, nil
}

func (c *Config) policies() map[string]resilience.Policy {
	out := make(map[string]resilience.Policy, len(c.Resilience))
	for name, p := range c.Resilience {
		out[name] = resilience.Policy{
			Name:             name,
			MaxAttempts:      p.MaxAttempts,
			InitialBackoff:   p.InitialBackoff,
			MaxBackoff:       p.MaxBackoff,
			AttemptTimeout:   p.AttemptTimeout,
			FailureRatio:     p.FailureRatio,
			MinRequests:      p.MinRequests,
			Window:           p.Window,
			OpenTimeout:      p.OpenTimeout,
			HalfOpenRequests: p.HalfOpenRequests,
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RememberMeTTL != 0 && c.JWT.RememberMeTTL < c.JWT.RefreshTTL {
		return errors.New("JWT RememberMeTTL must be >= RefreshTTL")
	}
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time == 0 || c.Password.Parallelism == 0 {
		return errors.New("Password Time and Parallelism must be > 0")
	}
	if c.Password.SaltLength < 16 || c.Password.KeyLength < 16 {
		return errors.New("Password SaltLength and KeyLength must be >= 16")
	}
	if c.Password.MaxPasswordBytes != 0 && c.Password.MaxPasswordBytes < 8 {
		return errors.New("Password MaxPasswordBytes must be 0 (default) or >= 8")
	}

	// Lockout
	if c.Lockout.RevokeThreshold <= 0 {
		return errors.New("Lockout RevokeThreshold must be > 0")
	}
	if c.Lockout.Window <= 0 {
		return errors.New("Lockout Window must be > 0")
	}

	// OTP
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 4 and 10")
	}
	if c.Verification.Enabled {
		if c.Verification.Window <= 0 || c.Verification.MaxRequests <= 0 {
			return errors.New("Verification throttle requires Window and MaxRequests > 0")
		}
	}

	// Pools
	pools, err := c.poolConfigs()
	if err != nil {
		return err
	}
	for class, pc := range pools {
		if err := pc.Validate(); err != nil {
			return fmt.Errorf("pool %s: %w", class, err)
		}
	}

	// Resilience
	for _, name := range []string{resilience.PolicyDatabase, resilience.PolicyCache, resilience.PolicyMail} {
		if _, ok := c.Resilience[name]; !ok {
			return fmt.Errorf("resilience policy %q is required", name)
		}
	}
	for _, p := range c.policies() {
		if err := p.Validate(); err != nil {
			return err
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Audit.DrainTimeout < 0 {
		return errors.New("Audit DrainTimeout must be >= 0")
	}

	// Security
	if c.Security.IDNode < 0 || c.Security.IDNode > 1023 {
		return errors.New("Security IDNode must be in [0, 1023]")
	}
	if c.Security.ProductionMode && c.JWT.Leeway > time.Minute {
		return errors.New("JWT Leeway must be <= 1m in production mode")
	}

	return nil
}
