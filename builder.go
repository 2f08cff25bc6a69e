package accessgate

import (
	"errors"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/accessgate/internal/audit"
	"github.com/MrEthical07/accessgate/internal/ids"
	"github.com/MrEthical07/accessgate/internal/limiters"
	"github.com/MrEthical07/accessgate/internal/resilience"
	"github.com/MrEthical07/accessgate/internal/stores"
	"github.com/MrEthical07/accessgate/internal/workers"
	"github.com/MrEthical07/accessgate/jwt"
	"github.com/MrEthical07/accessgate/password"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an Engine. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  AccountStore
	mailer    Mailer
	pools     *workers.Manager
	auditSink AuditSink
	log       zerolog.Logger
	codeRand  io.Reader
	now       func() time.Time

	built bool
}

// New starts a Builder with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		log:    zerolog.Nop(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the cache holding failure counters, codes and throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithPoolManager injects worker pools owned by the caller. Without it the
// Engine builds its own pools from Config.Pools and shuts them down in Close.
func (b *Builder) WithPoolManager(m *workers.Manager) *Builder {
	b.pools = m
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	return b
}

// WithCodeSource replaces crypto/rand for verification codes. Tests use it to
// make codes predictable.
func (b *Builder) WithCodeSource(r io.Reader) *Builder {
	b.codeRand = r
	return b
}

// WithClock overrides time.Now for timestamps and expiries.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Password.MaxPasswordBytes == 0 {
		cfg.Password.MaxPasswordBytes = password.DefaultMaxPasswordBytes
	}

	log := b.log.With().Str("component", "accessgate").Logger()
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- RESILIENCE --------
	registry, err := resilience.NewRegistry(cfg.policies(), b.log)
	if err != nil {
		return nil, err
	}
	dbGuard, err := registry.Guard(resilience.PolicyDatabase)
	if err != nil {
		return nil, err
	}
	cacheGuard, err := registry.Guard(resilience.PolicyCache)
	if err != nil {
		return nil, err
	}
	mailGuard, err := registry.Guard(resilience.PolicyMail)
	if err != nil {
		return nil, err
	}

	// -------- POOLS --------
	pools := b.pools
	ownsPools := false
	if pools == nil {
		poolCfg, err := cfg.poolConfigs()
		if err != nil {
			return nil, err
		}
		pools, err = workers.NewManager(poolCfg, b.log)
		if err != nil {
			return nil, err
		}
		ownsPools = true
	}

	// -------- CREDENTIALS --------
	hasher, err := password.NewHasher(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		RememberMeTTL: cfg.JWT.RememberMeTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, err
	}

	idGen, err := ids.NewGenerator(cfg.Security.IDNode)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cloneConfig(cfg),
		log:        log,
		now:        now,
		redis:      b.redis,
		pools:      pools,
		ownsPools:  ownsPools,
		guards:     registry,
		cacheGuard: cacheGuard,
		mailGuard:  mailGuard,
		gateway: &gateway{
			store: b.accounts,
			guard: dbGuard,
			now:   now,
		},
		attempts: limiters.NewAttemptCounter(b.redis, cfg.Lockout.Window),
		throttle: limiters.NewVerificationThrottle(b.redis, limiters.VerificationThrottleConfig{
			Enabled:          cfg.Verification.Enabled,
			EnableIPThrottle: cfg.Verification.EnableIPThrottle,
			Window:           cfg.Verification.Window,
			MaxRequests:      cfg.Verification.MaxRequests,
		}),
		codes: stores.NewCodeStore(b.redis, stores.CodeStoreConfig{
			TTL:    cfg.OTP.TTL,
			Digits: cfg.OTP.Digits,
			Rand:   b.codeRand,
		}),
		mailer:  b.mailer,
		hasher:  hasher,
		tokens:  jm,
		ids:     idGen,
		metrics: NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:      cfg.Audit.Enabled,
			BufferSize:   cfg.Audit.BufferSize,
			DropIfFull:   cfg.Audit.DropIfFull,
			SinkTimeout:  5 * time.Second,
			DrainTimeout: cfg.Audit.DrainTimeout,
		}, b.auditSink, b.log),
	}

	b.built = true

	return engine, nil
}
