package httpapi

import (
	"context"
	"net/http"

	"github.com/MrEthical07/accessgate"
	"github.com/MrEthical07/accessgate/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Service is the Engine surface the HTTP layer needs.
type Service interface {
	Login(ctx context.Context, email, password string, rememberMe bool) accessgate.Result[accessgate.Tokens]
	Register(ctx context.Context, email, username, password string) accessgate.Result[accessgate.Registration]
	IssueVerificationCode(ctx context.Context, email string) accessgate.Result[accessgate.CodeDispatch]
	VerifyCode(ctx context.Context, email, code string) accessgate.Result[accessgate.Verification]
	GetAccount(ctx context.Context, id string) accessgate.Result[accessgate.AccountView]
	ValidateAccess(token string) (accessgate.AccessIdentity, error)
	Health(ctx context.Context) accessgate.HealthStatus
}

type Options struct {
	Logger zerolog.Logger
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// MaxBodyBytes bounds request bodies. Zero means 64 KiB.
	MaxBodyBytes int64
}

type Handler struct {
	svc      Service
	validate *validator.Validate
	log      zerolog.Logger
	maxBody  int64
}

func NewHandler(svc Service, opts Options) *Handler {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 << 10
	}
	return &Handler{
		svc:      svc,
		validate: newValidator(),
		log:      opts.Logger.With().Str("component", "http").Logger(),
		maxBody:  maxBody,
	}
}

// NewRouter mounts the account routes, /healthz and, when configured,
// /metrics.
func NewRouter(svc Service, opts Options) http.Handler {
	h := NewHandler(svc, opts)

	r := chi.NewRouter()
	r.Use(requestContext)
	r.Use(recoverer(h.log))
	r.Use(requestLogger(h.log))

	r.Get("/healthz", h.healthz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/users", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/sign-up", h.signUp)
		r.Post("/send-otp", h.sendOTP)
		r.Post("/verify-otp", h.verifyOTP)

		r.With(middleware.RequireAccess(svc)).Get("/me", h.me)
		r.Get("/{userId}", h.getUser)
	})

	return r
}
