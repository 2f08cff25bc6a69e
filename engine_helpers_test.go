package accessgate

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var errStoreDown = errors.New("account store down")

type memStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	failing  atomic.Bool
	saves    atomic.Int64
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[string]Account)}
}

func (s *memStore) FindByEmail(_ context.Context, email string) (Account, bool, error) {
	if s.failing.Load() {
		return Account{}, false, errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			return a, true, nil
		}
	}
	return Account{}, false, nil
}

func (s *memStore) FindByID(_ context.Context, id string) (Account, bool, error) {
	if s.failing.Load() {
		return Account{}, false, errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	return a, ok, nil
}

func (s *memStore) Save(_ context.Context, account Account) error {
	if s.failing.Load() {
		return errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.accounts {
		if id != account.ID && (a.Email == account.Email || a.Username == account.Username) {
			return fmt.Errorf("%w: %s", ErrAccountExists, account.Email)
		}
	}
	s.accounts[account.ID] = account
	s.saves.Add(1)
	return nil
}

func (s *memStore) Count(context.Context) (int64, error) {
	if s.failing.Load() {
		return 0, errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.accounts)), nil
}

func (s *memStore) status(t *testing.T, id string) Status {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		t.Fatalf("account %s not found", id)
	}
	return a.Status
}

type sentMail struct {
	to, subject, body string
}

type captureMailer struct {
	sent    chan sentMail
	failing atomic.Bool
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{sent: make(chan sentMail, 32)}
}

func (m *captureMailer) Send(_ context.Context, to, subject, body string) error {
	if m.failing.Load() {
		return errors.New("smtp down")
	}
	m.sent <- sentMail{to: to, subject: subject, body: body}
	return nil
}

var codePattern = regexp.MustCompile(`<strong>(\d+)</strong>`)

func (m *captureMailer) nextCode(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-m.sent:
		match := codePattern.FindStringSubmatch(msg.body)
		if match == nil {
			t.Fatalf("no code in mail body %q", msg.body)
		}
		return match[1]
	case <-time.After(2 * time.Second):
		t.Fatal("no verification mail sent")
		return ""
	}
}

// constantCode feeds the same 8-byte draw forever, so every issued code is
// the same.
type constantCode uint64

func (c constantCode) Read(p []byte) (int, error) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(c))
	for i := range p {
		p[i] = buf[i%8]
	}
	return len(p), nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 256
	cfg.Audit.DropIfFull = true
	for name, p := range cfg.Resilience {
		p.MaxAttempts = 2
		p.InitialBackoff = time.Millisecond
		p.MaxBackoff = 2 * time.Millisecond
		p.AttemptTimeout = 200 * time.Millisecond
		cfg.Resilience[name] = p
	}
	return cfg
}

type testEnv struct {
	engine *Engine
	store  *memStore
	mailer *captureMailer
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	audit  *ChannelSink
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func newTestEnv(t testing.TB, cfg Config) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	env := &testEnv{
		store:  newMemStore(),
		mailer: newCaptureMailer(),
		mr:     mr,
		rdb:    rdb,
		audit:  NewChannelSink(256),
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(env.store).
		WithMailer(env.mailer).
		WithAuditSink(env.audit).
		WithCodeSource(constantCode(42517)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// seed stores an account with a fresh argon2id hash of password.
func (env *testEnv) seed(t testing.TB, id, email, password string, status Status) Account {
	t.Helper()

	hash, err := env.engine.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	now := time.Now().UTC()
	a := Account{
		ID:           id,
		Username:     "user" + id,
		Email:        email,
		PasswordHash: hash,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := env.store.Save(context.Background(), a); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return a
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

var errInjected = errors.New("injected redis fault")

// failOnce fails the first command or transaction that carries the named
// command, before it reaches the server.
type failOnce struct {
	command string
	tripped atomic.Bool
}

func (h *failOnce) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *failOnce) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if h.trip([]redis.Cmder{cmd}) {
			return errInjected
		}
		return next(ctx, cmd)
	}
}

func (h *failOnce) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if h.trip(cmds) {
			return errInjected
		}
		return next(ctx, cmds)
	}
}

func (h *failOnce) trip(cmds []redis.Cmder) bool {
	for _, cmd := range cmds {
		if strings.EqualFold(cmd.Name(), h.command) {
			return h.tripped.CompareAndSwap(false, true)
		}
	}
	return false
}
