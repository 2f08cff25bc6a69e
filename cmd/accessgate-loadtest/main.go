// Command accessgate-loadtest drives registration, verification, login and
// token validation against an in-process Engine backed by the in-memory
// account store and redis (miniredis unless an address is given).
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/accessgate"
	"github.com/MrEthical07/accessgate/store/memory"
)

const loadPassword = "LoadTest123"

var codePattern = regexp.MustCompile(`<strong>(\d+)</strong>`)

// codeCatcher is a Mailer that keeps the last code sent to each address.
type codeCatcher struct {
	codes sync.Map
}

func (c *codeCatcher) Send(_ context.Context, to, _, htmlBody string) error {
	if m := codePattern.FindStringSubmatch(htmlBody); m != nil {
		c.codes.Store(to, m[1])
	}
	return nil
}

func (c *codeCatcher) await(email string, timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if v, ok := c.codes.Load(email); ok {
			return v.(string), true
		}
		time.Sleep(time.Millisecond)
	}
	return "", false
}

func main() {
	var (
		accounts    = flag.Int("accounts", 500, "number of accounts to register and verify")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 5000, "operations for the login and validate phases")
		wrongRatio  = flag.Float64("wrong-ratio", 0.05, "fraction of logins sent with a wrong password")
		memoryKB    = flag.Uint("argon2-memory", 19456, "argon2id memory in KiB")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		fmt.Fprintf(os.Stderr, "jwt secret: %v\n", err)
		os.Exit(1)
	}

	cfg := accessgate.DefaultConfig()
	cfg.JWT.PrivateKey = secret
	cfg.Password.Memory = uint32(*memoryKB)
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Verification.Enabled = false
	cfg.Metrics.EnableLatencyHistograms = true

	mailer := &codeCatcher{}
	engine, err := accessgate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(memory.New()).
		WithMailer(mailer).
		WithLogger(zerolog.Nop()).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	emails := make([]string, *accounts)
	for i := range emails {
		emails[i] = fmt.Sprintf("load-%d@example.com", i)
	}

	registerStats := runPhase(*accounts, *concurrency, func(_ *mrand.Rand, i int) error {
		res := engine.Register(ctx, emails[i], fmt.Sprintf("load%d", i), loadPassword)
		return res.Err()
	})

	verifyStats := runPhase(*accounts, *concurrency, func(_ *mrand.Rand, i int) error {
		code, ok := mailer.await(emails[i], 5*time.Second)
		if !ok {
			return fmt.Errorf("no code for %s", emails[i])
		}
		return engine.VerifyCode(ctx, emails[i], code).Err()
	})

	var (
		tokensMu sync.Mutex
		tokens   []string
	)
	loginStats := runPhase(*ops, *concurrency, func(r *mrand.Rand, _ int) error {
		pw := loadPassword
		if r.Float64() < *wrongRatio {
			pw = "Wrong12345"
		}
		res := engine.Login(ctx, emails[r.Intn(len(emails))], pw, false)
		if res.OK() {
			tokensMu.Lock()
			tokens = append(tokens, res.Value.AccessToken)
			tokensMu.Unlock()
		}
		return res.Err()
	})

	var validateStats phaseStats
	if len(tokens) > 0 {
		validateStats = runPhase(*ops, *concurrency, func(r *mrand.Rand, _ int) error {
			_, err := engine.ValidateAccess(tokens[r.Intn(len(tokens))])
			return err
		})
	}

	fmt.Println("---- results ----")
	printStats("register", registerStats)
	printStats("verify", verifyStats)
	printStats("login", loginStats)
	printStats("validate", validateStats)

	fmt.Println("---- pools ----")
	for _, s := range engine.PoolStats() {
		fmt.Printf("%s: max=%d completed=%d rejected=%d caller_runs=%d panics=%d\n",
			s.Class, s.Max, s.Completed, s.Rejected, s.CallerRuns, s.Panics)
	}
	snap := engine.MetricsSnapshot()
	fmt.Printf("revoked=%d login_unavailable=%d\n",
		snap.Counters[accessgate.MetricAccountRevoked],
		snap.Counters[accessgate.MetricLoginUnavailable])
}

// runPhase runs fn ops times across concurrency workers and records the
// latency of every call.
func runPhase(ops, concurrency int, fn func(r *mrand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := fn(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
