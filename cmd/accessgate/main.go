// Command accessgate runs the account-access gateway: the HTTP API, a gRPC
// health endpoint, the optional mail queue worker and the pool monitor.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/MrEthical07/accessgate"
	"github.com/MrEthical07/accessgate/audit/kafkasink"
	"github.com/MrEthical07/accessgate/health"
	"github.com/MrEthical07/accessgate/internal/workers"
	"github.com/MrEthical07/accessgate/logging"
	"github.com/MrEthical07/accessgate/mail/logmail"
	"github.com/MrEthical07/accessgate/mail/mailqueue"
	"github.com/MrEthical07/accessgate/mail/resendmail"
	"github.com/MrEthical07/accessgate/mail/smtpmail"
	promexport "github.com/MrEthical07/accessgate/metrics/export/prometheus"
	"github.com/MrEthical07/accessgate/store/memory"
	mongostore "github.com/MrEthical07/accessgate/store/mongo"
	pgstore "github.com/MrEthical07/accessgate/store/postgres"
	"github.com/MrEthical07/accessgate/transport/httpapi"
)

const healthService = "accessgate"

func main() {
	_ = godotenv.Load()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "accessgate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rc, err := loadRuntime(newViper())
	if err != nil {
		return fmt.Errorf("runtime config: %w", err)
	}

	log, logCloser, err := logging.New(rc.Log, os.Stdout)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	cfg, err := accessgate.LoadConfig(rc.ConfigFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// closers run in reverse order once every server and pool has stopped.
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	redisOpt, err := redis.ParseURL(rc.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpt)
	closers = append(closers, func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Counters and codes degrade through the cache policy; keep serving.
		log.Warn().Err(err).Msg("redis ping failed")
	}

	store, closeStore, err := openStore(ctx, rc.Store, log)
	if err != nil {
		return err
	}
	closers = append(closers, closeStore)

	mailer, closeMailer, err := openMailer(rc.Mail, log)
	if err != nil {
		return err
	}
	closers = append(closers, closeMailer)

	var mailWorker *mailqueue.Worker
	if rc.Mail.Queue {
		asynqOpt := asynq.RedisClientOpt{
			Addr:     redisOpt.Addr,
			Username: redisOpt.Username,
			Password: redisOpt.Password,
			DB:       redisOpt.DB,
		}
		enq := mailqueue.NewEnqueuer(asynqOpt, cfg.OTP.TTL, log)
		closers = append(closers, func() { _ = enq.Close() })
		mailWorker = mailqueue.NewWorker(asynqOpt, mailer, rc.Mail.QueueConcurrency, log)
		mailer = enq
	}

	sink, closeSink, err := openAuditSink(rc.Audit)
	if err != nil {
		return err
	}
	closers = append(closers, closeSink)
	if sink != nil {
		cfg.Audit.Enabled = true
	}

	poolCfg, err := cfg.WorkerPools()
	if err != nil {
		return err
	}
	pools, err := workers.NewManager(poolCfg, log)
	if err != nil {
		return err
	}

	builder := accessgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(store).
		WithMailer(mailer).
		WithPoolManager(pools).
		WithLogger(log)
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}
	engine, err := builder.Build()
	if err != nil {
		shutdownPools(pools, rc.ShutdownTimeout, log)
		return fmt.Errorf("build engine: %w", err)
	}

	router := httpapi.NewRouter(engine, httpapi.Options{
		Logger:  log,
		Metrics: promexport.Handler(promexport.NewCollector(engine)),
	})
	httpServer := &http.Server{
		Addr:              rc.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	grpcLis, err := net.Listen("tcp", rc.GRPCAddr)
	if err != nil {
		engine.Close()
		shutdownPools(pools, rc.ShutdownTimeout, log)
		return fmt.Errorf("listen grpc: %w", err)
	}

	monitor := health.NewMonitor(engine, healthSrv, health.Config{
		Interval: rc.MonitorInterval,
		Service:  healthService,
	}, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", rc.HTTPAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", grpcLis.Addr().String()).Msg("grpc health server started")
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return monitor.Run(gctx)
	})
	if mailWorker != nil {
		g.Go(func() error {
			return mailWorker.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), rc.ShutdownTimeout)
		defer cancel()
		healthSrv.Shutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
		grpcServer.GracefulStop()
		return nil
	})

	runErr := g.Wait()

	// Detached tasks still use the store, cache and mailer, so the pools
	// drain before any of those close.
	shutdownPools(pools, rc.ShutdownTimeout, log)
	engine.Close()

	if runErr != nil {
		log.Error().Err(runErr).Msg("stopped with error")
		return runErr
	}
	log.Info().Msg("stopped")
	return nil
}

func shutdownPools(pools *workers.Manager, timeout time.Duration, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := pools.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("worker pools did not drain")
	}
}

func openStore(ctx context.Context, cfg storeConfig, log zerolog.Logger) (accessgate.AccountStore, func(), error) {
	switch cfg.Driver {
	case "postgres":
		db, err := pgstore.Connect(ctx, cfg.PostgresURL, cfg.PostgresMaxConns)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("postgres handle: %w", err)
		}
		if err := pgstore.Migrate(ctx, db, log); err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		return pgstore.New(db), func() { _ = sqlDB.Close() }, nil
	case "mongo":
		s, err := mongostore.Connect(ctx, mongostore.Config{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.Close(closeCtx)
		}, nil
	default:
		log.Warn().Msg("using the in-memory account store; accounts are lost on restart")
		return memory.New(), func() {}, nil
	}
}

func openMailer(cfg mailConfig, log zerolog.Logger) (accessgate.Mailer, func(), error) {
	switch cfg.Driver {
	case "smtp":
		m, err := smtpmail.New(cfg.SMTP)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	case "resend":
		m, err := resendmail.New(cfg.ResendAPIKey, cfg.From)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {}, nil
	default:
		return logmail.New(log), func() {}, nil
	}
}

func openAuditSink(cfg auditConfig) (accessgate.AuditSink, func(), error) {
	switch {
	case len(cfg.KafkaBrokers) > 0:
		s, err := kafkasink.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case cfg.Stdout:
		return accessgate.NewJSONWriterSink(os.Stdout), func() {}, nil
	default:
		return nil, func() {}, nil
	}
}
