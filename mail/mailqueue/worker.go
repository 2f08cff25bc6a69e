package mailqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrEthical07/accessgate"
	"github.com/MrEthical07/accessgate/internal/mask"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Worker runs the asynq server that delivers queued mail.
type Worker struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	mailer accessgate.Mailer
	log    zerolog.Logger
}

// NewWorker registers the send handler. Call Run to start consuming.
func NewWorker(redisOpt asynq.RedisConnOpt, mailer accessgate.Mailer, concurrency int, log zerolog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 2
	}
	log = log.With().Str("component", "mailqueue").Logger()

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueName: 1},
		Logger:      asynqLogger{log: log},
		LogLevel:    asynq.WarnLevel,
	})
	w := &Worker{
		srv:    srv,
		mux:    asynq.NewServeMux(),
		mailer: mailer,
		log:    log,
	}
	w.mux.HandleFunc(TypeSendMail, w.handleSend)
	return w
}

func (w *Worker) handleSend(ctx context.Context, t *asynq.Task) error {
	var p mailPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		w.log.Error().Err(err).Msg("mail task payload invalid")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err := w.mailer.Send(ctx, p.To, p.Subject, p.HTML); err != nil {
		w.log.Warn().Err(err).Str("email", mask.Email(p.To)).Msg("queued mail delivery failed")
		return err
	}
	return nil
}

// Run consumes the mail queue until ctx is done, then waits for in-flight
// sends to finish.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.srv.Start(w.mux); err != nil {
		return err
	}
	w.log.Info().Msg("mail queue worker started")
	<-ctx.Done()
	w.srv.Shutdown()
	return nil
}

// asynqLogger routes asynq's internal logging into zerolog.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
