// Package mailqueue moves mail delivery out of process: Enqueuer is an
// accessgate.Mailer that stores each message as an asynq task, and Worker
// drains the queue into a real Mailer with asynq's retries.
package mailqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrEthical07/accessgate/internal/mask"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const (
	TypeSendMail = "mail:send"
	QueueName    = "mail"
)

type mailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Enqueuer implements accessgate.Mailer by enqueueing.
type Enqueuer struct {
	client   *asynq.Client
	log      zerolog.Logger
	maxRetry int
	ttl      time.Duration
}

// NewEnqueuer builds an Enqueuer. A message not delivered within ttl is
// dropped by asynq, so a stale code is never mailed.
func NewEnqueuer(redisOpt asynq.RedisConnOpt, ttl time.Duration, log zerolog.Logger) *Enqueuer {
	return &Enqueuer{
		client:   asynq.NewClient(redisOpt),
		log:      log.With().Str("component", "mailqueue").Logger(),
		maxRetry: 5,
		ttl:      ttl,
	}
}

func (q *Enqueuer) Close() error {
	return q.client.Close()
}

func (q *Enqueuer) Send(ctx context.Context, to, subject, htmlBody string) error {
	task, err := newSendTask(to, subject, htmlBody)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue(QueueName),
		asynq.TaskID(uuid.NewString()),
		asynq.MaxRetry(q.maxRetry),
	}
	if q.ttl > 0 {
		opts = append(opts, asynq.Deadline(time.Now().Add(q.ttl)))
	}

	if _, err := q.client.EnqueueContext(ctx, task, opts...); err != nil {
		q.log.Warn().Err(err).Str("email", mask.Email(to)).Msg("enqueue mail failed")
		return fmt.Errorf("enqueue mail: %w", err)
	}
	return nil
}

func newSendTask(to, subject, htmlBody string) (*asynq.Task, error) {
	payload, err := json.Marshal(mailPayload{To: to, Subject: subject, HTML: htmlBody})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSendMail, payload), nil
}
