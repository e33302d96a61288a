package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/logger"
)

var ErrEmailQueueFull = errors.New("email queue is full")

type emailJob struct {
	id      string
	msg     domain.EmailMessage
	retries int
}

// EmailQueue sends mail on background workers with retries so callers never
// block on the provider. It implements Mailer; Send only enqueues.
type EmailQueue struct {
	sender     Mailer
	jobs       chan emailJob
	workers    int
	maxRetries int
	clock      clockwork.Clock
	log        *slog.Logger
	wg         sync.WaitGroup
}

func NewEmailQueue(sender Mailer, workers, queueSize, maxRetries int, clock clockwork.Clock) *EmailQueue {
	if workers <= 0 {
		workers = 1
	}
	return &EmailQueue{
		sender:     sender,
		jobs:       make(chan emailJob, queueSize),
		workers:    workers,
		maxRetries: maxRetries,
		clock:      clock,
		log:        logger.WithService("email_queue"),
	}
}

func (q *EmailQueue) Send(ctx context.Context, msg domain.EmailMessage) error {
	job := emailJob{id: uuid.NewString(), msg: msg}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrEmailQueueFull
	}
}

// Run starts the workers and blocks until ctx is done and they have exited.
func (q *EmailQueue) Run(ctx context.Context) error {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	<-ctx.Done()
	q.wg.Wait()
	return nil
}

func (q *EmailQueue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	q.log.Debug("Email worker started", "worker", id)
	for {
		select {
		case <-ctx.Done():
			q.log.Debug("Email worker stopping", "worker", id)
			return
		case job := <-q.jobs:
			q.process(ctx, job)
		}
	}
}

func (q *EmailQueue) process(ctx context.Context, job emailJob) {
	for {
		err := q.sender.Send(ctx, job.msg)
		if err == nil {
			q.log.Debug("Email sent", "job_id", job.id, "to", job.msg.To)
			return
		}
		if job.retries >= q.maxRetries {
			q.log.Error("Email dropped after retries", "job_id", job.id, "to", job.msg.To, "retries", job.retries, "error", err)
			return
		}

		job.retries++
		backoff := time.Duration(job.retries*job.retries) * time.Second
		q.log.Warn("Email send failed, retrying", "job_id", job.id, "attempt", job.retries, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-q.clock.After(backoff):
		}
	}
}
