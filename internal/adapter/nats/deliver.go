package nats

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/missioncontrol/internal/logger"
	"github.com/Strob0t/missioncontrol/internal/port/messagequeue"
)

// delivery is the part of jetstream.Msg the consumer needs.
type delivery interface {
	Subject() string
	Data() []byte
	Headers() nats.Header
	Metadata() (*jetstream.MsgMetadata, error)
	Ack() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

type publishFunc func(context.Context, *nats.Msg) error

// handle validates and dispatches one delivery, then settles it: ack on
// success, delayed nak for a retry, or dead-letter and term.
func handle(d delivery, handler messagequeue.Handler, publish publishFunc) {
	ctx := context.Background()
	if id := d.Headers().Get(headerRequestID); id != "" {
		ctx = logger.WithRequestID(ctx, id)
	}
	subject := d.Subject()

	if err := messagequeue.Validate(subject, d.Data()); err != nil {
		slog.WarnContext(ctx, "invalid message dead-lettered", "subject", subject, "error", err)
		deadLetter(ctx, d, publish)
		return
	}

	err := handler(ctx, subject, d.Data())
	if err == nil {
		if ackErr := d.Ack(); ackErr != nil {
			slog.ErrorContext(ctx, "nats ack failed", "subject", subject, "error", ackErr)
		}
		return
	}

	attempt := deliveryCount(d)
	if attempt >= maxDeliveries {
		slog.ErrorContext(ctx, "message handler exhausted deliveries", "subject", subject, "attempt", attempt, "error", err)
		deadLetter(ctx, d, publish)
		return
	}
	delay := retryDelay(attempt)
	slog.WarnContext(ctx, "message handler failed", "subject", subject, "attempt", attempt, "retry_in", delay, "error", err)
	if nakErr := d.NakWithDelay(delay); nakErr != nil {
		slog.ErrorContext(ctx, "nats nak failed", "subject", subject, "error", nakErr)
	}
}

// deadLetter copies d to <subject>.dlq and stops its redelivery. The
// original is terminated even when the copy fails.
func deadLetter(ctx context.Context, d delivery, publish publishFunc) {
	out := nats.NewMsg(d.Subject() + dlqSuffix)
	out.Data = d.Data()
	for k, v := range d.Headers() {
		out.Header[k] = append([]string(nil), v...)
	}
	if err := publish(ctx, out); err != nil {
		slog.ErrorContext(ctx, "nats dlq publish failed", "subject", out.Subject, "error", err)
	}
	if err := d.Term(); err != nil {
		slog.ErrorContext(ctx, "nats term failed", "error", err)
	}
}

// deliveryCount is the 1-based delivery attempt. Missing metadata counts as
// the first attempt.
func deliveryCount(d delivery) int {
	md, err := d.Metadata()
	if err != nil || md == nil || md.NumDelivered == 0 {
		return 1
	}
	return int(md.NumDelivered)
}

// retryDelay is the wait before redelivering after failed attempt n.
func retryDelay(attempt int) time.Duration {
	d := baseRetryDelay
	for i := 1; i < attempt && d < maxRetryDelay; i++ {
		d *= 2
	}
	return min(d, maxRetryDelay)
}
