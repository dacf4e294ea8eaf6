package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
	"github.com/alanyoungcy/carbitrage/internal/service"
)

// BatchRunner verifies one queue batch.
type BatchRunner interface {
	RunBatch(ctx context.Context) (service.VerifySummary, error)
}

// VerifyRunner drains the verification queue on a schedule and on demand.
type VerifyRunner struct {
	svc     BatchRunner
	trigger chan struct{}
	logger  *slog.Logger
}

// NewVerifyRunner creates a VerifyRunner.
func NewVerifyRunner(svc BatchRunner, logger *slog.Logger) *VerifyRunner {
	return &VerifyRunner{
		svc:     svc,
		trigger: make(chan struct{}, 1),
		logger:  logger.With(slog.String("component", "verify_runner")),
	}
}

// Trigger requests an extra batch without blocking. It reports false when
// a request is already pending.
func (r *VerifyRunner) Trigger() bool {
	select {
	case r.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Request is Trigger in the shape the HTTP layer expects.
func (r *VerifyRunner) Request(context.Context) (bool, error) {
	return r.Trigger(), nil
}

// Subscriber delivers pub/sub payloads.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// ListenTriggers turns messages on the verify trigger channel into Trigger
// calls until ctx is cancelled.
func (r *VerifyRunner) ListenTriggers(ctx context.Context, bus Subscriber) error {
	msgs, err := bus.Subscribe(ctx, domain.ChannelVerifyTrigger)
	if err != nil {
		return fmt.Errorf("verify_runner: subscribe triggers: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("verify_runner: trigger subscription closed")
			}
			if r.Trigger() {
				r.logger.InfoContext(ctx, "remote verification trigger accepted")
			}
		}
	}
}

// Publisher sends pub/sub payloads.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RelayTrigger returns a trigger for processes without a verify loop. It
// forwards the request to the verify process over the bus, where repeated
// requests coalesce.
func RelayTrigger(bus Publisher) func(context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		payload := []byte(time.Now().UTC().Format(time.RFC3339))
		if err := bus.Publish(ctx, domain.ChannelVerifyTrigger, payload); err != nil {
			return false, fmt.Errorf("verify_runner: relay trigger: %w", err)
		}
		return true, nil
	}
}

// Run verifies one batch.
func (r *VerifyRunner) Run(ctx context.Context) error {
	_, err := r.svc.RunBatch(ctx)
	return err
}

// RunLoop runs a batch immediately, then every interval and on Trigger.
func (r *VerifyRunner) RunLoop(ctx context.Context, interval time.Duration) error {
	return runEvery(ctx, interval, r.trigger, r.logger, r.Run)
}
