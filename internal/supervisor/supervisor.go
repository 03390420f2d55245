// Package supervisor wires up C7, C8, and C9 and drives the startup and
// shutdown ordering: given an already-authenticated session, create the
// subscription, launch the renewal ticker and the bus consumer, then tear
// everything down exactly once on signal or fatal error.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sync/errgroup"

	"github.com/pilot-net/nsp-alarm-ingester/internal/bus"
	"github.com/pilot-net/nsp-alarm-ingester/internal/session"
	"github.com/pilot-net/nsp-alarm-ingester/internal/subscription"
)

// healthLogInterval is the cadence of the supervisor's self-health log.
const healthLogInterval = 5 * time.Minute

// Supervisor owns the session, subscription, and consumer lifecycle.
type Supervisor struct {
	sess         *session.Session
	subscriber   *subscription.Manager
	consumerFunc func(topicID string) (*bus.Consumer, error)
	renewInterval time.Duration
	logger       *slog.Logger

	teardownOnce sync.Once
}

// New builds a Supervisor. consumerFunc constructs the C9 consumer bound
// to the topic returned by C8.Create, deferred until Run so the topic id
// is known.
func New(sess *session.Session, subscriber *subscription.Manager, renewInterval time.Duration, consumerFunc func(topicID string) (*bus.Consumer, error), logger *slog.Logger) *Supervisor {
	return &Supervisor{
		sess:          sess,
		subscriber:    subscriber,
		consumerFunc:  consumerFunc,
		renewInterval: renewInterval,
		logger:        logger.With("component", "supervisor"),
	}
}

// Run implements the startup order: create the subscription, launch
// the renewal ticker and the bus consumer, then block until either
// returns or ctx is cancelled by a shutdown signal. Teardown runs exactly
// once regardless of which path triggered it.
func (sp *Supervisor) Run(ctx context.Context) error {
	subscriptionID, topicID, err := sp.subscriber.Create(ctx)
	if err != nil {
		return fmt.Errorf("creating subscription: %w", err)
	}

	consumer, err := sp.consumerFunc(topicID)
	if err != nil {
		return fmt.Errorf("building bus consumer: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return sp.runRenewalLoop(groupCtx, subscriptionID)
	})
	group.Go(func() error {
		return consumer.Run(groupCtx)
	})
	group.Go(func() error {
		sp.runHealthLog(groupCtx)
		return nil
	})

	err = group.Wait()
	sp.teardown(subscriptionID, consumer)

	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// runRenewalLoop calls C8.Renew every renewInterval until cancelled. A
// renewal failure is logged and does not stop the loop.
func (sp *Supervisor) runRenewalLoop(ctx context.Context, subscriptionID string) error {
	ticker := time.NewTicker(sp.renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := sp.subscriber.Renew(ctx, subscriptionID); err != nil {
				sp.logger.Error("subscription renewal failed; it will eventually expire", "error", err)
			}
		}
	}
}

// runHealthLog emits a periodic process health line (RSS, goroutine
// count) until cancelled.
func (sp *Supervisor) runHealthLog(ctx context.Context) {
	ticker := time.NewTicker(healthLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fields := []any{"goroutines", runtime.NumGoroutine()}
			if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
				if mem, err := proc.MemoryInfo(); err == nil {
					fields = append(fields, "rss_bytes", mem.RSS)
				}
			}
			sp.logger.Info("health", fields...)
		}
	}
}

// teardown runs the idempotent best-effort shutdown sequence: close the
// consumer, delete the subscription, revoke the credential. Each step is
// independent so a failure in one does not prevent the others.
func (sp *Supervisor) teardown(subscriptionID string, consumer *bus.Consumer) {
	sp.teardownOnce.Do(func() {
		sp.logger.Info("tearing down")

		if err := consumer.Close(); err != nil {
			sp.logger.Error("closing bus consumer failed", "error", err)
		}

		teardownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := sp.subscriber.Delete(teardownCtx, subscriptionID); err != nil {
			sp.logger.Error("deleting subscription failed", "error", err)
		}
		if err := sp.sess.Revoke(teardownCtx); err != nil {
			sp.logger.Error("revoking session failed", "error", err)
		}

		sp.logger.Info("teardown complete")
	})
}
