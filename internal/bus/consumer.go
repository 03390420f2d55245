// Package bus implements the C9 poll loop: it reads raw fault
// notifications off the vendor's Kafka-compatible topic and drives them
// through normalize → filter → lifecycle-apply, one message at a time.
package bus

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/pilot-net/nsp-alarm-ingester/internal/normalizer"
	"github.com/pilot-net/nsp-alarm-ingester/internal/store"
	"github.com/pilot-net/nsp-alarm-ingester/pkg/alarm"
)

// Config configures the TLS consumer group. KeystorePath,
// KeystorePassword and CAPath are carried here but New does not load
// them: the dialer's TLS config sets only InsecureSkipVerify, and no
// client certificate or CA pool is configured.
type Config struct {
	Brokers             []string
	Topic               string
	KeystorePath        string
	KeystorePassword    string
	CAPath              string
	InsecureSkipVerify  bool
	PollTimeout         time.Duration // default 1s
}

// LifecycleApplier is the C5 entry point the consumer drives per message.
type LifecycleApplier interface {
	ApplyAlarm(ctx context.Context, a alarm.CanonicalAlarm, inv store.Invalidator) error
}

// Consumer polls the subscribed topic and drives the per-message pipeline.
type Consumer struct {
	reader      *kafka.Reader
	normalizer  *normalizer.Normalizer
	ctxProvider normalizer.ContextProvider
	applier     LifecycleApplier
	invalidator store.Invalidator
	pollTimeout time.Duration
	logger      *slog.Logger
}

// New builds a Consumer subscribed to cfg.Topic under the
// nsp-python-{hostname} consumer group, the group-id convention of the
// upstream deployment.
func New(cfg Config, norm *normalizer.Normalizer, ctxProvider normalizer.ContextProvider, applier LifecycleApplier, invalidator store.Invalidator, logger *slog.Logger) *Consumer {
	pollTimeout := cfg.PollTimeout
	if pollTimeout == 0 {
		pollTimeout = time.Second
	}

	hostname, _ := os.Hostname()
	groupID := fmt.Sprintf("nsp-python-%s", hostname)

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
		TLS:       &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     groupID,
		Dialer:      dialer,
		StartOffset: kafka.LastOffset,
		MaxWait:     pollTimeout,
	})

	return &Consumer{
		reader:      reader,
		normalizer:  norm,
		ctxProvider: ctxProvider,
		applier:     applier,
		invalidator: invalidator,
		pollTimeout: pollTimeout,
		logger:      logger.With("component", "bus_consumer", "topic", cfg.Topic, "group_id", groupID),
	}
}

// Run blocks, polling until ctx is cancelled. Each stage's failure is
// logged and the loop continues to the next message — no stage's error
// ever blocks a subsequent message.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("bus consumer started")
	defer c.logger.Info("bus consumer stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		pollCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
		msg, err := c.reader.ReadMessage(pollCtx)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("bus poll error", "error", err)
			continue
		}

		c.processMessage(ctx, msg.Value)
	}
}

func (c *Consumer) processMessage(ctx context.Context, payload []byte) {
	logger := c.logger.With("correlation_id", uuid.NewString())

	var envelope map[string]any
	if err := json.Unmarshal(payload, &envelope); err != nil {
		logger.Warn("malformed message, dropping", "error", err)
		return
	}

	record, err := c.normalizer.Normalize(ctx, envelope, c.ctxProvider)
	if err != nil {
		logger.Error("normalization error, dropping message", "error", err)
		return
	}
	if record == nil {
		return
	}

	if err := c.applier.ApplyAlarm(ctx, *record, c.invalidator); err != nil {
		logger.Error("lifecycle apply failed, dropping message", "alarm_id", record.AlarmID, "error", err)
		return
	}
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
