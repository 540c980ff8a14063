package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/quotalink/internal/app/model"
	"github.com/sifan077/quotalink/internal/app/repository"
	"go.uber.org/zap"
)

const (
	consumerFetchBatch       = 10
	consumerFetchWait        = 5 * time.Second
	consumerInactiveTTL      = time.Hour
	consumerErrorBackoff     = time.Second
	consumerInvalidateBudget = 2 * time.Second
)

// EnsureMappingStream creates the MAPPINGS stream if it does not exist yet.
func EnsureMappingStream(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(model.MappingStreamName); err == nil {
		return nil
	}
	_, err := js.AddStream(&nats.StreamConfig{
		Name:     model.MappingStreamName,
		Subjects: []string{model.MappingStreamSubject},
		MaxBytes: model.MappingStreamMaxBytes,
		MaxAge:   model.MappingStreamMaxAge,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// MappingEventConsumer evicts deleted codes from this instance's resolve cache.
// Every instance uses its own durable consumer so each one sees every event.
type MappingEventConsumer struct {
	js       nats.JetStreamContext
	logger   *zap.Logger
	cache    repository.MappingCache
	durable  string
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewMappingEventConsumer creates a consumer named after instanceID.
func NewMappingEventConsumer(js nats.JetStreamContext, logger *zap.Logger, cache repository.MappingCache, instanceID string) *MappingEventConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MappingEventConsumer{
		js:       js,
		logger:   logger,
		cache:    cache,
		durable:  model.MappingConsumerPrefix + "-" + instanceID,
		stopChan: make(chan struct{}),
	}
}

// Start begins consuming mapping events
func (c *MappingEventConsumer) Start() error {
	if err := EnsureMappingStream(c.js); err != nil {
		return err
	}

	// Create consumer if not exists
	if _, err := c.js.ConsumerInfo(model.MappingStreamName, c.durable); err != nil {
		_, err = c.js.AddConsumer(model.MappingStreamName, &nats.ConsumerConfig{
			Durable:           c.durable,
			AckPolicy:         nats.AckExplicitPolicy,
			DeliverPolicy:     nats.DeliverNewPolicy,
			FilterSubject:     model.MappingStreamSubject,
			InactiveThreshold: consumerInactiveTTL,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.MappingStreamSubject, c.durable, nats.Bind(model.MappingStreamName, c.durable))
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.wg.Add(1)
	go c.consume(sub)
	return nil
}

// Stop ends the consume loop and waits for it to return.
func (c *MappingEventConsumer) Stop() {
	close(c.stopChan)
	c.wg.Wait()
}

func (c *MappingEventConsumer) consume(sub *nats.Subscription) {
	defer c.wg.Done()
	defer func() { _ = sub.Unsubscribe() }()

	for {
		select {
		case <-c.stopChan:
			c.logger.Info("mapping event consumer stopped")
			return
		default:
		}

		msgs, err := sub.Fetch(consumerFetchBatch, nats.MaxWait(consumerFetchWait))
		if err != nil && !errors.Is(err, nats.ErrTimeout) {
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				c.logger.Warn("mapping event subscription closed", zap.Error(err))
				return
			}
			c.logger.Error("failed to fetch messages", zap.Error(err))
			select {
			case <-c.stopChan:
				return
			case <-time.After(consumerErrorBackoff):
			}
			continue
		}

		for _, msg := range msgs {
			c.handle(msg)
		}
	}
}

func (c *MappingEventConsumer) handle(msg *nats.Msg) {
	var event model.MappingEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		// Malformed events can never be processed; drop them.
		c.logger.Error("failed to unmarshal mapping event", zap.Error(err))
		_ = msg.Term()
		return
	}

	if err := c.apply(event); err != nil {
		c.logger.Error("failed to apply mapping event",
			zap.String("id", event.ID),
			zap.String("code", event.Code),
			zap.Error(err))
		_ = msg.Nak()
		return
	}

	c.logger.Debug("mapping event applied",
		zap.String("id", event.ID),
		zap.String("type", event.Type),
		zap.String("code", event.Code),
	)
	_ = msg.Ack()
}

func (c *MappingEventConsumer) apply(event model.MappingEvent) error {
	if event.Type != model.MappingEventDeleted || c.cache == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), consumerInvalidateBudget)
	defer cancel()
	return c.cache.Invalidate(ctx, event.Code)
}
