package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/quotalink/internal/app/model"
)

// MappingEventPublisher publishes mapping lifecycle events to NATS JetStream.
type MappingEventPublisher struct {
	js nats.JetStreamContext
}

// NewMappingEventPublisher creates a new mapping event publisher.
func NewMappingEventPublisher(js nats.JetStreamContext) *MappingEventPublisher {
	return &MappingEventPublisher{js: js}
}

// PublishDeleted announces that m left the keyspace.
func (p *MappingEventPublisher) PublishDeleted(ctx context.Context, m *model.Mapping) error {
	event := model.MappingEvent{
		ID:        uuid.New().String(),
		Type:      model.MappingEventDeleted,
		MappingID: m.ID,
		OwnerID:   m.OwnerID,
		Code:      m.Code,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.MappingStreamSubject, data, nats.Context(ctx))
	return err
}
