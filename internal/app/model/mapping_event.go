package model

import "time"

// MappingEvent is published to NATS JetStream when a mapping leaves the keyspace.
type MappingEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	MappingID int64     `json:"mapping_id"`
	OwnerID   string    `json:"owner_id"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	MappingEventDeleted = "mapping.deleted"

	MappingStreamName     = "MAPPINGS"
	MappingStreamSubject  = "mappings.deleted"
	MappingConsumerPrefix = "mapping-cache"
	MappingStreamMaxBytes = 1024 * 1024 * 16 // 16MB
	MappingStreamMaxAge   = 24 * time.Hour
)
