package model

import "time"

// Mapping associates an owner and an original URL with a short code.
// Only Clicks changes after creation.
type Mapping struct {
	ID          int64     `db:"id" gorm:"primaryKey;autoIncrement"`
	OwnerID     string    `db:"owner_id" gorm:"size:64;not null;index;uniqueIndex:idx_mappings_owner_url,priority:1"`
	OriginalURL string    `db:"original_url" gorm:"type:text;not null;uniqueIndex:idx_mappings_owner_url,priority:2"`
	Code        string    `db:"code" gorm:"size:16;not null;uniqueIndex:idx_mappings_code"`
	Clicks      int64     `db:"clicks" gorm:"not null;default:0"`
	CreatedAt   time.Time `db:"created_at" gorm:"autoCreateTime;index"`
}

// Unique index names, shared by the schema and the constraint-violation decoder.
const (
	CodeIndexName     = "idx_mappings_code"
	OwnerURLIndexName = "idx_mappings_owner_url"
)
