package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Device is a registered appliance. A device belongs to exactly one owner for
// its whole lifetime; ownership is recorded from the verified claim at
// registration and never changes.
type Device struct {
	ID         uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Name       string         `json:"name" gorm:"not null"`
	DeviceType string         `json:"device_type" gorm:"not null"`
	Owner      string         `json:"owner" gorm:"index;not null"`
	IngestKey  string         `json:"-" gorm:"uniqueIndex;not null"`
	Meta       datatypes.JSON `json:"meta,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Reading is one power sample. Rows are append-only and immutable; query
// order is by Timestamp, never by arrival order.
type Reading struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	DeviceID   uuid.UUID `json:"device_id" gorm:"type:uuid;index:idx_reading_device_ts,priority:1;not null"`
	Timestamp  time.Time `json:"timestamp" gorm:"index:idx_reading_device_ts,priority:2;not null"`
	PowerWatts float64   `json:"power_watts" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
}
