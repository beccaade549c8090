package models

import (
	"time"

	"gorm.io/datatypes"
)

// SecurityAlert records an alert dispatched to the administrator.
type SecurityAlert struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // UUID.

	Kind     string         `gorm:"type:varchar(32);not null;index"` // Alert category.
	Key      string         `gorm:"type:varchar(255);not null"`      // Dedup key that admitted the alert.
	Details  datatypes.JSON `gorm:"type:jsonb"`                      // Request context.
	FailOpen bool           `gorm:"not null;default:false"`          // Sent without a dedup decision.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
