package models

import "time"

// SecurityEvent is the persisted audit record. Write-only: nothing in the service reads it back.
type SecurityEvent struct {
	ID        string    `gorm:"primary_key;type:varchar(36)" json:"id"`
	Kind      string    `gorm:"not null;index" json:"kind"`
	Severity  string    `gorm:"not null;index" json:"severity"`
	Context   Metadata  `gorm:"type:text" json:"context"`
	Timestamp time.Time `gorm:"column:occurred_at;not null;index" json:"timestamp"`
}
