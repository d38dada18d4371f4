package models

import (
	"time"

	"gorm.io/gorm"
)

// Device represents a single GT06 tracker the gateway has seen log in,
// keyed by IMEI.
type Device struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	IMEI      string         `json:"imei" gorm:"uniqueIndex;not null;size:15" validate:"required,len=15"`
	Label     string         `json:"label" gorm:"size:64"`
	FirstSeen time.Time      `json:"first_seen"`
	LastSeen  time.Time      `json:"last_seen"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName specifies the table name for the Device model.
func (Device) TableName() string {
	return "devices"
}

// BeforeCreate stamps FirstSeen/LastSeen if the caller left them zero.
func (d *Device) BeforeCreate(tx *gorm.DB) error {
	if d.FirstSeen.IsZero() {
		d.FirstSeen = time.Now().UTC()
	}
	if d.LastSeen.IsZero() {
		d.LastSeen = d.FirstSeen
	}
	return nil
}
