package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// GPSData is a persisted sample decoded from a LOCATION or ALARM frame.
type GPSData struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	IMEI      string    `json:"imei" gorm:"size:15;not null;index" validate:"required,len=15"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	SpeedKMH  float64 `json:"speed_kmh"`
	CourseDeg float64 `json:"course_deg"`

	GPSValid   bool `json:"gps_valid"`
	Satellites int  `json:"satellites"`

	AlarmActive bool   `json:"alarm_active"`
	AlarmKind   string `json:"alarm_kind"`

	ProtocolName string `json:"protocol_name"`
	RawHex       string `json:"raw_hex"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the GPSData model.
func (GPSData) TableName() string {
	return "gps_data"
}

// BeforeCreate stamps Timestamp if the caller left it zero.
func (g *GPSData) BeforeCreate(tx *gorm.DB) error {
	if g.Timestamp.IsZero() {
		g.Timestamp = time.Now().UTC()
	}
	return nil
}

// IsValidLocation reports whether the sample carries a GPS-valid fix.
func (g *GPSData) IsValidLocation() bool {
	return g.GPSValid
}

// HasGoodGPSAccuracy reports whether the sample has a usable satellite
// count.
func (g *GPSData) HasGoodGPSAccuracy() bool {
	return g.GPSValid && g.Satellites >= 3
}

// LocationString returns a formatted "lat,lon" string.
func (g *GPSData) LocationString() string {
	return fmt.Sprintf("%.6f,%.6f", g.Latitude, g.Longitude)
}
