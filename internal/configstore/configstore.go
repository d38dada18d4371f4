// Package configstore seeds a client.Config at startup from a
// GORM-backed key/value table, falling back to environment variables
// when no database is configured. It is the "Configuration store"
// collaborator: write-through key/value persistence, read at startup to
// seed the client and again by the HTTP config endpoints on each request.
package configstore

import (
	"fmt"
	"time"

	"gt06_gateway/config"
	"gt06_gateway/internal/client"

	"gorm.io/gorm"
)

// Entry is a single persisted key/value row.
type Entry struct {
	Key       string    `json:"key" gorm:"primarykey;size:64"`
	Value     string    `json:"value" gorm:"size:256"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Entry model.
func (Entry) TableName() string { return "client_config" }

// Store reads and writes ClientConfig fields as key/value rows. A nil
// db falls back to the process environment only (Put is a no-op).
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by db. db may be nil.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the backing table, if a database is configured.
func (s *Store) Migrate() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("configstore: migrate: %w", err)
	}
	return nil
}

// Load seeds a client.Config from environment defaults, then overlays
// any rows present in the store.
func (s *Store) Load() (client.Config, error) {
	app := config.GetAppConfig()
	cfg := client.Config{
		Host:                 app.GT06Host,
		Port:                 app.GT06Port,
		IMEI:                 app.GT06IMEI,
		HeartbeatInterval:    app.HeartbeatInterval,
		LocationInterval:     app.LocationInterval,
		ReconnectInterval:    app.ReconnectInterval,
		MaxReconnectAttempts: app.MaxReconnectAttempts,
		ConnectTimeout:       app.ConnectTimeout,
		LoginTimeout:         app.LoginTimeout,
	}

	if s.db == nil {
		return cfg, cfg.Normalize()
	}

	var rows []Entry
	if err := s.db.Find(&rows).Error; err != nil {
		return cfg, fmt.Errorf("configstore: load: %w", err)
	}
	for _, row := range rows {
		applyEntry(&cfg, row.Key, row.Value)
	}
	return cfg, cfg.Normalize()
}

// Put upserts a single key/value pair. A nil db makes this a no-op so
// callers can run without persistence configured.
func (s *Store) Put(key, value string) error {
	if s.db == nil {
		return nil
	}
	row := Entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.db.Save(&row).Error
}

func applyEntry(cfg *client.Config, key, value string) {
	switch key {
	case "host":
		cfg.Host = value
	case "port":
		fmt.Sscanf(value, "%d", &cfg.Port)
	case "imei":
		cfg.IMEI = value
	case "heartbeat_seconds":
		var secs int
		if _, err := fmt.Sscanf(value, "%d", &secs); err == nil {
			cfg.HeartbeatInterval = time.Duration(secs) * time.Second
		}
	case "location_seconds":
		var secs int
		if _, err := fmt.Sscanf(value, "%d", &secs); err == nil {
			cfg.LocationInterval = time.Duration(secs) * time.Second
		}
	case "reconnect_seconds":
		var secs int
		if _, err := fmt.Sscanf(value, "%d", &secs); err == nil {
			cfg.ReconnectInterval = time.Duration(secs) * time.Second
		}
	case "max_reconnect_attempts":
		fmt.Sscanf(value, "%d", &cfg.MaxReconnectAttempts)
	}
}
