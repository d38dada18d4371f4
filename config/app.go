package config

import (
	"strconv"
	"time"
)

// AppConfig holds the gateway's runtime tunables, all overridable by
// environment variable.
type AppConfig struct {
	// GT06Host/GT06Port/GT06IMEI configure cmd/gt06-client's upstream dial
	// target and the IMEI it logs in as.
	GT06Host string
	GT06Port int
	GT06IMEI string

	HeartbeatInterval    time.Duration
	LocationInterval     time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	ConnectTimeout       time.Duration
	LoginTimeout         time.Duration

	// BridgeSerialPort/BridgeBaud configure the microcontroller link used
	// by cmd/gt06-client's bridge. BridgeSerialPort empty disables the
	// bridge.
	BridgeSerialPort string
	BridgeBaud       int

	TCPPort  int
	HTTPPort int

	// APIToken guards the HTTP config-write endpoint. Empty disables auth
	// (local/dev use only).
	APIToken string
}

// GetAppConfig returns gateway configuration from environment variables.
func GetAppConfig() *AppConfig {
	return &AppConfig{
		GT06Host: getEnv("GT06_HOST", "127.0.0.1"),
		GT06Port: getEnvInt("GT06_PORT", 5023),
		GT06IMEI: getEnv("GT06_IMEI", "123456789012345"),

		HeartbeatInterval:    getEnvSeconds("HEARTBEAT_SECONDS", 180),
		LocationInterval:     getEnvSeconds("LOCATION_SECONDS", 30),
		ReconnectInterval:    getEnvSeconds("RECONNECT_SECONDS", 10),
		MaxReconnectAttempts: getEnvInt("MAX_RECONNECT_ATTEMPTS", 0),
		ConnectTimeout:       getEnvSeconds("CONNECT_TIMEOUT_SECONDS", 30),
		LoginTimeout:         getEnvSeconds("LOGIN_TIMEOUT_SECONDS", 30),

		BridgeSerialPort: getEnv("BRIDGE_SERIAL_PORT", ""),
		BridgeBaud:       getEnvInt("BRIDGE_BAUD", 9600),

		TCPPort:  getEnvInt("TCP_PORT", 5023),
		HTTPPort: getEnvInt("HTTP_PORT", 8080),

		APIToken: getEnv("API_TOKEN", ""),
	}
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return val
}

func getEnvSeconds(key string, fallbackSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackSeconds)) * time.Second
}
