package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultServerURL is the hardcoded fallback when neither SOCKET_URL
// nor API_URL is set, matching the game server's development address.
const DefaultServerURL = "http://localhost:3001"

type AppConfig struct {
	// ServerURL is the game server endpoint. Resolved from SOCKET_URL,
	// then API_URL, then DefaultServerURL.
	ServerURL string

	LogLevel string

	DialTimeout       time.Duration
	AckTimeout        time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// DevServerAddr is the bind address for the local stub server
	// started with --dev-server.
	DevServerAddr string
}

func InitConfig() *AppConfig {
	v := viper.New()

	v.AutomaticEnv()

	v.SetDefault("socket_url", "")
	v.SetDefault("api_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("dial_timeout_ms", 10_000)
	v.SetDefault("ack_timeout_ms", 5_000)
	v.SetDefault("heartbeat_interval_ms", 30_000)
	v.SetDefault("heartbeat_timeout_ms", 45_000)
	v.SetDefault("dev_server_addr", "localhost:3001")

	serverURL := v.GetString("socket_url")
	if serverURL == "" {
		serverURL = v.GetString("api_url")
	}
	if serverURL == "" {
		serverURL = DefaultServerURL
	}

	return &AppConfig{
		ServerURL:         serverURL,
		LogLevel:          v.GetString("log_level"),
		DialTimeout:       time.Duration(v.GetInt("dial_timeout_ms")) * time.Millisecond,
		AckTimeout:        time.Duration(v.GetInt("ack_timeout_ms")) * time.Millisecond,
		HeartbeatInterval: time.Duration(v.GetInt("heartbeat_interval_ms")) * time.Millisecond,
		HeartbeatTimeout:  time.Duration(v.GetInt("heartbeat_timeout_ms")) * time.Millisecond,
		DevServerAddr:     v.GetString("dev_server_addr"),
	}
}
