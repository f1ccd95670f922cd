package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "CODEROOM"

	defaultHTTPAddress          = "127.0.0.1:8090"
	defaultDatabasePath         = "coderoom.db"
	defaultLogLevel             = "info"
	defaultSnapshotSource       = "push"
	defaultHeartbeatInterval    = 10 * time.Second
	defaultReconnectDelay       = 5 * time.Second
	defaultMaxReconnectAttempts = 10
	defaultPollInterval         = 15 * time.Second
)

// SnapshotSourceMode selects how the snapshot list is kept current.
type SnapshotSourceMode string

const (
	// SnapshotSourcePush applies snapshot-created events from the channel.
	SnapshotSourcePush SnapshotSourceMode = "push"
	// SnapshotSourcePoll periodically re-fetches the list over REST.
	SnapshotSourcePoll SnapshotSourceMode = "poll"
)

// AppConfig captures runtime configuration for the sync agent.
type AppConfig struct {
	HTTPAddress          string
	BrokerURL            string
	APIBaseURL           string
	DatabasePath         string
	LogLevel             string
	SnapshotSource       SnapshotSourceMode
	HeartbeatInterval    time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	PollInterval         time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("snapshots.source", defaultSnapshotSource)
	configViper.SetDefault("snapshots.poll_interval", defaultPollInterval)
	configViper.SetDefault("channel.heartbeat_interval", defaultHeartbeatInterval)
	configViper.SetDefault("channel.reconnect_delay", defaultReconnectDelay)
	configViper.SetDefault("channel.max_reconnect_attempts", defaultMaxReconnectAttempts)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		BrokerURL:            configViper.GetString("broker.url"),
		APIBaseURL:           configViper.GetString("api.base_url"),
		DatabasePath:         configViper.GetString("database.path"),
		LogLevel:             configViper.GetString("log.level"),
		SnapshotSource:       SnapshotSourceMode(configViper.GetString("snapshots.source")),
		HeartbeatInterval:    configViper.GetDuration("channel.heartbeat_interval"),
		ReconnectDelay:       configViper.GetDuration("channel.reconnect_delay"),
		MaxReconnectAttempts: configViper.GetInt("channel.max_reconnect_attempts"),
		PollInterval:         configViper.GetDuration("snapshots.poll_interval"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.BrokerURL) == "" {
		return fmt.Errorf("broker.url is required")
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.SnapshotSource {
	case SnapshotSourcePush, SnapshotSourcePoll:
	default:
		return fmt.Errorf("snapshots.source must be %q or %q", SnapshotSourcePush, SnapshotSourcePoll)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("channel.heartbeat_interval must be positive")
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("channel.reconnect_delay must be positive")
	}
	if c.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("channel.max_reconnect_attempts must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("snapshots.poll_interval must be positive")
	}
	return nil
}
