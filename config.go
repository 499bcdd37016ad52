package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"updatestream-cdc/internal/processor"
)

type Config struct {
	Stream     StreamConfig     `yaml:"stream"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	NATS       NATSConfig       `yaml:"nats"`
	Processor  processor.Config `yaml:"processor"`
	Source     *SourceConfig    `yaml:"source"` // optional preflight target
	Logging    LoggingConfig    `yaml:"logging"`
}

type StreamConfig struct {
	Addr      string        `yaml:"addr"`
	Timeout   time.Duration `yaml:"timeout"`
	User      string        `yaml:"user"`
	Password  string        `yaml:"password"`
	Encrypted bool          `yaml:"encrypted"`
	KeyFile   string        `yaml:"key_file"`
	CertFile  string        `yaml:"cert_file"`
}

type CheckpointConfig struct {
	PositionFile string `yaml:"position_file"`
	StartGroupId string `yaml:"start_group_id"` // used when no checkpoint exists
}

type NATSConfig struct {
	URL           string        `yaml:"url"`
	Subject       string        `yaml:"subject"`
	MaxReconnect  int           `yaml:"max_reconnect"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

type SourceConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	if config.Stream.Timeout == 0 {
		config.Stream.Timeout = 30 * time.Second
	}
	if config.NATS.Subject == "" {
		config.NATS.Subject = "updatestream.events"
	}
	if config.NATS.ReconnectWait == 0 {
		config.NATS.ReconnectWait = 2 * time.Second
	}
	if config.Checkpoint.PositionFile == "" {
		config.Checkpoint.PositionFile = "position.checkpoint"
	}

	return &config, nil
}
