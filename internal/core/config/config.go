package config

import (
	"github.com/minhqn/ocrflow/internal/core/domain"
	"github.com/minhqn/ocrflow/internal/history/postgres"
	redisarchive "github.com/minhqn/ocrflow/internal/history/redis"
	"github.com/minhqn/ocrflow/internal/processing"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig        `yaml:"server"`
	Engine    domain.JobConfig    `yaml:"engine"`
	Processor processing.Config   `yaml:"processor"`
	Database  postgres.Config     `yaml:"database"`
	Redis     redisarchive.Config `yaml:"redis"`
	Logging   LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
