package backend

import (
	"fmt"
	"time"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/config"
)

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Memory specific; empty keeps the ledger in-process only
	DataFile string

	// SQLite specific
	SQLiteDBPath string

	// Change notifications; empty URL selects the in-process broker
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	PersistTimeout time.Duration
	PersistRetries int
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:           backendType,
		DataFile:       appConfig.DataFile,
		SQLiteDBPath:   appConfig.SQLiteDBPath,
		AMQPURL:        appConfig.AMQPURL,
		AMQPExchange:   appConfig.AMQPExchange,
		AMQPQueue:      appConfig.AMQPQueue,
		PersistTimeout: appConfig.PersistTimeout,
		PersistRetries: appConfig.PersistRetries,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	if c.AMQPURL != "" && c.AMQPExchange == "" {
		return fmt.Errorf("AMQP exchange is required when AMQP URL is set")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, MemoryBackend}
}
