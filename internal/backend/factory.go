package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/amqp"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/events"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/store"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/store/memory"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/store/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend. The repository is wrapped
// with timeouts and retries; the notifier is AMQP when a URL is configured
// and an in-process broker otherwise.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	case MemoryBackend:
		result, err = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	result.Repository = store.WithRetry(result.Repository, store.RetryConfig{
		Timeout:  config.PersistTimeout,
		Attempts: config.PersistRetries,
	})

	notifier, closeNotifier, err := f.createNotifier(ctx, config)
	if err != nil {
		if result.Cleanup != nil {
			_ = result.Cleanup()
		}
		return nil, err
	}
	result.Notifier = notifier
	result.Cleanup = chain(closeNotifier, result.Cleanup)
	return result, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := sqlite.NewRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Repository: repo,
		Ping:       repo.Ping,
		Cleanup:    repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	if config.DataFile == "" {
		f.logger.Info("Initialized memory backend without persistence")
		return &BackendResult{Repository: memory.New()}, nil
	}

	st, err := memory.NewFromFile(config.DataFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
	}

	f.logger.Info("Initialized memory backend", "data_file", config.DataFile)

	return &BackendResult{Repository: st}, nil
}

func (f *DefaultFactory) createNotifier(ctx context.Context, config Config) (events.Notifier, CleanupFunc, error) {
	if config.AMQPURL == "" {
		f.logger.InfoContext(ctx, "Using in-process change notifications")
		return events.NewBroker(), nil, nil
	}

	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client, client.Close, nil
}

// chain runs every non-nil cleanup and joins their errors.
func chain(fns ...CleanupFunc) CleanupFunc {
	return func() error {
		var errs []error
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
