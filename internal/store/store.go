// Package store opens the configured credential store backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"gitlab.bluewillows.net/root/ddnsweaver/internal/credential"
	"gitlab.bluewillows.net/root/ddnsweaver/internal/store/dynamodb"
	"gitlab.bluewillows.net/root/ddnsweaver/internal/store/file"
	"gitlab.bluewillows.net/root/ddnsweaver/internal/store/memory"
	"gitlab.bluewillows.net/root/ddnsweaver/internal/store/sqlite"
)

// Backend type names.
const (
	TypeDynamoDB = "dynamodb"
	TypeSQLite   = "sqlite"
	TypeFile     = "file"
	TypeMemory   = "memory"
)

// ErrNotConfigured is returned by every call on a store whose identifier
// (table name or path) was not provided.
var ErrNotConfigured = errors.New("credential store is not configured")

// Config selects and locates a store backend.
type Config struct {
	Type   string
	Table  string // dynamodb
	Region string // dynamodb, optional
	Path   string // sqlite, file
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Open builds the store named by cfg.Type. A missing table or path does not
// fail startup: the returned store rejects every call with ErrNotConfigured.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (credential.Store, io.Closer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Type {
	case TypeDynamoDB, "":
		if cfg.Table == "" {
			return unconfigured(logger, TypeDynamoDB, "table")
		}
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("loading AWS configuration: %w", err)
		}
		s, err := dynamodb.New(awsdynamodb.NewFromConfig(awsCfg), cfg.Table)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using dynamodb credential store", slog.String("table", cfg.Table))
		return s, nopCloser{}, nil

	case TypeSQLite:
		if cfg.Path == "" {
			return unconfigured(logger, TypeSQLite, "path")
		}
		db, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		logger.Info("using sqlite credential store", slog.String("path", cfg.Path))
		s := sqlite.NewStore(db)
		return s, s, nil

	case TypeFile:
		if cfg.Path == "" {
			return unconfigured(logger, TypeFile, "path")
		}
		s, err := file.New(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening file store: %w", err)
		}
		logger.Info("using file credential store", slog.String("path", cfg.Path))
		return s, nopCloser{}, nil

	case TypeMemory:
		logger.Warn("using in-memory credential store; records are lost on exit")
		return memory.New(), nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}

func unconfigured(logger *slog.Logger, typeName, field string) (credential.Store, io.Closer, error) {
	logger.Warn("credential store is not configured; update requests will fail",
		slog.String("type", typeName),
		slog.String("missing", field),
	)
	return Unconfigured{}, nopCloser{}, nil
}

// Unconfigured fails every call with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) Get(context.Context, string) (credential.Record, error) {
	return credential.Record{}, ErrNotConfigured
}

func (Unconfigured) Put(context.Context, credential.Record) error {
	return ErrNotConfigured
}

func (Unconfigured) Ping(context.Context) error {
	return ErrNotConfigured
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
