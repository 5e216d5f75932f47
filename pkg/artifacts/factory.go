package artifacts

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

// StoreType represents the type of asset storage backend.
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeFS       StoreType = "fs"
	StoreTypeS3       StoreType = "s3"
	StoreTypeGCS      StoreType = "gcs"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeSQLite   StoreType = "sqlite"
	StoreTypePostgres StoreType = "postgres"
	StoreTypePebble   StoreType = "pebble"
)

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"` // Optional key prefix
}

// Config selects and configures a Store backend.
type Config struct {
	Type    StoreType `yaml:"type"`
	DataDir string    `yaml:"data_dir"`

	S3    S3StoreConfig    `yaml:"s3"`
	GCS   GCSStoreConfig   `yaml:"gcs"`
	Redis RedisStoreConfig `yaml:"redis"`

	// SQLDSN is the database for the sqlite and postgres backends. For
	// sqlite it defaults to <DataDir>/assets.db.
	SQLDSN string `yaml:"sql_dsn"`
	// PebbleDir defaults to <DataDir>/assets.pebble.
	PebbleDir string `yaml:"pebble_dir"`
}

// NewStore creates the Store described by cfg. Backends holding
// connections or file handles also implement io.Closer.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	storeType := cfg.Type
	if storeType == "" {
		storeType = StoreTypeFS
	}
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "data"
	}

	switch storeType {
	case StoreTypeMemory:
		return NewMemoryStore(), nil
	case StoreTypeFS:
		return NewFileStore(filepath.Join(dataDir, "assets"))
	case StoreTypeS3:
		if cfg.S3.Bucket == "" {
			return nil, errors.New("ARTIFACT_S3_BUCKET is required for S3 storage")
		}
		s3cfg := cfg.S3
		if s3cfg.Region == "" {
			s3cfg.Region = "us-east-1"
		}
		return NewS3Store(ctx, s3cfg)
	case StoreTypeGCS:
		return newGCSStore(ctx, cfg.GCS)
	case StoreTypeRedis:
		if cfg.Redis.Addr == "" {
			return nil, errors.New("ARTIFACT_REDIS_ADDR is required for Redis storage")
		}
		return NewRedisStore(ctx, cfg.Redis)
	case StoreTypeSQLite:
		dsn := cfg.SQLDSN
		if dsn == "" {
			dsn = filepath.Join(dataDir, "assets.db")
		}
		return OpenSQLStore(ctx, DialectSQLite, dsn)
	case StoreTypePostgres:
		if cfg.SQLDSN == "" {
			return nil, errors.New("ARTIFACT_SQL_DSN is required for postgres storage")
		}
		return OpenSQLStore(ctx, DialectPostgres, cfg.SQLDSN)
	case StoreTypePebble:
		dir := cfg.PebbleDir
		if dir == "" {
			dir = filepath.Join(dataDir, "assets.pebble")
		}
		return OpenPebbleStore(dir, &pebble.Options{})
	default:
		return nil, fmt.Errorf("unsupported artifact storage type: %s", storeType)
	}
}
