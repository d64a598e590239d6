package config

import (
	"fmt"
	"strconv"
)

// Environment variables that override file settings.
const (
	EnvStorageDriver     = "MESHCORE_STORAGE_DRIVER"
	EnvSQLitePath        = "MESHCORE_SQLITE_PATH"
	EnvPostgresDSN       = "MESHCORE_POSTGRES_DSN"
	EnvBadgerDir         = "MESHCORE_BADGER_DIR"
	EnvBlobDriver        = "MESHCORE_BLOB_DRIVER"
	EnvBlobRoot          = "MESHCORE_BLOB_ROOT"
	EnvS3Bucket          = "MESHCORE_S3_BUCKET"
	EnvS3Region          = "MESHCORE_S3_REGION"
	EnvS3Endpoint        = "MESHCORE_S3_ENDPOINT"
	EnvS3PathStyle       = "MESHCORE_S3_PATH_STYLE"
	EnvS3AccessKeyID     = "MESHCORE_S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "MESHCORE_S3_SECRET_ACCESS_KEY"
	EnvLogLevel          = "MESHCORE_LOG_LEVEL"
	EnvRanks             = "MESHCORE_RANKS"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays the MESHCORE_* variables found by lookup onto cfg.
// Empty values are ignored.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str(EnvStorageDriver, &cfg.Storage.Driver)
	str(EnvSQLitePath, &cfg.Storage.SQLitePath)
	str(EnvPostgresDSN, &cfg.Storage.PostgresDSN)
	str(EnvBadgerDir, &cfg.Storage.BadgerDir)
	str(EnvBlobDriver, &cfg.Blob.Driver)
	str(EnvBlobRoot, &cfg.Blob.Root)
	str(EnvS3Bucket, &cfg.Blob.S3.Bucket)
	str(EnvS3Region, &cfg.Blob.S3.Region)
	str(EnvS3Endpoint, &cfg.Blob.S3.Endpoint)
	str(EnvS3AccessKeyID, &cfg.Blob.S3.AccessKeyID)
	str(EnvS3SecretAccessKey, &cfg.Blob.S3.SecretAccessKey)
	str(EnvLogLevel, &cfg.Telemetry.LogLevel)

	if v, ok := lookup(EnvS3PathStyle); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvS3PathStyle, err)
		}
		cfg.Blob.S3.PathStyle = b
	}
	if v, ok := lookup(EnvRanks); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRanks, err)
		}
		cfg.Distribution.Ranks = n
	}
	return nil
}
