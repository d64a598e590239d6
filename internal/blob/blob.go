// Package blob selects a blob backend and re-exports the shared contract so
// callers need not import the backends directly.
package blob

import (
	"context"
	"fmt"

	"meshcore/internal/blob/core"
	"meshcore/internal/infra/blob/fs"
	"meshcore/internal/infra/blob/memory"
	"meshcore/internal/infra/blob/s3"
)

type (
	// Driver names a blob backend.
	Driver = core.Driver
	// PutOptions carries optional object attributes.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes a stored object.
	Info = core.Info
	// Store is implemented by every backend.
	Store = core.Store
	// S3Config configures the s3 driver.
	S3Config = s3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
)

// Config selects and configures a backend.
type Config struct {
	Driver Driver
	// Root is the directory of the fs driver.
	Root string
	S3   S3Config
}

// Open builds the store cfg names. An empty driver selects the filesystem.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		store, err := fs.New(cfg.Root)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverS3:
		store, err := s3.New(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
