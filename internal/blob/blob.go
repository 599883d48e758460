// Package blob selects and constructs the artifact store used by board exports.
package blob

import (
	"context"
	"fmt"

	"sampleflow/internal/blob/core"
	"sampleflow/internal/infra/blob/fs"
	memorystore "sampleflow/internal/infra/blob/memory"
	infraS3 "sampleflow/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// S3Config configures the S3 driver.
	S3Config = infraS3.Config
)

// Driver identifiers.
const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// Errors shared by every driver.
var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
)

// Config selects a driver and carries its settings.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open constructs the store named by cfg.Driver. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memorystore.New() }

// NewFilesystem returns a store rooted at root, creating the directory.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// NewS3 returns an S3-compatible store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return infraS3.New(ctx, cfg) }
