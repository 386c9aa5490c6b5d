// Package blob is the artifact store used to publish generated SQL. It
// re-exports the core abstractions and is the only package allowed to import
// the infra-backed implementations.
package blob

import (
	"errors"

	"anchorgen/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrExists is returned when writing an existing key without Overwrite.
	ErrExists = core.ErrExists
	// ErrNotFound is returned for unknown keys.
	ErrNotFound = core.ErrNotFound
)

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
