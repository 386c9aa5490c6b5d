// Package core defines the artifact store abstraction shared by the blob
// backends. Generated SQL bundles and run manifests are written through it.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/zeebo/xxh3"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverFilesystem stores artifacts below a local directory.
	DriverFilesystem Driver = "fs"
	// DriverS3 stores artifacts in an S3 / MinIO compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps artifacts in process memory.
	DriverMemory Driver = "memory"
)

// MetaChecksum is the metadata key carrying the xxh3 digest of the content.
const MetaChecksum = "xxh3"

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
	// Overwrite replaces an existing blob instead of failing with ErrExists.
	Overwrite bool
}

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	Checksum     string            `json:"checksum,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store provides a thin S3-like abstraction used by higher layers.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

var (
	// ErrExists is returned by Put when the key is taken and Overwrite is unset.
	ErrExists = errors.New("blobstore: blob already exists")
	// ErrNotFound is returned by Get and Head for unknown keys.
	ErrNotFound = errors.New("blobstore: blob not found")
)

// Checksum returns the hex xxh3 digest stored under MetaChecksum.
func Checksum(b []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(b))
}

// WithChecksum returns a copy of md with the checksum of b added.
func WithChecksum(md map[string]string, b []byte) (map[string]string, string) {
	sum := Checksum(b)
	out := CloneMetadata(md)
	if out == nil {
		out = make(map[string]string, 1)
	}
	out[MetaChecksum] = sum
	return out, sum
}

// CloneMetadata copies a metadata map; nil stays nil.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
