// Package schema embeds the canonical Northwind anchor model used by the CLI
// defaults, the HTTP API demo mode and tests.
package schema

import (
	"embed"
	"sync"

	"anchorgen/internal/metadata"
)

// Paths of the Northwind documents inside Northwind.
const (
	NorthwindModel   = "northwind/model.xml"
	NorthwindSources = "northwind/sources.yaml"
)

// Northwind holds the Anchor Modeler XML and its sources.yaml.
//
//go:embed northwind/model.xml northwind/sources.yaml
var Northwind embed.FS

var (
	fpOnce sync.Once
	fp     string
	fpErr  error
)

// LoadNorthwind parses the embedded model. Each call returns a fresh model
// that the caller may modify.
func LoadNorthwind() (*metadata.Loaded, error) {
	return metadata.LoadFS(Northwind, NorthwindModel, NorthwindSources)
}

// NorthwindFingerprint returns the digest of the embedded documents.
func NorthwindFingerprint() (string, error) {
	fpOnce.Do(func() {
		var loaded *metadata.Loaded
		loaded, fpErr = LoadNorthwind()
		if fpErr == nil {
			fp = loaded.Fingerprint
		}
	})
	return fp, fpErr
}
