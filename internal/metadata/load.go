package metadata

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"

	"github.com/zeebo/xxh3"

	"anchorgen/pkg/domain"
)

// Loaded is a model with its manifest sources attached.
type Loaded struct {
	Model *domain.Model
	// Manifest lists the entity names found in sources.yaml, per kind.
	Manifest map[domain.Kind][]string
	// Fingerprint is an xxh3 digest over the raw model and sources documents.
	Fingerprint string
}

// Parse builds a Loaded model from raw documents. sourcesYAML may be empty
// when every mapping is embedded in the model XML.
func Parse(modelXML, sourcesYAML []byte) (*Loaded, error) {
	model, err := ParseModel(bytes.NewReader(modelXML))
	if err != nil {
		return nil, err
	}
	manifest, err := ParseManifest(bytes.NewReader(sourcesYAML))
	if err != nil {
		return nil, err
	}
	manifest.Apply(model)
	return &Loaded{Model: model, Manifest: manifest.Entries(), Fingerprint: Fingerprint(modelXML, sourcesYAML)}, nil
}

// Fingerprint digests the model inputs. The separator keeps
// ("ab", "c") and ("a", "bc") apart.
func Fingerprint(modelXML, sourcesYAML []byte) string {
	h := xxh3.New()
	_, _ = h.Write(modelXML)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(sourcesYAML)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Load reads the model and optional sources file from disk.
func Load(modelPath, sourcesPath string) (*Loaded, error) {
	return load(os.ReadFile, modelPath, sourcesPath)
}

// LoadFS reads the model and optional sources file from fsys.
func LoadFS(fsys fs.FS, modelPath, sourcesPath string) (*Loaded, error) {
	return load(func(name string) ([]byte, error) { return fs.ReadFile(fsys, name) }, modelPath, sourcesPath)
}

func load(read func(string) ([]byte, error), modelPath, sourcesPath string) (*Loaded, error) {
	modelXML, err := read(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", modelPath, err)
	}
	var sourcesYAML []byte
	if sourcesPath != "" {
		if sourcesYAML, err = read(sourcesPath); err != nil {
			return nil, fmt.Errorf("read sources %s: %w", sourcesPath, err)
		}
	}
	loaded, err := Parse(modelXML, sourcesYAML)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", modelPath, err)
	}
	return loaded, nil
}
