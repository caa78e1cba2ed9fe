package routing

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a routing table.
type File struct {
	Features []string  `yaml:"features"`
	Mappings []Mapping `yaml:"mappings"`
}

// Load decodes a routing table from YAML. Unknown keys are rejected.
func Load(r io.Reader) (*Table, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("routing table is empty")
		}
		return nil, fmt.Errorf("decode routing table: %w", err)
	}
	if len(f.Mappings) == 0 {
		return nil, fmt.Errorf("routing table has no mappings")
	}
	return NewTable(f.Mappings, f.Features)
}

// LoadFile reads path, or returns the built-in table when path is empty.
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
