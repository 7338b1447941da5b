package orchestrator

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefinitionVersion is the only graph file version understood by this build.
const DefinitionVersion = 1

// LoadDefinition loads a graph definition from a YAML file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}
	return ParseDefinition(data)
}

// ParseDefinition decodes a graph definition. Unknown fields are rejected.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to parse graph YAML: %w", err)
	}

	if def.Version != DefinitionVersion {
		return nil, fmt.Errorf("unsupported graph version: %d", def.Version)
	}
	if def.Name == "" {
		return nil, fmt.Errorf("graph name is required")
	}

	return &def, nil
}
