package definition

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes and validates a JSON definition document. The returned
// definition is nil whenever validation errors are returned.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}
	if errs := Validate(&def); len(errs) > 0 {
		return nil, errs
	}
	return &def, nil
}

// ParseYAML decodes and validates a YAML definition document. The YAML is
// normalized through JSON so both formats share one decode path.
func ParseYAML(data []byte) (*Definition, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize definition: %w", err)
	}
	return Parse(jsonData)
}

// ParseBytes picks the decoder from the file name extension. Unrecognized
// extensions fall back to JSON.
func ParseBytes(name string, data []byte) (*Definition, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Parse(data)
	}
}
