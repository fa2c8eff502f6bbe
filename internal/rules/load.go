package rules

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

//go:embed default.yaml
var defaultTable []byte

// Default returns the built-in tables.
func Default() (Table, error) {
	t, err := Parse(defaultTable)
	if err != nil {
		return Table{}, fmt.Errorf("parse default rules: %w", err)
	}
	return t, nil
}

// Load reads tables from path, or the built-in tables when path is empty.
func Load(path string) (Table, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read rules file: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return Table{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a YAML table. Unknown keys are rejected.
func Parse(data []byte) (Table, error) {
	var t Table
	if err := yaml.UnmarshalWithOptions(data, &t, yaml.Strict()); err != nil {
		return Table{}, fmt.Errorf("decode rules: %w", err)
	}
	if err := Validate(t); err != nil {
		return Table{}, err
	}
	return t, nil
}
