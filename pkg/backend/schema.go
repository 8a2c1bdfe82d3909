package backend

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var defaultSchemas = map[string]string{
	PathStates:     "schemas/geo_states.json",
	PathDistricts:  "schemas/geo_districts.json",
	PathCities:     "schemas/geo_cities.json",
	PathInsights:   "schemas/insights.json",
	PathExecutive:  "schemas/executive_summary.json",
	PathEfficiency: "schemas/process_efficiency.json",
}

// SchemaValidator checks backend responses against embedded JSON schemas.
// Paths without a schema pass unchanged.
type SchemaValidator struct {
	mu       sync.RWMutex
	files    map[string]string
	compiled map[string]*jsonschema.Schema
}

// NewSchemaValidator builds a validator for the known backend paths.
func NewSchemaValidator() *SchemaValidator {
	files := make(map[string]string, len(defaultSchemas))
	for path, file := range defaultSchemas {
		files[path] = file
	}
	return &SchemaValidator{
		files:    files,
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Paths lists the backend paths that carry a schema.
func (v *SchemaValidator) Paths() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return sortedFieldNames(v.files)
}

// Validate checks a decoded response body for path.
func (v *SchemaValidator) Validate(path string, payload any) error {
	schema, err := v.schemaFor(path)
	if err != nil {
		return err
	}
	if schema == nil {
		return nil
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("backend: response for %s failed validation: %w", path, err)
	}
	return nil
}

func (v *SchemaValidator) schemaFor(path string) (*jsonschema.Schema, error) {
	v.mu.RLock()
	schema, ok := v.compiled[path]
	file, known := v.files[path]
	v.mu.RUnlock()
	if ok {
		return schema, nil
	}
	if !known {
		return nil, nil
	}
	data, err := schemaFS.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("backend: read schema %s: %w", file, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(file, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("backend: load schema %s: %w", file, err)
	}
	compiled, err := compiler.Compile(file)
	if err != nil {
		return nil, fmt.Errorf("backend: compile schema %s: %w", file, err)
	}
	v.mu.Lock()
	v.compiled[path] = compiled
	v.mu.Unlock()
	return compiled, nil
}
