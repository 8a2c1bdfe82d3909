package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaValidatorKnownPaths(t *testing.T) {
	v := NewSchemaValidator()
	require.Contains(t, v.Paths(), PathStates)

	assert.NoError(t, v.Validate(PathStates, map[string]any{"states": []any{"Goa"}}))
	assert.Error(t, v.Validate(PathStates, map[string]any{"states": "Goa"}))
	assert.Error(t, v.Validate(PathCities, map[string]any{}))
	assert.NoError(t, v.Validate(PathEfficiency, map[string]any{
		"lag_buckets": []any{map[string]any{"bucket": "0-7", "count": 3.0}},
	}))
}

func TestSchemaValidatorUnknownPathPasses(t *testing.T) {
	v := NewSchemaValidator()
	assert.NoError(t, v.Validate("/kpi/summary", []any{"anything"}))
}
