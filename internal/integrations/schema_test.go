package integrations

import "testing"

func TestValidateArgs(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":  map[string]any{"type": "string"},
			"limit":  map[string]any{"type": "integer"},
			"price":  map[string]any{"type": "number"},
			"active": map[string]any{"type": "boolean"},
		},
		"required": []string{"query"},
	}

	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{"valid minimal", map[string]any{"query": "shoes"}, false},
		{"valid full", map[string]any{"query": "shoes", "limit": float64(5), "price": 9.99, "active": true}, false},
		{"missing required", map[string]any{"limit": float64(5)}, true},
		{"wrong string type", map[string]any{"query": 42}, true},
		{"fractional integer", map[string]any{"query": "x", "limit": 2.5}, true},
		{"whole float as integer", map[string]any{"query": "x", "limit": float64(3)}, false},
		{"wrong boolean type", map[string]any{"query": "x", "active": "yes"}, true},
		{"unknown args pass", map[string]any{"query": "x", "extra": "ignored"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArgs(schema, tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateArgsNilSchema(t *testing.T) {
	if err := ValidateArgs(nil, map[string]any{"anything": 1}); err != nil {
		t.Errorf("nil schema should accept anything, got %v", err)
	}
}

func TestValidateArgsAnyRequiredList(t *testing.T) {
	// Schemas decoded from JSON carry []any, not []string.
	schema := map[string]any{
		"type":     "object",
		"required": []any{"order_id"},
	}
	if err := ValidateArgs(schema, map[string]any{}); err == nil {
		t.Error("expected missing required argument error")
	}
	if err := ValidateArgs(schema, map[string]any{"order_id": "#1001"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
