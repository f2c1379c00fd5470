package integrations

import "fmt"

// ValidateArgs checks args against a JSON Schema object fragment: every
// name in "required" must be present, and every present argument with a
// declared property type must match it. Unknown arguments pass through.
func ValidateArgs(schema map[string]any, args map[string]any) error {
	if schema == nil {
		return nil
	}

	if required, ok := schema["required"].([]string); ok {
		for _, name := range required {
			if _, present := args[name]; !present {
				return fmt.Errorf("missing required argument %q", name)
			}
		}
	} else if required, ok := schema["required"].([]any); ok {
		for _, n := range required {
			name, _ := n.(string)
			if _, present := args[name]; name != "" && !present {
				return fmt.Errorf("missing required argument %q", name)
			}
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for name, raw := range args {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		want, _ := prop["type"].(string)
		if want == "" {
			continue
		}
		if err := checkType(name, want, raw); err != nil {
			return err
		}
	}
	return nil
}

func checkType(name, want string, value any) error {
	ok := true
	switch want {
	case "string":
		_, ok = value.(string)
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
		default:
			ok = false
		}
	case "integer":
		switch v := value.(type) {
		case int, int64:
		case float64:
			ok = v == float64(int64(v))
		default:
			ok = false
		}
	case "boolean":
		_, ok = value.(bool)
	case "array":
		_, ok = value.([]any)
	case "object":
		_, ok = value.(map[string]any)
	}
	if !ok {
		return fmt.Errorf("argument %q must be a %s", name, want)
	}
	return nil
}
