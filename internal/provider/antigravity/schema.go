package antigravity

import "fmt"

// typeMap converts JSON Schema types to the GenAI uppercase names.
var typeMap = map[string]string{
	"string":  "STRING",
	"number":  "NUMBER",
	"integer": "INTEGER",
	"boolean": "BOOLEAN",
	"array":   "ARRAY",
	"object":  "OBJECT",
}

// SanitizeSchema converts a JSON Schema parameter definition into the
// subset the GenAI API accepts: uppercase type names, no composition
// keywords, no validation keywords. anyOf/oneOf collapse to the first
// non-null variant, and required fields missing from properties are
// dropped.
func SanitizeSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	result := map[string]any{}

	rawType := schema["type"]
	if list, ok := rawType.([]any); ok {
		// ["string", "null"] collapses to "string"
		rawType = "string"
		for _, t := range list {
			if s, ok := t.(string); ok && s != "null" {
				rawType = s
				break
			}
		}
	}
	if s, ok := rawType.(string); ok {
		if mapped, ok := typeMap[s]; ok {
			result["type"] = mapped
		}
	}

	for _, key := range []string{"anyOf", "oneOf"} {
		variants, ok := schema[key].([]any)
		if !ok || len(variants) == 0 {
			continue
		}
		for _, v := range variants {
			vm, ok := v.(map[string]any)
			if !ok || vm["type"] == "null" {
				continue
			}
			for k, val := range SanitizeSchema(vm) {
				result[k] = val
			}
			break
		}
		if _, ok := result["type"]; !ok {
			result["type"] = "STRING"
		}
	}

	if desc, ok := schema["description"]; ok && desc != nil {
		result["description"] = fmt.Sprint(desc)
	}

	if enum, ok := schema["enum"].([]any); ok && len(enum) > 0 {
		values := make([]string, len(enum))
		for i, e := range enum {
			values[i] = fmt.Sprint(e)
		}
		result["enum"] = values
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		sanitized := map[string]any{}
		for name, propSchema := range props {
			pm, ok := propSchema.(map[string]any)
			if !ok {
				continue
			}
			if s := SanitizeSchema(pm); s != nil {
				sanitized[name] = s
			}
		}
		if len(sanitized) > 0 {
			result["properties"] = sanitized
		}
	}

	if req, ok := schema["required"].([]any); ok {
		names := make([]string, 0, len(req))
		props, haveProps := result["properties"].(map[string]any)
		for _, r := range req {
			name, ok := r.(string)
			if !ok {
				continue
			}
			if haveProps {
				if _, exists := props[name]; !exists {
					continue
				}
			}
			names = append(names, name)
		}
		if len(names) > 0 {
			result["required"] = names
		}
	}

	if items, ok := schema["items"].(map[string]any); ok {
		if s := SanitizeSchema(items); s != nil {
			result["items"] = s
		}
	}

	if _, ok := result["type"]; !ok {
		if _, hasProps := result["properties"]; hasProps {
			result["type"] = "OBJECT"
		} else {
			result["type"] = "STRING"
		}
	}

	return result
}
