package functioncall

// unsupportedKeys are the JSON-Schema fields the Gemini-style function
// declaration editor does not understand and that must be stripped before
// a tool's parameters schema is handed to the browser facade.
var unsupportedKeys = map[string]bool{
	"strict": true,
	"minimum": true,
	"maximum": true,
	"pattern": true,
	"minLength": true,
	"maxLength": true,
	"minItems": true,
	"maxItems": true,
	"$schema": true,
	"$id": true,
	"$ref": true,
}

// ConvertSchema recursively strips unsupported keywords from a JSON-Schema
// object, including inside "properties" and "items".
func ConvertSchema(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	out := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		if unsupportedKeys[k] {
			continue
		}
		switch val := v.(type) {
		case map[string]interface{}:
			out[k] = ConvertSchema(val)
		case []interface{}:
			out[k] = convertSchemaList(val)
		default:
			out[k] = v
		}
	}
	return out
}

func convertSchemaList(items []interface{}) []interface{} {
	out := make([]interface{}, len(items))
	for i, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			out[i] = ConvertSchema(m)
		} else {
			out[i] = item
		}
	}
	return out
}
