package services

import "encoding/json"

// encodeJSON serializes v for a schemaless text column. Failures degrade to
// an empty object so a bad payload never blocks a write.
func encodeJSON(v interface{}) string {
	if v == nil {
		return "{}"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// decodeObject parses a schemaless text column back into a map. Empty or
// malformed content degrades to an empty map.
func decodeObject(raw string) map[string]interface{} {
	if raw == "" {
		return map[string]interface{}{}
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return map[string]interface{}{}
	}
	return obj
}
