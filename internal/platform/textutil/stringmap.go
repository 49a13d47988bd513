package textutil

import "strings"

// CompactStringMap trims keys and values and drops entries where either ends up empty.
// It returns nil when nothing survives, which keeps message attributes and metadata unset.
func CompactStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
