package configutil

import (
	"errors"
	"sort"
	"strings"
)

// Schema lists the keys a provider accepts in its settings block.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// ValidateSettings reports missing required keys and, unless AllowUnknown is set, unknown keys.
// Keys are compared case, underscore and hyphen insensitively.
func ValidateSettings(input map[string]any, schema Schema) error {
	allowed := make(map[string]bool, len(schema.Required)+len(schema.Optional))
	for _, k := range schema.Optional {
		allowed[normalizeKey(k)] = true
	}
	present := make(map[string]any, len(input))
	var unknown []string
	for k, v := range input {
		nk := normalizeKey(k)
		present[nk] = v
		if !allowed[nk] && !isRequired(schema.Required, nk) && !schema.AllowUnknown {
			unknown = append(unknown, k)
		}
	}
	var missing []string
	for _, k := range schema.Required {
		v, ok := present[normalizeKey(k)]
		if !ok || isEmptyValue(v) {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(unknown)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	if len(unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(unknown, ", "))
	}
	return errors.New(strings.Join(parts, "; "))
}

func isRequired(required []string, nk string) bool {
	for _, k := range required {
		if normalizeKey(k) == nk {
			return true
		}
	}
	return false
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
