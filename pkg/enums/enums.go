// Package enums holds the string-backed vocabularies shared by the models,
// the database enum types and the wire payloads.
package enums

import (
	"fmt"
	"slices"
)

func known[T ~string](v T, set []T) bool {
	return slices.Contains(set, v)
}

func parse[T ~string](kind, raw string, set []T) (T, error) {
	if v := T(raw); known(v, set) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}

// Check returns an error naming kind when v is not a valid value.
func Check[T interface {
	~string
	IsValid() bool
}](kind string, v T) error {
	if v.IsValid() {
		return nil
	}
	return fmt.Errorf("invalid %s %q", kind, string(v))
}
