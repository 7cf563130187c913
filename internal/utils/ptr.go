// Package utils holds the small pointer helpers shared by the bracket and store code.
package utils

import "strings"

func Ptr[T any](v T) *T {
	return &v
}

// Deref reads v, treating nil as the zero value.
func Deref[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

// Same reports whether a and b are both nil or point at equal values.
func Same[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Label trims s and returns nil when nothing is left.
func Label(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// LabelOf is Label for an optional input.
func LabelOf(s *string) *string {
	if s == nil {
		return nil
	}
	return Label(*s)
}
