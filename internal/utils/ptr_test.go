package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabel(t *testing.T) {
	tests := []struct {
		in   *string
		want *string
	}{
		{in: nil, want: nil},
		{in: Ptr(""), want: nil},
		{in: Ptr(" \t "), want: nil},
		{in: Ptr(" -60kg "), want: Ptr("-60kg")},
		{in: Ptr("Senior Open"), want: Ptr("Senior Open")},
	}
	for _, tt := range tests {
		t.Run(Deref(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, LabelOf(tt.in))
		})
	}
}

func TestSame(t *testing.T) {
	assert.True(t, Same[int](nil, nil))
	assert.True(t, Same(Ptr(3), Ptr(3)))
	assert.False(t, Same(Ptr(3), nil))
	assert.False(t, Same(Ptr("a"), Ptr("b")))
	assert.Equal(t, 0, Deref[int](nil))
}
