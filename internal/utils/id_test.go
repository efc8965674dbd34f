package utils

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewID()
		require.Len(t, id, 24)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestNewRendezvousIDFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^user_42_[0-9a-f]{6}$`)

	first := NewRendezvousID(42)
	require.Regexp(t, pattern, first)

	// Fresh on every call.
	second := NewRendezvousID(42)
	require.NotEqual(t, first, second)
}
