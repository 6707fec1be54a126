package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPercent(t *testing.T) {
	require.Equal(t, 0.0, Percent(5, 0))
	require.Equal(t, 0.0, Percent(0, 10))
	require.Equal(t, 50.0, Percent(1, 2))
	require.Equal(t, 100.0, Percent(11, 11))
}

func TestGetenvDefault(t *testing.T) {
	t.Setenv("UTILS_TEST_KEY", "set")
	require.Equal(t, "set", GetenvDefault("UTILS_TEST_KEY", "fallback"))
	require.Equal(t, "fallback", GetenvDefault("UTILS_TEST_KEY_UNSET", "fallback"))
}
