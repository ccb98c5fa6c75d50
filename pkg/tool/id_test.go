package tool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateOrderNo_Format(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	no := GenerateOrderNo(now)
	require.Len(t, no, 1+14+8)
	require.Equal(t, "M20260314150926", no[:15])
}

func TestGenerateShareCode_Format(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code := GenerateShareCode()
		require.Len(t, code, 13)
		require.Equal(t, byte('R'), code[0])
		require.False(t, seen[code])
		seen[code] = true
	}
}
