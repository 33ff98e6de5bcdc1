// internal/utils/appnumber_test.go
package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateApplicationNumberFormat(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	number, err := GenerateApplicationNumber(now)
	require.NoError(t, err)

	assert.Len(t, number, 13)
	assert.Equal(t, "LA260831", number[:8])
	for _, r := range number[8:] {
		assert.True(t, r >= '0' && r <= '9', "suffix must be numeric, got %q", number)
	}
}
