package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLevels(t *testing.T) {
	local, err := New("local", false)
	require.NoError(t, err)
	assert.False(t, local.Core().Enabled(zap.DebugLevel))
	assert.True(t, local.Core().Enabled(zap.InfoLevel))

	prod, err := New("production", true)
	require.NoError(t, err)
	assert.True(t, prod.Core().Enabled(zap.DebugLevel))
}
