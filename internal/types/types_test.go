package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolBinary(t *testing.T) {
	assert.Equal(t, "forge", ToolBuilder.Binary())
	assert.Equal(t, "anvil", ToolNodeDaemon.Binary())
	assert.Equal(t, "cast", ToolQueryClient.Binary())
	assert.Equal(t, "", Tool("solc").Binary())
}

func TestParseTool(t *testing.T) {
	for _, raw := range []string{"builder", "forge", " FORGE "} {
		tool, err := ParseTool(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, ToolBuilder, tool)
	}

	tool, err := ParseTool("anvil")
	require.NoError(t, err)
	assert.Equal(t, ToolNodeDaemon, tool)

	_, err = ParseTool("bash")
	assert.Error(t, err)
}

func TestAllToolsValid(t *testing.T) {
	for _, tool := range AllTools {
		assert.True(t, tool.Valid(), tool)
	}
	assert.False(t, Tool("").Valid())
}
