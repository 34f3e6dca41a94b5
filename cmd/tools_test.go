package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/cherry/internal/mcp"
)

func TestToolsCmd_NoServers(t *testing.T) {
	out, err := executeCommand(t, "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "No MCP tools available.")
}

func TestPrintTools(t *testing.T) {
	var out bytes.Buffer
	err := printTools(&out, []mcp.ToolSummary{
		{Name: "files:read_file", Description: "Read a file"},
		{Name: "files:write_file", Description: "Write a file"},
	})
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "TOOL")
	assert.Contains(t, string(lines[1]), "files:read_file")
	assert.Contains(t, string(lines[2]), "Write a file")
}
