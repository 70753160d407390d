package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	cmds := commands()
	for _, name := range []string{"migrate", "db-seed", "job-stats", "jobs", "cancel-job"} {
		cmd, ok := cmds[name]
		require.True(t, ok, "command %q missing", name)
		assert.Equal(t, name, cmd.name)
		assert.NotEmpty(t, cmd.description)
		assert.NotNil(t, cmd.run)
	}
}

func TestPrintUsageListsEveryCommand(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)

	out := buf.String()
	for name := range commands() {
		assert.Contains(t, out, name)
	}
}
