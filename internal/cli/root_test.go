package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--version"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		assert.Contains(t, output.String(), "opsagent version")
		assert.Contains(t, output.String(), GetVersion())
	})

	t.Run("help flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "orchestration")
		assert.Contains(t, helpText, "run")
		assert.Contains(t, helpText, "tools")
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
	})
}

func TestRunCommandFlags(t *testing.T) {
	deadlineFlag := runCmd.Flags().Lookup("deadline")
	require.NotNil(t, deadlineFlag)
	assert.Equal(t, "0s", deadlineFlag.DefValue)

	jsonFlag := runCmd.Flags().Lookup("json")
	require.NotNil(t, jsonFlag)
	assert.Equal(t, "false", jsonFlag.DefValue)

	metricsFlag := runCmd.Flags().Lookup("metrics-addr")
	require.NotNil(t, metricsFlag)
	assert.Equal(t, "", metricsFlag.DefValue)
}

func TestRunCommandRequiresTask(t *testing.T) {
	err := runCmd.Args(runCmd, []string{})
	assert.Error(t, err)

	err = runCmd.Args(runCmd, []string{"what is the weather"})
	assert.NoError(t, err)
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEmpty(t, version)
	assert.True(t, strings.HasPrefix(version, "0."))
}
