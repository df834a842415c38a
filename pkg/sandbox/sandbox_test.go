package sandbox

import (
	"bytes"
	"testing"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/require"
)

func TestClassifyDockerExit(t *testing.T) {
	require.Equal(t, ClassSuccess, classifyDockerExit(0, false))
	require.Equal(t, ClassRuntimeError, classifyDockerExit(1, false))
	require.Equal(t, ClassResourceExceeded, classifyDockerExit(137, false))
	require.Equal(t, ClassTimeout, classifyDockerExit(137, true), "a timed-out kill is a timeout, never resource-exceeded")
	require.Equal(t, ClassTimeout, classifyDockerExit(0, true))
}

func TestSplitDockerLogs(t *testing.T) {
	var multiplexed bytes.Buffer
	stdout := stdcopy.NewStdWriter(&multiplexed, stdcopy.Stdout)
	stderr := stdcopy.NewStdWriter(&multiplexed, stdcopy.Stderr)

	_, err := stdout.Write([]byte("42\n"))
	require.NoError(t, err)
	_, err = stderr.Write([]byte("warning: deprecated\n"))
	require.NoError(t, err)

	out, errOut, err := splitDockerLogs(&multiplexed)
	require.NoError(t, err)
	require.Equal(t, "42\n", out)
	require.Equal(t, "warning: deprecated\n", errOut)
}

func TestDockerLanguageProfilesCoverClosedSet(t *testing.T) {
	for _, language := range []string{"javascript", "python", "java", "cpp"} {
		profile, ok := dockerLanguages[language]
		require.True(t, ok, language)
		require.NotEmpty(t, profile.Image)
		require.NotEmpty(t, profile.FileName)
		require.NotEmpty(t, profile.Command)
	}
	_, ok := dockerLanguages["sql"]
	require.False(t, ok, "sql runs in the schema sandbox, not a container")
}
