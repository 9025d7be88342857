package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_ShouldExit(t *testing.T) {
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	args := []string{"-h"}
	out := &bytes.Buffer{}

	err := run(out, args)

	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	args := []string{"--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}

	err := run(out, args)

	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_StartupError(t *testing.T) {
	// A config file with a syntax error must fail startup with a clean error.
	path := filepath.Join(t.TempDir(), "doorbot.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`server { port = `), 0600))

	err := run(&bytes.Buffer{}, []string{"-config", path})

	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to load configuration")
}
