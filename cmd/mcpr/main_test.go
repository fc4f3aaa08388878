package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const protocolData = "../../studio/testdata/protocol.yaml"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	err := rootCmd.Execute()
	return out.String() + errOut.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	replay := filepath.Join(dir, "a.mcpr")

	out, err := execute(t, "create", "--out", replay, "--version", "47",
		"--packet", "0:0x0f:010c",
		"--packet", "100:0x21:dead",
		"--packet", "250:0:07",
		"--player", "069a79f4-44e9-4726-a5be-fca90e38aaf5")
	require.NoError(t, err)
	assert.Contains(t, out, "(3 packets)")

	out, err = execute(t, "validate", "-v", replay)
	require.NoError(t, err)
	assert.Contains(t, out, "✅ a.mcpr: valid")
	assert.Contains(t, out, "protocol 47")

	out, err = execute(t, "inspect", "--data", protocolData, replay)
	require.NoError(t, err)
	assert.Contains(t, out, "spawn_mob")
	assert.Contains(t, out, "map_chunk")
	assert.Contains(t, out, "recording.tmcpr")

	outDir := filepath.Join(dir, "out")
	out, err = execute(t, "convert", "--data", protocolData, "--target", "1.9", "--out-dir", outDir, replay)
	require.NoError(t, err)
	assert.Contains(t, out, "protocol 47 -> 107")
	assert.FileExists(t, filepath.Join(outDir, "a-1.9.mcpr"))

	_, err = execute(t, "validate", filepath.Join(dir, "missing.mcpr"))
	assert.ErrorIs(t, err, errInvalid)

	_, err = execute(t, "create", "--packet", "bogus")
	assert.Error(t, err)
}
