package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	if args == nil {
		args = []string{}
	}
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// writeConfig writes a config that keeps logs quiet and points Blender at a
// path that does not exist.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dae2blend.yaml")
	body := "blender:\n  path: " + filepath.Join(dir, "no-blender") + "\nlog:\n  level: error\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRun_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no separator", []string{"in.dae", "out.blend"}, `missing "--" separator`},
		{"nothing at all", nil, `missing "--" separator`},
		{"args before separator", []string{"in.dae", "--", "out.blend"}, "unexpected arguments before --"},
		{"one filename", []string{"--", "in.dae"}, "need exactly 2 args, the input and output filenames"},
		{"bad output", []string{"--", "in.dae", "out.obj"}, "output filename must end with .blend"},
		{"bad input", []string{"--", "in.obj", "out.blend"}, "input filename must end with .dae or .zip"},
		{"zero scale", []string{"--", "in.dae", "out.blend", "--scale=0"}, "invalid --scale value"},
		{"unknown flag", []string{"--frobnicate", "--", "in.dae", "out.blend"}, "unknown flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			assert.Equal(t, exitArgument, code)
			assert.Contains(t, stderr, tt.want)
			assert.True(t, strings.HasPrefix(stderr, "dae2blend: "))
		})
	}
}

func TestRun_MissingBlender(t *testing.T) {
	cfg := writeConfig(t, "")
	scene := filepath.Join(t.TempDir(), "scene.dae")
	require.NoError(t, os.WriteFile(scene, []byte("<COLLADA/>"), 0o644))

	code, _, stderr := runCLI(t, "--config", cfg, "--", scene, filepath.Join(t.TempDir(), "out.blend"))
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "is unavailable")
}

func TestRun_BlenderFlagOverridesConfig(t *testing.T) {
	cfg := writeConfig(t, "")
	missing := filepath.Join(t.TempDir(), "blender-from-flag")

	code, _, stderr := runCLI(t, "--config", cfg, "--blender", missing, "--", "scene.dae", "out.blend")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "blender-from-flag")
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := writeConfig(t, "extraction:\n  method: rar\n")

	code, _, stderr := runCLI(t, "--config", cfg, "--", "scene.dae", "out.blend")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "config validation errors")
}

func TestRun_HistoryRecordsFailures(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ledger.db")
	cfg := writeConfig(t, "ledger:\n  enabled: true\n  driver: sqlite\n  path: "+db+"\n")

	code, _, _ := runCLI(t, "--config", cfg, "--", "scene.dae", "out.blend", "--scale=2")
	require.Equal(t, exitFailure, code)

	code, stdout, stderr := runCLI(t, "--config", cfg, "history", "--limit", "5")
	require.Equal(t, exitOK, code, stderr)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "failed")
	assert.Contains(t, lines[1], "scene.dae")
	assert.Contains(t, lines[1], "out.blend")
}

func TestRun_HistoryFiltersAndShowsOne(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ledger.db")
	cfg := writeConfig(t, "ledger:\n  enabled: true\n  driver: sqlite\n  path: "+db+"\n")

	code, _, _ := runCLI(t, "--config", cfg, "--", "scene.dae", "out.blend")
	require.Equal(t, exitFailure, code)

	code, stdout, stderr := runCLI(t, "--config", cfg, "history", "--status", "succeeded")
	require.Equal(t, exitOK, code, stderr)
	assert.Len(t, strings.Split(strings.TrimSpace(stdout), "\n"), 1)

	code, stdout, stderr = runCLI(t, "--config", cfg, "history", "--status", "failed")
	require.Equal(t, exitOK, code, stderr)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	id := strings.Fields(lines[1])[0]

	code, stdout, stderr = runCLI(t, "--config", cfg, "history", id)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, id)
	assert.Regexp(t, `status:\s+failed`, stdout)
	assert.Regexp(t, `input:\s+scene.dae`, stdout)
	assert.Contains(t, stdout, "error:")

	code, _, stderr = runCLI(t, "--config", cfg, "history", "7a0c9f52-7d1e-4f55-9a43-0f6a2c1b9e10")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "not found")
}

func TestRun_HistoryBadArguments(t *testing.T) {
	cfg := writeConfig(t, "")

	code, _, stderr := runCLI(t, "--config", cfg, "history", "--status", "pending")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, `unknown status "pending"`)

	code, _, stderr = runCLI(t, "--config", cfg, "history", "abc")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, `invalid conversion id "abc"`)
}

func TestRun_HistoryLedgerDisabled(t *testing.T) {
	code, _, stderr := runCLI(t, "--config", writeConfig(t, ""), "history")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "ledger is disabled")
}

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")
	assert.Equal(t, exitOK, code)
	assert.True(t, strings.HasPrefix(stdout, "dae2blend dev ("))
}
