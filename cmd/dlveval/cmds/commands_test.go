package cmds

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-delve/dlveval/pkg/proc"
	protest "github.com/go-delve/dlveval/pkg/proc/test"
)

func runDlveval(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := New(false)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func withSnapshotArgs(t *testing.T, args ...string) []string {
	cfg := filepath.Join(t.TempDir(), "config.yml")
	return append([]string{args[0], "--config", cfg, "--snapshot", protest.FixturePath("basic.yml")}, args[1:]...)
}

func TestEval(t *testing.T) {
	out, err := runDlveval(t, withSnapshotArgs(t, "eval", "x", "g_counter.count", "g_arr")...)
	require.NoError(t, err)
	assert.Equal(t, "5\n7\n[10, 20, 30, 40]\n", out)

	out, err = runDlveval(t, withSnapshotArgs(t, "eval", "--frame", "1", "x")...)
	require.NoError(t, err)
	assert.Equal(t, "11\n", out)

	out, err = runDlveval(t, withSnapshotArgs(t, "eval", "--format", "hex", "g_counter.count")...)
	require.NoError(t, err)
	assert.Equal(t, "0x7\n", out)

	_, err = runDlveval(t, withSnapshotArgs(t, "eval", "x", "nosuch")...)
	require.Error(t, err)
	assert.True(t, errors.Is(err, proc.NotFound), "%v", err)

	_, err = runDlveval(t, withSnapshotArgs(t, "eval", "--format", "octal", "x")...)
	assert.EqualError(t, err, `unknown format "octal"`)
}

func TestEvalConfigOverlay(t *testing.T) {
	_, err := runDlveval(t, withSnapshotArgs(t, "eval", "--max-fuel", "1", "1 + 2")...)
	require.Error(t, err)
	assert.True(t, errors.Is(err, proc.Timeout), "%v", err)

	_, err = runDlveval(t, withSnapshotArgs(t, "eval", "--check-array-bounds", "g_arr[4]")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of bounds")

	out, err := runDlveval(t, withSnapshotArgs(t, "eval", "--default_format", "hex", "x")...)
	require.NoError(t, err)
	assert.Equal(t, "0x5\n", out)

	_, err = runDlveval(t, withSnapshotArgs(t, "eval", "--max-fuel", "-1", "x")...)
	assert.EqualError(t, err, "max-fuel must be a number greater than zero")
}

func TestEvalEnvironment(t *testing.T) {
	t.Setenv("DLVEVAL_SNAPSHOT", protest.FixturePath("basic.yml"))
	t.Setenv("DLVEVAL_CONFIG", filepath.Join(t.TempDir(), "config.yml"))
	t.Setenv("DLVEVAL_DEFAULT_FORMAT", "hex")

	out, err := runDlveval(t, "eval", "g_counter.count")
	require.NoError(t, err)
	assert.Equal(t, "0x7\n", out)

	t.Setenv("DLVEVAL_SNAPSHOT", "")
	_, err = runDlveval(t, "eval", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no snapshot specified")
}

func TestScript(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "count.star")
	result := filepath.Join(dir, "result.txt")
	require.NoError(t, os.WriteFile(script, []byte(`def main(path):
    v = eval("g_counter")
    write_file(path, str(v.count + v.flags))
`), 0o600))

	_, err := runDlveval(t, withSnapshotArgs(t, "script", script, result)...)
	require.NoError(t, err)
	buf, err := os.ReadFile(result)
	require.NoError(t, err)
	assert.Equal(t, "8", string(buf))

	cmds := filepath.Join(dir, "cmds.txt")
	require.NoError(t, os.WriteFile(cmds, []byte("set x = 1\nexit\n"), 0o600))
	_, err = runDlveval(t, withSnapshotArgs(t, "script", cmds)...)
	require.NoError(t, err)

	_, err = runDlveval(t, withSnapshotArgs(t, "script", cmds, "extra")...)
	assert.EqualError(t, err, "arguments can only be passed to starlark scripts")

	_, err = runDlveval(t, withSnapshotArgs(t, "script")...)
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := runDlveval(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "dlveval\nVersion: "), out)
}

func TestHelpLog(t *testing.T) {
	out, err := runDlveval(t, "help", "log")
	require.NoError(t, err)
	for _, component := range []string{"evaluator", "memory", "symbols", "session", "target"} {
		assert.Contains(t, out, component)
	}
}
