package terminal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-delve/dlveval/pkg/config"
)

func (ft *FakeTerminal) ExecStarlark(starlarkProgram string) (string, error) {
	path := filepath.Join(ft.t.TempDir(), "script.star")
	if err := os.WriteFile(path, []byte(starlarkProgram), 0o600); err != nil {
		ft.t.Fatalf("could not write starlark script: %v", err)
	}
	return ft.Exec("source " + path)
}

func (ft *FakeTerminal) MustExecStarlark(starlarkProgram string) string {
	out, err := ft.ExecStarlark(starlarkProgram)
	if err != nil {
		ft.t.Fatalf("Error executing starlark program %q: %v", starlarkProgram, err)
	}
	return out
}

func TestStarlarkEval(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		assert.Equal(t, "7\n", term.MustExecStarlark(`print(eval("g_counter").count)`))
		assert.Equal(t, "30\n", term.MustExecStarlark(`print(eval("g_arr")[2])`))
		assert.Equal(t, "4\n", term.MustExecStarlark(`print(len(eval("g_arr")))`))
		assert.Equal(t, "5\n", term.MustExecStarlark(`print(eval("x"))`))
		assert.Equal(t, "11\n", term.MustExecStarlark(`print(eval("x", frame=1))`))
		assert.Equal(t, "4112\n", term.MustExecStarlark(`print(eval("g_arr").address)`))
		assert.Equal(t, "1\n", term.MustExecStarlark(`print(eval("x == 5"))`))

		_, err := term.ExecStarlark(`eval("nosuch")`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "could not find symbol value for nosuch")
	})
}

func TestStarlarkIndexErrors(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		assert.Equal(t, "40\n", term.MustExecStarlark(`print(eval("g_arr")[-1])`))

		_, err := term.ExecStarlark(`eval("g_arr")[4]`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "index 4 out of range [0:4]")
		_, err = term.ExecStarlark(`eval("g_counter")[0]`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "struct counter is not indexable")
		_, err = term.ExecStarlark(`eval("g_arr")["a"]`)
		require.Error(t, err)
	})

	// g_arr fits in the budget, (g_arr)[2] does not
	cfg := config.Default()
	cfg.MaxFuel = 2
	withTestTerminalConfig("basic.yml", t, cfg, func(term *FakeTerminal) {
		assert.Equal(t, "4\n", term.MustExecStarlark(`print(len(eval("g_arr")))`))
		_, err := term.ExecStarlark(`v = eval("g_arr")[2]`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeded its budget of 2 steps")
	})
}

func TestStarlarkMemoryAndSymbols(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		assert.Equal(t, "g_arr+0x4\n", term.MustExecStarlark(`print(symbolize(eval("&g_arr[1]")))`))
		assert.Equal(t, "None\n", term.MustExecStarlark(`print(symbolize(0x10))`))
		assert.Equal(t, "[7, 0, 0, 0]\n", term.MustExecStarlark(`print(read_memory(0x1004, 4))`))
		assert.Equal(t, "[1, 2]\n", term.MustExecStarlark(`print(threads())`))
	})
}

func TestStarlarkScope(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		assert.Equal(t, "1 0\n", term.MustExecStarlark(`s = cur_scope()
print(s.Thread, s.Frame)`))
		term.MustExec("frame 1")
		assert.Equal(t, "11\n", term.MustExecStarlark(`print(eval("x"))`))
	})
}

func TestStarlarkResume(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		assert.Equal(t, "1\n", term.MustExecStarlark(`print(cont())`))
		assert.Equal(t, "2\n", term.MustExecStarlark(`print(step(thread=2))`))
		assert.Equal(t, "3\n", term.MustExecStarlark(`print(step())`))
	})
}

func TestStarlarkCommand(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		term.MustExecStarlark(`def command_double(args):
    "Prints twice the value of an expression."
    print(eval(args) * 2)
`)
		assert.Equal(t, "10\n", term.MustExec("double x"))
		assert.Equal(t, "14\n", term.MustExec("double g_counter.count"))

		out := term.MustExec("help double")
		assert.True(t, strings.HasPrefix(out, "Prints twice the value of an expression."), out)

		assert.Equal(t, "5\n", term.MustExecStarlark(`dlv_command("print x")`))
	})
}

func TestStarlarkMain(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		out := term.MustExecStarlark(`def main():
    v = eval("g_counter")
    print(v.flags + v.count)
`)
		assert.Equal(t, "8\n", out)
	})
}

func TestSourceWithArguments(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		var buf bytes.Buffer
		term.Term.stdout = newTranscriptWriter(&buf)
		term.starlarkEnv.Redirect(term.Term.stdout)

		path := filepath.Join(t.TempDir(), "args.star")
		require.NoError(t, os.WriteFile(path, []byte(`def main(a, b):
    print(eval(a) + eval(b))
`), 0o600))
		require.NoError(t, term.Source(path, "x", "g_counter.count"))
		require.NoError(t, term.Term.Exec("print x"))
		assert.Equal(t, "12\n5\n", buf.String())

		assert.EqualError(t, term.Source(filepath.Join(t.TempDir(), "cmds.txt"), "x"), "arguments can only be passed to starlark scripts")
	})
}
