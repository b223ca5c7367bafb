package terminal

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-delve/dlveval/pkg/config"
	"github.com/go-delve/dlveval/pkg/logflags"
	"github.com/go-delve/dlveval/pkg/proc"
	"github.com/go-delve/dlveval/pkg/proc/snapshot"
	protest "github.com/go-delve/dlveval/pkg/proc/test"
)

func TestMain(m *testing.M) {
	var logConf string
	flag.StringVar(&logConf, "log", "", "configures logging")
	flag.Parse()
	logflags.Setup(logConf != "", logConf, "")
	os.Exit(m.Run())
}

type FakeTerminal struct {
	*Term
	t testing.TB
}

func (ft *FakeTerminal) Exec(cmdstr string) (string, error) {
	var buf bytes.Buffer
	termstdout := ft.Term.stdout
	ft.Term.stdout = newTranscriptWriter(&buf)
	ft.starlarkEnv.Redirect(ft.Term.stdout)
	defer func() {
		ft.Term.stdout = termstdout
		ft.starlarkEnv.Redirect(termstdout)
	}()
	err := ft.cmds.Call(cmdstr, ft.Term)
	return buf.String(), err
}

func (ft *FakeTerminal) MustExec(cmdstr string) string {
	outstr, err := ft.Exec(cmdstr)
	if err != nil {
		ft.t.Fatalf("Error executing <%s>: %v", cmdstr, err)
	}
	return outstr
}

func (ft *FakeTerminal) AssertExecError(cmdstr, tgterr string) {
	_, err := ft.Exec(cmdstr)
	if err == nil {
		ft.t.Fatalf("Expected error executing %q", cmdstr)
	}
	if !strings.Contains(err.Error(), tgterr) {
		ft.t.Fatalf("Expected error %q executing %q, got error %q", tgterr, cmdstr, err.Error())
	}
}

func withTestTerminal(name string, t *testing.T, fn func(*FakeTerminal)) {
	withTestTerminalConfig(name, t, config.Default(), fn)
}

func withTestTerminalConfig(name string, t *testing.T, cfg *config.Config, fn func(*FakeTerminal)) {
	protest.WithTarget(t, name, cfg, func(s *snapshot.Snapshot, tgt *proc.Target) {
		term := New(tgt, cfg)
		term.dumb = true
		defer term.Close()
		fn(&FakeTerminal{Term: term, t: t})
	})
}

func TestCommandDefault(t *testing.T) {
	cmds := DebugCommands()

	cmd := cmds.Find("non-existent-command")

	err := cmd(nil, callContext{}, "")
	if err == nil {
		t.Fatal("cmd() did not default")
	}

	if err.Error() != "command not available" {
		t.Fatal("wrong command output")
	}
}

func TestCommandReplayWithoutPreviousCommand(t *testing.T) {
	var (
		cmds = DebugCommands()
		cmd  = cmds.Find("")
		err  = cmd(nil, callContext{}, "")
	)

	if err != nil {
		t.Error("Null command not returned", err)
	}
}

func TestCommandRegister(t *testing.T) {
	cmds := DebugCommands()
	called := ""
	cmds.Register("hello", func(t *Term, ctx callContext, args string) error {
		called = args
		return nil
	}, "says hello")
	require.NoError(t, cmds.Find("hello")(nil, callContext{}, "world"))
	assert.Equal(t, "world", called)
}

func TestCommandMerge(t *testing.T) {
	cmds := DebugCommands()
	cmds.Merge(map[string][]string{"print": {"pp"}})
	assert.NotEqual(t, "command not available", cmds.Find("pp")(nil, callContext{}, "").Error())

	// merging again starts from the builtin aliases
	cmds.Merge(map[string][]string{"print": {"ppp"}})
	assert.Equal(t, errNoCmd, cmds.Find("pp")(nil, callContext{}, ""))
	assert.NotNil(t, cmds.Find("p"))
}

func TestPrint(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		assert.Equal(t, "5\n", term.MustExec("print x"))
		assert.Equal(t, "7\n", term.MustExec("p g_counter.count"))
		assert.Equal(t, "0x7\n", term.MustExec("print %x g_counter.count"))
		assert.Equal(t, "[10, 20, 30, 40]\n", term.MustExec("print g_arr"))
		assert.Equal(t, "{flags: 1, count: 7}\n", term.MustExec("print g_counter"))
		assert.Equal(t, "4116\n", term.MustExec("print &g_arr[1]"))

		term.AssertExecError("print", "not enough arguments")
		term.AssertExecError("print %q x", `unknown format "q"`)
		term.AssertExecError("print nosuch", "could not find symbol value for nosuch")
	})
}

func TestPrintScopes(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		assert.Equal(t, "11\n", term.MustExec("frame 1 print x"))
		assert.Equal(t, "5\n", term.MustExec("print x"), "frame prefix does not change the current frame")
		assert.Equal(t, "7\n", term.MustExec("thread 2 print $rax"))
		assert.Equal(t, "42\n", term.MustExec("print $rax"))

		assert.Equal(t, "Frame 1\n", term.MustExec("frame 1"))
		assert.Equal(t, "11\n", term.MustExec("print x"))
		assert.Equal(t, "5\n", term.MustExec("down 1 print x"))
		assert.Equal(t, "Frame 0\n", term.MustExec("down"))
		assert.Equal(t, "5\n", term.MustExec("print x"))
		term.AssertExecError("down", "invalid frame -1")
		assert.Equal(t, "11\n", term.MustExec("up 1 print x"))

		assert.Equal(t, "Switched from 1 to 2\n", term.MustExec("thread 2"))
		assert.Equal(t, "7\n", term.MustExec("print $rax"))
		term.AssertExecError("thread 9", "no such thread")
		term.AssertExecError("thread", "you must specify a thread")
	})
}

func TestSetVar(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		term.MustExec("set x = 9")
		assert.Equal(t, "9\n", term.MustExec("print x"))
		term.MustExec("set g_arr[3] = g_arr[0] + 1")
		assert.Equal(t, "[10, 20, 30, 11]\n", term.MustExec("print g_arr"))
		term.AssertExecError("set x", "wrong number of arguments")
		term.AssertExecError("set g_const = 1", "read-only")
	})
}

func TestWhatis(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		out := term.MustExec("whatis g_arr")
		assert.True(t, strings.HasPrefix(out, "int[4]\nsize 16"), out)
		out = term.MustExec("whatis g_ptr + 1")
		assert.True(t, strings.HasPrefix(out, "int*\n"), out)
	})
}

func TestExamineMemory(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		out := term.MustExec("examinemem -len 8 &g_counter")
		assert.Equal(t, "0x00001000:   0x01   0x00   0x00   0x00   0x07   0x00   0x00   0x00\n", out)

		out = term.MustExec("x -len 10 0x1010")
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, "0x00001018:   0x1e   0x00", lines[1])

		term.AssertExecError("x", "no address specified")
		term.AssertExecError("x -len", "expected argument after -len")
		term.AssertExecError("x -len nope 0x1000", "invalid length")
		term.AssertExecError("x g_counter", "can not use an expression of type struct counter as an address")
		term.AssertExecError("x 0x10", "")
	})
}

func TestVarsAndSymbolize(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		assert.Equal(t, "g_arr\n", term.MustExec("vars ^g_a"))
		out := term.MustExec("vars")
		assert.Contains(t, out, "optimized\n")
		assert.Contains(t, out, "limit\n")
		term.AssertExecError("vars [", "invalid filter argument")

		assert.Equal(t, "g_arr+0x4\n", term.MustExec("symbolize &g_arr[1]"))
		assert.Equal(t, "g_arr\n", term.MustExec("symbolize 0x1010"))
		term.AssertExecError("symbolize 0x10", "no symbol at 0x10")
	})
}

func TestThreads(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		assert.Equal(t, "* Thread 1 at 0x401000\n  Thread 2 at 0x401100\n", term.MustExec("threads"))
	})
}

func TestContinueAndStep(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		term.MustExec("frame 1")
		assert.Equal(t, "> resumed, generation 1\n", term.MustExec("continue"))
		assert.Equal(t, "5\n", term.MustExec("print x"), "resuming selects frame 0")
		assert.Equal(t, "> thread 2 stepped, generation 2\n", term.MustExec("step 2"))
		assert.Equal(t, "> thread 1 stepped, generation 3\n", term.MustExec("s"))
		term.AssertExecError("step two", "invalid thread id")

		out := term.MustExec("cachestats")
		assert.Contains(t, out, "generation     3\n")
	})
}

func TestConfig(t *testing.T) {
	cfg := config.Default()
	withTestTerminalConfig("basic.yml", t, cfg, func(term *FakeTerminal) {
		out := term.MustExec("config -list")
		assert.Contains(t, out, "max-fuel")
		assert.Contains(t, out, "default-format")
		assert.NotContains(t, out, "aliases")

		term.MustExec("config default-format hex")
		assert.Equal(t, "hex", cfg.DefaultFormat)
		assert.Equal(t, "0x7\n", term.MustExec("print g_counter.count"))
		term.AssertExecError("config default-format nope", "unknown format")

		term.MustExec("config check-array-bounds true")
		assert.True(t, cfg.CheckArrayBounds)
		term.AssertExecError("print g_arr[4]", "out of bounds")

		term.MustExec("config max-fuel 3")
		_, err := term.Exec("print 1 + 2 + 3")
		assert.True(t, errors.Is(err, proc.Timeout))

		term.AssertExecError("config max-fuel -1", "must be a number greater than zero")
		term.AssertExecError("config max-fuel many", "must be a number")
		term.AssertExecError("config nosuch 1", `"nosuch" is not a configuration parameter`)
		term.AssertExecError("config aliases 1", "is not a configuration parameter")
		term.AssertExecError("config", "wrong number of arguments")

		term.MustExec("config alias print pp")
		assert.Equal(t, []string{"pp"}, cfg.Aliases["print"])
		assert.Equal(t, "0x1\n", term.MustExec("pp 1"))
		term.MustExec("config alias pp")
		term.AssertExecError("pp 1", "command not available")
	})
}

func TestAliasesFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Aliases = map[string][]string{"whatis": {"ptype"}}
	withTestTerminalConfig("basic.yml", t, cfg, func(term *FakeTerminal) {
		assert.True(t, strings.HasPrefix(term.MustExec("ptype x"), "int\n"))
	})
}

func TestHelp(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		out := term.MustExec("help")
		assert.Contains(t, out, "print (alias: p)")
		assert.Contains(t, out, "Evaluating expressions and viewing memory:")
		out = term.MustExec("help p")
		assert.True(t, strings.HasPrefix(out, "Evaluate an expression."))
		term.AssertExecError("help nosuch", "command not available")
	})
}

func TestExit(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		_, err := term.Exec("quit")
		assert.IsType(t, ExitRequestError{}, err)
	})
}

func TestSourceCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "init")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nprint x\n\nprint nosuch\np g_counter.count\n"), 0600))

	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		out := term.MustExec("source " + path)
		lines := strings.Split(out, "\n")
		require.Len(t, lines, 4)
		assert.Equal(t, "5", lines[0])
		assert.True(t, strings.HasPrefix(lines[1], path+":4: could not find symbol value for nosuch"), lines[1])
		assert.Equal(t, "7", lines[2])
		term.AssertExecError("source", "wrong number of arguments")
	})
}

func TestTranscript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.txt")

	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		// Exec replaces the writer, the transcript state is set on the
		// terminal's own writer.
		w := newTranscriptWriter(&bytes.Buffer{})
		term.Term.stdout = w
		err := term.cmds.Call("transcript -t "+path, term.Term)
		require.NoError(t, err)
		require.NoError(t, term.cmds.Call("print x", term.Term))
		require.NoError(t, term.cmds.Call("transcript -off", term.Term))
		require.NoError(t, term.cmds.Call("print 2", term.Term))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "5\n", string(data))
		assert.Equal(t, "5\n2\n", w.pw.w.(*bytes.Buffer).String())

		term.AssertExecError("transcript", "no output path specified")
		term.AssertExecError("transcript -off "+path, "output path")
		term.AssertExecError("transcript -q "+path, "unrecognized option")
	})
}

func TestPrintError(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		var buf bytes.Buffer
		term.Term.stdout = newTranscriptWriter(&buf)
		_, err := term.tgt.Evaluate(context.Background(), "x + nosuch", 1, 0)
		require.Error(t, err)
		term.printError(err)
		lines := strings.Split(buf.String(), "\n")
		require.True(t, len(lines) >= 3)
		assert.Equal(t, "    x + nosuch", lines[0])
		assert.Equal(t, "        ^^^^^^", lines[1])
		assert.True(t, strings.HasPrefix(lines[2], "Command failed: "))
	})
}

func TestComplete(t *testing.T) {
	withTestTerminal("basic.yml", t, func(term *FakeTerminal) {
		assert.Equal(t, []string{"threads", "thread"}, term.complete("thr"))
		assert.Equal(t, []string{"print g_arr"}, term.complete("print g_a"))
		assert.Equal(t, []string{"p 1+g_arr"}, term.complete("p 1+g_ar"))
		assert.Empty(t, term.complete("print zz"))
	})
}

func TestSplitArgs(t *testing.T) {
	v, err := splitArgs(`-len 4 "a b" c`)
	require.NoError(t, err)
	assert.Equal(t, []string{"-len", "4", "a b", "c"}, v)
	_, err = splitArgs("a | b")
	assert.Error(t, err)
	_, err = splitArgs("`ls`")
	assert.Error(t, err)
}
