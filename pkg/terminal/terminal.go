package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/go-delve/liner"

	"github.com/go-delve/dlveval/pkg/config"
	"github.com/go-delve/dlveval/pkg/proc"
	"github.com/go-delve/dlveval/pkg/terminal/starbind"
)

const (
	historyFile                 string = ".dlveval_history"
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"
	ansiBlue                           = 34
	ansiRed                            = 31
)

// Term represents the terminal running dlveval.
type Term struct {
	tgt      *proc.Target
	conf     *config.Config
	prompt   string
	line     *liner.State
	cmds     *Commands
	dumb     bool
	stdout   *transcriptWriter
	InitFile string

	starlarkEnv *starbind.Env

	// cancel interrupts the evaluation in progress, if any.
	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// New returns a new Term evaluating expressions on tgt.
func New(tgt *proc.Target, conf *config.Config) *Term {
	if conf == nil {
		conf = config.Default()
	}
	cmds := DebugCommands()
	if conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	w, color := stdoutWriter()

	t := &Term{
		tgt:    tgt,
		conf:   conf,
		prompt: "(dlveval) ",
		line:   liner.NewLiner(),
		cmds:   cmds,
		dumb:   !color,
		stdout: newTranscriptWriter(w),
	}
	t.starlarkEnv = starbind.New(starlarkContext{t}, t.stdout)
	return t
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	t.line.Close()
}

// withCancel returns a context that is cancelled by SIGINT while the
// command using it runs.
func (t *Term) withCancel() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancelMu.Lock()
	t.cancel = cancel
	t.cancelMu.Unlock()
	return ctx, func() {
		t.cancelMu.Lock()
		t.cancel = nil
		t.cancelMu.Unlock()
		cancel()
	}
}

func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		t.starlarkEnv.Cancel()
		t.cancelMu.Lock()
		cancel := t.cancel
		t.cancelMu.Unlock()
		if cancel != nil {
			fmt.Fprintln(os.Stderr, "received SIGINT, interrupting evaluation")
			cancel()
		}
	}
}

// Run begins running dlveval in the terminal.
func (t *Term) Run() (int, error) {
	defer t.Close()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	defer signal.Stop(ch)
	go t.sigintGuard(ch)

	t.line.SetCompleter(t.complete)

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}
	if f != nil {
		t.line.ReadHistory(f)
		f.Close()
	}
	fmt.Println("Type 'help' for list of commands.")

	if t.InitFile != "" {
		err := t.cmds.executeFile(t, t.InitFile)
		if err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Error executing init file: %s\n", err)
		}
	}

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(t.stdout, "exit")
				return t.handleExit()
			}
			return 1, errors.New("prompt for input failed")
		}
		t.stdout.Echo(t.prompt + cmdstr + "\n")

		if err := t.cmds.Call(cmdstr, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			t.printError(err)
		}
		t.stdout.Flush()
		t.stdout.pw.Reset()
	}
}

// Exec runs a single terminal command.
func (t *Term) Exec(cmdstr string) error {
	defer t.stdout.pw.Reset()
	defer t.stdout.Flush()
	return t.cmds.Call(cmdstr, t)
}

// Source runs path, either a starlark script if its extension is .star or
// a file of terminal commands. Args are passed to the main function of a
// starlark script.
func (t *Term) Source(path string, args ...string) error {
	defer t.stdout.pw.Reset()
	defer t.stdout.Flush()
	if filepath.Ext(path) != ".star" {
		if len(args) > 0 {
			return fmt.Errorf("arguments can only be passed to starlark scripts")
		}
		return t.cmds.executeFile(t, path)
	}
	var mainArgs []interface{}
	for _, arg := range args {
		mainArgs = append(mainArgs, arg)
	}
	_, err := t.starlarkEnv.Execute(path, nil, "main", mainArgs)
	return err
}

// complete suggests command names for the first word of line and visible
// symbol names for the last word of expressions.
func (t *Term) complete(line string) (c []string) {
	if !strings.Contains(line, " ") {
		for _, cmd := range t.cmds.cmds {
			for _, alias := range cmd.aliases {
				if strings.HasPrefix(alias, strings.ToLower(line)) {
					c = append(c, alias)
				}
			}
		}
		return c
	}
	start := strings.LastIndexFunc(line, func(r rune) bool {
		return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	}) + 1
	if t.tgt == nil {
		return nil
	}
	thread, frame := t.tgt.CurrentThread()
	for _, name := range t.tgt.Complete(line[start:], thread, frame) {
		c = append(c, line[:start]+name)
	}
	return c
}

// printError reports a failed command. Evaluation errors are underlined
// at the span of the expression that failed.
func (t *Term) printError(err error) {
	var eerr *proc.EvalError
	if errors.As(err, &eerr) && eerr.Pos >= 0 && eerr.Expr != "" && eerr.End <= len(eerr.Expr) {
		width := eerr.End - eerr.Pos
		if width <= 0 {
			width = 1
		}
		fmt.Fprintf(t.stdout, "    %s\n    %s%s\n", eerr.Expr, strings.Repeat(" ", eerr.Pos), strings.Repeat("^", width))
	}
	msg := fmt.Sprintf("Command failed: %s", err)
	if !t.dumb {
		msg = fmt.Sprintf(terminalHighlightEscapeCode, ansiRed) + msg + terminalResetEscapeCode
	}
	fmt.Fprintln(t.stdout, msg)
}

// Println prints a line to the terminal.
func (t *Term) Println(prefix, str string) {
	if !t.dumb {
		prefix = fmt.Sprintf(terminalHighlightEscapeCode, ansiBlue) + prefix + terminalResetEscapeCode
	}
	fmt.Fprintf(t.stdout, "%s%s\n", prefix, str)
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	t.stdout.CloseTranscript()
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
		return 0, nil
	}
	if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR, 0666); err == nil {
		_, err = t.line.WriteHistory(f)
		if err != nil {
			fmt.Println("readline history error:", err)
		}
		f.Close()
	}
	return 0, nil
}
