// Package terminal implements functions for responding to user
// input and dispatching to the expression evaluator.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"

	"github.com/go-delve/dlveval/pkg/proc"
)

type callContext struct {
	Thread int
	Frame  int
}

type frameDirection int

const (
	frameSet frameDirection = iota
	frameUp
	frameDown
)

type cmdfunc func(t *Term, ctx callContext, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands of the dlveval terminal.
type Commands struct {
	cmds []command
}

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"print", "p"}, group: dataCmds, cmdFn: printVar, helpMsg: `Evaluate an expression.

	[thread <n>] [frame <m>] print [%<format>] <expression>

The format is one of decimal (d), hex (x), char (c), pointer (p) or struct (s),
the default is set by the default-format configuration key.

Expressions use C syntax: names, $registers, integer, floating point and
character literals, unary - ! * &, binary arithmetic, comparison and logical
operators, ?: conditionals, . -> [] member and element access, sizeof(x)
and assignments.`},
		{aliases: []string{"set"}, group: dataCmds, cmdFn: setVar, helpMsg: `Changes the value of a variable or register.

	[thread <n>] [frame <m>] set <variable> = <value>

The left hand side may be any lvalue, for example *p, s.f, a[3] or $rax.`},
		{aliases: []string{"whatis"}, group: dataCmds, cmdFn: whatisCommand, helpMsg: `Prints type of an expression.

	whatis <expression>`},
		{aliases: []string{"examinemem", "x"}, group: dataCmds, cmdFn: examineMemoryCmd, helpMsg: `Examine raw memory at the given address.

	examinemem [-len <n>] <address>

The address is an expression, for example "x &g_counter" or "x -len 32 g_ptr".
The default length is 16 bytes.`},
		{aliases: []string{"vars"}, group: dataCmds, cmdFn: vars, helpMsg: `Print names of visible variables.

	vars [<regex>]

Lists the locals, parameters, file statics and globals visible in the current
frame, optionally filtered by a regular expression.`},
		{aliases: []string{"symbolize"}, group: dataCmds, cmdFn: symbolize, helpMsg: `Describes an address as symbol+offset.

	symbolize <address>`},
		{aliases: []string{"continue", "c"}, group: runCmds, cmdFn: cont, helpMsg: `Resumes the inferior.

	continue

Values printed before resuming are not updated, reading them again requires a
new evaluation.`},
		{aliases: []string{"step", "s"}, group: runCmds, cmdFn: step, helpMsg: `Single steps a thread.

	step [<thread id>]

Without an argument the current thread is stepped.`},
		{aliases: []string{"threads"}, group: threadCmds, cmdFn: threads, helpMsg: `Print out info for every thread.`},
		{aliases: []string{"thread", "tr"}, group: threadCmds, cmdFn: thread, helpMsg: `Switch to the specified thread.

	thread <id> [command]

If a command is given it runs in the scope of the thread, leaving the
current thread unchanged.`},
		{aliases: []string{"frame"}, group: stackCmds,
			cmdFn: func(t *Term, ctx callContext, arg string) error {
				return c.frameCommand(t, ctx, arg, frameSet)
			},
			helpMsg: `Set the current frame, or execute command on a different frame.

	frame <m>
	frame <m> <command>

The first form sets frame used by subsequent commands such as "print" or "set".
The second form runs the command on the given frame.`},
		{aliases: []string{"up"}, group: stackCmds,
			cmdFn: func(t *Term, ctx callContext, arg string) error {
				return c.frameCommand(t, ctx, arg, frameUp)
			},
			helpMsg: `Move the current frame up.

	up [<m>]
	up [<m>] <command>

Move the current frame up by <m>. The second form runs the command on the given frame.`},
		{aliases: []string{"down"}, group: stackCmds,
			cmdFn: func(t *Term, ctx callContext, arg string) error {
				return c.frameCommand(t, ctx, arg, frameDown)
			},
			helpMsg: `Move the current frame down.

	down [<m>]
	down [<m>] <command>

Move the current frame down by <m>. The second form runs the command on the given frame.`},
		{aliases: []string{"source"}, cmdFn: c.sourceCommand, helpMsg: `Executes a file containing a list of dlveval commands.

	source <path>

If path ends with the .star extension it will be interpreted as a starlark script.
If path is a single '-' character an interactive starlark interpreter will start instead.
Type 'exit' to exit.`},
		{aliases: []string{"config"}, cmdFn: configureCmd, helpMsg: `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config -save

Saves the configuration file to disk, overwriting the current configuration file.

	config <parameter> <value>

Changes the value of a configuration parameter. Parameters that size caches
take effect for targets created afterwards.

	config alias <command> <alias>
	config alias <alias>

Defines <alias> as an alias to <command> or removes an alias.`},
		{aliases: []string{"transcript"}, cmdFn: transcript, helpMsg: `Appends command output to a file.

	transcript [-t] [-x] <output file>
	transcript -off

Output of dlveval's command is appended to the specified output file. If -t is specified and the output file exists it is truncated. If -x is specified output to stdout is suppressed.

Using the -off option disables the transcript.`},
		{aliases: []string{"cachestats"}, cmdFn: cacheStats, helpMsg: `Prints memory cache statistics.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: `Exit the evaluator.`},
	}

	return c
}

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			c.cmds[i].cmdFn = cf
			c.cmds[i].helpMsg = helpMsg
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
func (c *Commands) Find(cmdstr string) cmdfunc {
	if cmdstr == "" {
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	return noCmdAvailable
}

// CallWithContext takes a command and a context that command should be executed in.
func (c *Commands) CallWithContext(cmdstr string, t *Term, ctx callContext) error {
	vals := split2PartsBySpace(strings.TrimSpace(cmdstr))
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname)(t, ctx, args)
}

// Call takes a command to execute in the current thread and frame.
func (c *Commands) Call(cmdstr string, t *Term) error {
	var ctx callContext
	if t.tgt != nil {
		ctx.Thread, ctx.Frame = t.tgt.CurrentThread()
	}
	return c.CallWithContext(cmdstr, t, ctx)
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

var errNoCmd = errors.New("command not available")

func noCmdAvailable(t *Term, ctx callContext, args string) error {
	return errNoCmd
}

func nullCommand(t *Term, ctx callContext, args string) error {
	return nil
}

func (c *Commands) help(t *Term, ctx callContext, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			if cmd.match(args) {
				fmt.Fprintln(t.stdout, cmd.helpMsg)
				return nil
			}
		}
		return errNoCmd
	}

	t.stdout.pw.PageMaybe(nil)
	fmt.Fprintln(t.stdout, "The following commands are available:")

	for _, cgd := range commandGroupDescriptions {
		fmt.Fprintf(t.stdout, "\n%s:\n", cgd.description)
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

func split2PartsBySpace(s string) []string {
	v := strings.SplitN(s, " ", 2)
	for i := range v {
		v[i] = strings.TrimSpace(v[i])
	}
	return v
}

// splitArgs splits a command line like a shell would, without expansions.
func splitArgs(args string) ([]string, error) {
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	switch len(v) {
	case 0:
		return nil, nil
	case 1:
		return v[0], nil
	}
	return nil, errors.New("pipes are not supported")
}

// evaluate runs expr in the scope of ctx, interruptible with SIGINT.
func (t *Term) evaluate(ctx callContext, expr string) (*proc.Value, error) {
	if t.tgt == nil {
		return nil, errors.New("no target")
	}
	cctx, done := t.withCancel()
	defer done()
	return t.tgt.Evaluate(cctx, expr, ctx.Thread, ctx.Frame)
}

func printVar(t *Term, ctx callContext, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("not enough arguments")
	}
	format := t.tgt.DefaultFormat()
	if args[0] == '%' {
		v := split2PartsBySpace(args[1:])
		if len(v) != 2 || v[1] == "" {
			return fmt.Errorf("not enough arguments")
		}
		var err error
		if format, err = proc.ParseFormat(v[0]); err != nil {
			return err
		}
		args = v[1]
	}

	t.stdout.pw.PageMaybe(nil)
	val, err := t.evaluate(ctx, args)
	if err != nil {
		return err
	}
	s, err := val.Render(format)
	if err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, s)
	return nil
}

func whatisCommand(t *Term, ctx callContext, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("not enough arguments")
	}
	val, err := t.evaluate(ctx, args)
	if err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, val.Layout)
	fmt.Fprintf(t.stdout, "size %d, align %d\n", val.Layout.Size, val.Layout.Align)
	return nil
}

func setVar(t *Term, ctx callContext, args string) error {
	if !strings.Contains(args, "=") {
		return fmt.Errorf("wrong number of arguments: set <variable> = <value>")
	}
	_, err := t.evaluate(ctx, args)
	return err
}

func examineMemoryCmd(t *Term, ctx callContext, argstr string) error {
	length := 16
	for strings.HasPrefix(argstr, "-len") {
		v := strings.Fields(argstr)
		if len(v) < 2 {
			return fmt.Errorf("expected argument after -len")
		}
		var err error
		length, err = strconv.Atoi(v[1])
		if err != nil || length <= 0 || length > 1<<16 {
			return fmt.Errorf("invalid length %q", v[1])
		}
		argstr = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(argstr[len("-len"):]), v[1]))
	}
	if argstr == "" {
		return fmt.Errorf("no address specified")
	}
	val, err := t.evaluate(ctx, argstr)
	if err != nil {
		return err
	}
	if val.Kind() == proc.AggregateValue {
		return fmt.Errorf("can not use an expression of type %s as an address", val.Layout)
	}
	addr := val.Bits()
	data, err := t.tgt.ReadMemory(addr, length)
	if err != nil {
		return err
	}
	t.stdout.pw.PageMaybe(nil)
	for off := 0; off < len(data); off += 8 {
		end := off + 8
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(t.stdout, "%#010x:", addr+uint64(off))
		for _, b := range data[off:end] {
			fmt.Fprintf(t.stdout, "   %#04x", b)
		}
		fmt.Fprintln(t.stdout)
	}
	return nil
}

func vars(t *Term, ctx callContext, args string) error {
	var re *regexp.Regexp
	if args != "" {
		var err error
		re, err = regexp.Compile(args)
		if err != nil {
			return fmt.Errorf("invalid filter argument: %s", err.Error())
		}
	}
	t.stdout.pw.PageMaybe(nil)
	for _, name := range t.tgt.Complete("", ctx.Thread, ctx.Frame) {
		if re == nil || re.MatchString(name) {
			fmt.Fprintln(t.stdout, name)
		}
	}
	return nil
}

func symbolize(t *Term, ctx callContext, args string) error {
	if args == "" {
		return fmt.Errorf("not enough arguments")
	}
	val, err := t.evaluate(ctx, args)
	if err != nil {
		return err
	}
	if val.Kind() == proc.AggregateValue {
		return fmt.Errorf("can not use an expression of type %s as an address", val.Layout)
	}
	s := t.tgt.Symbolize(val.Bits())
	if s == "" {
		return fmt.Errorf("no symbol at %#x", val.Bits())
	}
	fmt.Fprintln(t.stdout, s)
	return nil
}

func cont(t *Term, ctx callContext, args string) error {
	if err := t.tgt.Continue(); err != nil {
		return err
	}
	t.Println("> ", fmt.Sprintf("resumed, generation %d", t.tgt.Generation()))
	return nil
}

func step(t *Term, ctx callContext, args string) error {
	tid := ctx.Thread
	if args != "" {
		var err error
		if tid, err = strconv.Atoi(args); err != nil {
			return fmt.Errorf("invalid thread id %q", args)
		}
	}
	if err := t.tgt.Step(tid); err != nil {
		return err
	}
	t.Println("> ", fmt.Sprintf("thread %d stepped, generation %d", tid, t.tgt.Generation()))
	return nil
}

func threads(t *Term, ctx callContext, args string) error {
	ids := t.tgt.Threads()
	if ids == nil {
		return errors.New("the target can not enumerate threads")
	}
	cur, _ := t.tgt.CurrentThread()
	for _, id := range ids {
		prefix := "  "
		if id == cur {
			prefix = "* "
		}
		pc := "?"
		if v, err := t.tgt.Evaluate(context.Background(), "$"+t.tgt.Arch().PCRegister, id, 0); err == nil {
			pc = fmt.Sprintf("%#x", v.Bits())
			if sym := t.tgt.Symbolize(v.Bits()); sym != "" {
				pc += " " + sym
			}
		}
		fmt.Fprintf(t.stdout, "%sThread %d at %s\n", prefix, id, pc)
	}
	return nil
}

func thread(t *Term, ctx callContext, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("you must specify a thread")
	}
	v := split2PartsBySpace(args)
	tid, err := strconv.Atoi(v[0])
	if err != nil {
		return err
	}
	if len(v) > 1 {
		return t.cmds.CallWithContext(v[1], t, callContext{Thread: tid})
	}
	old, _ := t.tgt.CurrentThread()
	if err := t.tgt.SwitchThread(tid); err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Switched from %d to %d\n", old, tid)
	return nil
}

func (c *Commands) frameCommand(t *Term, ctx callContext, argstr string, direction frameDirection) error {
	frame := 1
	arg := ""
	if len(argstr) == 0 {
		if direction == frameSet {
			return errors.New("not enough arguments")
		}
	} else {
		args := split2PartsBySpace(argstr)
		var err error
		if frame, err = strconv.Atoi(args[0]); err != nil {
			return err
		}
		if len(args) > 1 {
			arg = args[1]
		}
	}
	switch direction {
	case frameUp:
		frame = ctx.Frame + frame
	case frameDown:
		frame = ctx.Frame - frame
	}
	if frame < 0 {
		return fmt.Errorf("invalid frame %d", frame)
	}
	if len(arg) > 0 {
		ctx.Frame = frame
		return c.CallWithContext(arg, t, ctx)
	}
	if err := t.tgt.SwitchFrame(frame); err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Frame %d\n", frame)
	return nil
}

func (c *Commands) sourceCommand(t *Term, ctx callContext, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("wrong number of arguments: source <filename>")
	}

	if filepath.Ext(args) == ".star" {
		_, err := t.starlarkEnv.Execute(args, nil, "main", nil)
		return err
	}

	if args == "-" {
		return t.starlarkEnv.REPL()
	}

	return c.executeFile(t, args)
}

func transcript(t *Term, ctx callContext, args string) error {
	argv, err := splitArgs(args)
	if err != nil {
		return err
	}
	truncate, fileOnly, disable := false, false, false
	var path string
	for _, arg := range argv {
		switch arg {
		case "-x":
			fileOnly = true
		case "-t":
			truncate = true
		case "-off":
			disable = true
		default:
			if path != "" || strings.HasPrefix(arg, "-") {
				return fmt.Errorf("unrecognized option %q", arg)
			}
			path = arg
		}
	}

	if disable {
		if path != "" {
			return errors.New("-off option specified with an output path")
		}
		return t.stdout.CloseTranscript()
	}

	if path == "" {
		return errors.New("no output path specified")
	}

	flags := os.O_APPEND | os.O_WRONLY | os.O_CREATE
	if truncate {
		flags |= os.O_TRUNC
	}
	fh, err := os.OpenFile(path, flags, 0660)
	if err != nil {
		return err
	}

	if err := t.stdout.CloseTranscript(); err != nil {
		return err
	}

	t.stdout.TranscribeTo(fh, fileOnly)
	return nil
}

func cacheStats(t *Term, ctx callContext, args string) error {
	s := t.tgt.Memory().Stats()
	w := tabwriter.NewWriter(t.stdout, 0, 8, 1, ' ', 0)
	fmt.Fprintf(w, "hits\t%d\n", s.Hits)
	fmt.Fprintf(w, "misses\t%d\n", s.Misses)
	fmt.Fprintf(w, "backend reads\t%d\n", s.BackendReads)
	fmt.Fprintf(w, "uncached reads\t%d\n", s.UncachedReads)
	fmt.Fprintf(w, "cached pages\t%d\n", s.CachedPages)
	fmt.Fprintf(w, "generation\t%d\n", t.tgt.Generation())
	return w.Flush()
}

// ExitRequestError is returned when the user
// exits dlveval.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, ctx callContext, args string) error {
	return ExitRequestError{}
}

func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			fmt.Fprintf(t.stdout, "%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}
