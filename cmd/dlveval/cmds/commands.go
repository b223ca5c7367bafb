package cmds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-delve/dlveval/pkg/config"
	"github.com/go-delve/dlveval/pkg/logflags"
	"github.com/go-delve/dlveval/pkg/proc"
	"github.com/go-delve/dlveval/pkg/proc/snapshot"
	"github.com/go-delve/dlveval/pkg/terminal"
	"github.com/go-delve/dlveval/pkg/version"
)

const envPrefix = "DLVEVAL"

var (
	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	// settings overlays DLVEVAL_* environment variables on the flags.
	settings *viper.Viper

	conf *config.Config
)

const dlvevalCommandLongDesc = `dlveval evaluates C-like expressions against a paused process.

A target is described by a snapshot file: the memory regions, threads,
frames, symbols and type layouts of the stopped inferior. Expressions are
resolved and evaluated against it exactly as they would be against a live
process, including writes and resumes.

Every flag can also be set through an environment variable named after the
flag, for example DLVEVAL_SNAPSHOT=core.yml or DLVEVAL_MAX_FUEL=1000.`

// New returns an initialized command tree.
func New(docCall bool) *cobra.Command {
	settings = viper.New()
	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	// Main dlveval root command.
	rootCommand = &cobra.Command{
		Use:           "dlveval",
		Short:         "dlveval is an expression evaluator for paused processes.",
		Long:          dlvevalCommandLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCommand.PersistentFlags()
	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	flags.StringP("snapshot", "s", "", "Snapshot file describing the target.")
	flags.String("config", "", "Configuration file, by default $HOME/.dlveval/config.yml.")
	flags.Bool("log", false, "Enable logging.")
	flags.String("log-output", "", `Comma separated list of components that should produce debug output (see 'dlveval help log')`)
	flags.String("log-dest", "", "Writes logs to the specified file or file descriptor (see 'dlveval help log').")
	flags.Int("max-fuel", 0, "Maximum number of expression nodes evaluated by a single expression.")
	flags.Bool("check-array-bounds", false, "Reject out of bounds indexing of arrays of known length.")
	flags.String("default-format", "", "Default output format (decimal, hex, char, pointer, struct).")
	if err := settings.BindPFlags(flags); err != nil {
		panic(err)
	}

	// 'eval' subcommand.
	evalCommand := &cobra.Command{
		Use:   "eval expr...",
		Short: "Evaluates expressions and prints their values.",
		Long: `Evaluates each expression in the current thread and frame of the target and
prints its value, one per line. Use --thread and --frame to select a different
scope and --format to select the output format.`,
		Args: cobra.MinimumNArgs(1),
		RunE: evalCmd,
	}
	evalCommand.Flags().Int("thread", 0, "Thread to evaluate in, by default the current thread.")
	evalCommand.Flags().Int("frame", 0, "Frame to evaluate in.")
	evalCommand.Flags().String("format", "", "Output format, by default the configured default format.")
	rootCommand.AddCommand(evalCommand)

	// 'repl' subcommand.
	replCommand := &cobra.Command{
		Use:   "repl",
		Short: "Starts an interactive session on the target.",
		Long: `Starts an interactive session on the target. Type 'help' at the prompt for
the list of commands.`,
		Args: cobra.NoArgs,
		RunE: replCmd,
	}
	replCommand.Flags().String("init", "", "Init file, executed before the first prompt.")
	rootCommand.AddCommand(replCommand)

	// 'script' subcommand.
	scriptCommand := &cobra.Command{
		Use:   "script path [args...]",
		Short: "Runs a starlark script or a file of commands against the target.",
		Long: `Runs a file against the target. Files with the .star extension are starlark
scripts, the remaining arguments are passed to their main function. Any
other file is read as a list of terminal commands, one per line.`,
		Args: cobra.MinimumNArgs(1),
		RunE: scriptCmd,
	}
	rootCommand.AddCommand(scriptCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dlveval\n%s\n", version.DlvevalVersion)
			if settings.GetBool("verbose") {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolP("verbose", "v", false, "print verbose version info")
	if err := settings.BindPFlag("verbose", versionCommand.Flags().Lookup("verbose")); err != nil {
		panic(err)
	}
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	evaluator	Log expression parsing and evaluation
	memory		Log memory reads, writes and cache invalidations
	symbols		Log symbol resolution
	session		Log evaluation sessions and their budgets
	target		Log resumes and thread switches

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.

`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

// loadConfig reads the configuration file and applies the flags and
// environment variables that override it.
func loadConfig() (*config.Config, error) {
	var (
		c   *config.Config
		err error
	)
	if path := settings.GetString("config"); path != "" {
		c, err = config.LoadConfigFrom(path)
	} else {
		c, err = config.LoadConfig()
	}
	if err != nil {
		// The defaults are still usable.
		fmt.Fprintln(os.Stderr, err)
	}
	if settings.IsSet("max-fuel") {
		if n := settings.GetInt("max-fuel"); n > 0 {
			c.MaxFuel = n
		} else {
			return nil, fmt.Errorf("max-fuel must be a number greater than zero")
		}
	}
	if settings.IsSet("check-array-bounds") {
		c.CheckArrayBounds = settings.GetBool("check-array-bounds")
	}
	if f := settings.GetString("default-format"); f != "" {
		if _, err := proc.ParseFormat(f); err != nil {
			return nil, err
		}
		c.DefaultFormat = f
	}
	return c, nil
}

// withTarget sets up logging, loads the configuration and the snapshot
// and calls fn with a target on it.
func withTarget(fn func(tgt *proc.Target) error) error {
	if err := logflags.Setup(settings.GetBool("log"), settings.GetString("log-output"), settings.GetString("log-dest")); err != nil {
		return err
	}
	defer logflags.Close()

	path := settings.GetString("snapshot")
	if path == "" {
		return errors.New("no snapshot specified, use --snapshot or " + envPrefix + "_SNAPSHOT")
	}

	var err error
	conf, err = loadConfig()
	if err != nil {
		return err
	}

	s, err := snapshot.Load(path)
	if err != nil {
		return err
	}
	tgt, err := proc.NewTarget(s, s, conf)
	if err != nil {
		return err
	}
	return fn(tgt)
}

func evalCmd(cmd *cobra.Command, args []string) error {
	thread, _ := cmd.Flags().GetInt("thread")
	frame, _ := cmd.Flags().GetInt("frame")
	format, _ := cmd.Flags().GetString("format")
	return withTarget(func(tgt *proc.Target) error {
		return evaluateAll(cmd.Context(), cmd.OutOrStdout(), tgt, args, thread, frame, format)
	})
}

func evaluateAll(ctx context.Context, out io.Writer, tgt *proc.Target, exprs []string, thread, frame int, format string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if thread == 0 {
		thread, _ = tgt.CurrentThread()
	}
	f := tgt.DefaultFormat()
	if format != "" {
		var err error
		if f, err = proc.ParseFormat(format); err != nil {
			return err
		}
	}
	for _, expr := range exprs {
		v, err := tgt.Evaluate(ctx, expr, thread, frame)
		if err != nil {
			return err
		}
		s, err := v.Render(f)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	}
	return nil
}

func replCmd(cmd *cobra.Command, args []string) error {
	initFile, _ := cmd.Flags().GetString("init")
	return withTarget(func(tgt *proc.Target) error {
		term := terminal.New(tgt, conf)
		term.InitFile = initFile
		status, err := term.Run()
		if err != nil {
			return err
		}
		if status != 0 {
			return fmt.Errorf("exit status %d", status)
		}
		return nil
	})
}

func scriptCmd(cmd *cobra.Command, args []string) error {
	return withTarget(func(tgt *proc.Target) error {
		term := terminal.New(tgt, conf)
		defer term.Close()
		err := term.Source(args[0], args[1:]...)
		if _, isExit := err.(terminal.ExitRequestError); isExit {
			return nil
		}
		return err
	})
}
