package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"remuxkit/internal/av"
	"remuxkit/internal/libav"
	"remuxkit/internal/logging"
	"remuxkit/internal/metrics"
	"remuxkit/internal/startup"
)

// Exit codes shared by every tool.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitPolicy = 2
)

// Tool holds the flags and settings common to the command-line tools.
type Tool struct {
	Name   string
	Flags  *flag.FlagSet
	Config startup.ToolConfig

	usage   string
	stderr  io.Writer
	verbose bool
	debug   bool
	trace   bool
	version bool
}

// New registers -v, -d, -t and -version on a fresh flag set. usage is the
// argument synopsis shown after the tool name.
func New(name, usage string) *Tool {
	t := &Tool{
		Name:   name,
		Flags:  flag.NewFlagSet(name, flag.ContinueOnError),
		usage:  usage,
		stderr: os.Stderr,
	}
	t.Flags.SetOutput(t.stderr)
	t.Flags.BoolVar(&t.verbose, "v", false, "verbose output")
	t.Flags.BoolVar(&t.debug, "d", false, "debug output")
	t.Flags.BoolVar(&t.trace, "t", false, "trace every packet")
	t.Flags.BoolVar(&t.version, "version", false, "print version and exit")
	t.Flags.Usage = t.printUsage
	return t
}

func (t *Tool) printUsage() {
	fmt.Fprintf(t.stderr, "Usage: %s [options] %s\n\nOptions:\n", t.Name, t.usage)
	t.Flags.PrintDefaults()
}

// Parse parses args, applies the log level flags and loads the tool
// configuration. It returns false with an exit code when the tool should
// stop (after -version, -h or a bad flag).
func (t *Tool) Parse(args []string) (int, bool) {
	if err := t.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK, false
		}
		return ExitPolicy, false
	}
	if t.version {
		startup.FrameworkVersion = libav.Version()
		fmt.Printf("%s %s\n", t.Name, startup.GetBuildInfo())
		return ExitOK, false
	}

	switch {
	case t.trace:
		logging.SetLevel(logging.LevelTrace)
	case t.debug:
		logging.SetLevel(logging.LevelDebug)
	case t.verbose:
		logging.SetLevel(logging.LevelInfo)
	default:
		logging.SetLevel(logging.LevelWarn)
	}
	t.Config = startup.LoadToolConfig()
	return ExitOK, true
}

// Usagef reports a usage error and returns the policy exit code.
func (t *Tool) Usagef(format string, args ...interface{}) int {
	fmt.Fprintf(t.stderr, "%s: %s\n", t.Name, fmt.Sprintf(format, args...))
	t.printUsage()
	return ExitPolicy
}

// Run executes fn against the FFmpeg framework with a context canceled on
// SIGINT or SIGTERM, writes the metrics textfile when configured and maps
// the outcome to an exit code.
func (t *Tool) Run(fn func(ctx context.Context, fw av.Framework) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fw := libav.New(libav.Config{LogLevel: t.ffmpegLogLevel()})
	err := fn(ctx, fw)

	if werr := metrics.WriteTextfile(t.Config.MetricsTextfile); werr != nil {
		logging.Warn("%v", werr)
	}
	return t.report(err)
}

// ffmpegLogLevel raises the FFmpeg log level along with the tool's.
func (t *Tool) ffmpegLogLevel() string {
	switch {
	case t.trace:
		return "trace"
	case t.debug:
		return "debug"
	case t.verbose:
		return "info"
	}
	return t.Config.FFmpegLogLevel
}

func (t *Tool) report(err error) int {
	code := ExitCode(err)
	if err != nil {
		fmt.Fprintf(t.stderr, "%s: %v\n", t.Name, err)
	}
	return code
}

// ExitCode maps an error to the process exit status: 0 on success, 2 for
// policy refusals, 1 for everything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case av.IsPolicy(err):
		return ExitPolicy
	default:
		return ExitFailed
	}
}
