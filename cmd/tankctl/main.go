// tankctl inspects the merged namespace of a set of Tank archives.
//
// Archives are found through a YAML config file (--config or $TANK_CONFIG),
// an install directory (--install), or listed explicitly with --archive.
// Every command sees the same priority-resolved view the game does.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/meigma/tank/config"
	"github.com/meigma/tank/overlay"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

// usageError reports bad command-line input.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }
func (e *usageError) ExitCode() int { return 2 }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

var commands = []command{
	{"info", "list loaded archives in priority order", runInfo},
	{"ls", "list directory contents", runLs},
	{"cat", "write file contents to stdout", runCat},
	{"stat", "show file metadata and content digest", runStat},
	{"find", "find files by glob pattern or bare name", runFind},
	{"grep", "search file contents with a regular expression", runGrep},
	{"extract", "extract files to a directory", runExtract},
	{"mount", "mount the merged namespace with FUSE", runMount},
}

// env carries what every command needs.
type env struct {
	cfg      *config.Config
	archives []string
	logger   *slog.Logger
	paint    *palette
	stdout   io.Writer
	stderr   io.Writer
}

// palette colors command output.
type palette struct {
	dir   *color.Color
	path  *color.Color
	match *color.Color
}

// newPalette resolves a --color mode. "auto" colors only when stdout is
// a terminal.
func newPalette(mode string, stdout io.Writer) (*palette, error) {
	var enabled bool
	switch mode {
	case "always":
		enabled = true
	case "never":
	case "auto":
		if f, ok := stdout.(*os.File); ok {
			enabled = term.IsTerminal(int(f.Fd())) //nolint:gosec // file descriptors fit in int
		}
	default:
		return nil, usagef("invalid --color %q (want auto, always or never)", mode)
	}

	p := &palette{
		dir:   color.New(color.FgBlue, color.Bold),
		path:  color.New(color.FgMagenta),
		match: color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{p.dir, p.path, p.match} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		configPath string
		installDir string
		archives   []string
		skipBroken bool
		mmap       bool
		verifyCRC  bool
		verbose    bool
		colorMode  string
		cpuProfile string
		memProfile string
	)

	flagSet := pflag.NewFlagSet("tankctl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&configPath, "config", "", "path to YAML config file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&installDir, "install", "", "game install directory holding Resources and Maps")
	flagSet.StringArrayVarP(&archives, "archive", "a", nil, "load this archive file instead of discovering (repeatable)")
	flagSet.BoolVar(&skipBroken, "skip-broken", false, "skip archives that fail to load")
	flagSet.BoolVar(&mmap, "mmap", false, "memory-map archives")
	flagSet.BoolVar(&verifyCRC, "verify-crc", false, "verify CRC-32 of extracted files")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flagSet.StringVar(&colorMode, "color", "auto", "colorize output: auto, always or never")
	flagSet.StringVar(&cpuProfile, "cpu-profile", "", "write a CPU profile to this file")
	flagSet.StringVar(&memProfile, "mem-profile", "", "write a heap profile to this file on exit")
	flagSet.Usage = func() { printHelp(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return usagef("%v", err)
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stderr, flagSet)
		return usagef("no command given")
	}
	if rest[0] == "help" {
		printHelp(stderr, flagSet)
		return nil
	}
	var cmd *command
	for i := range commands {
		if commands[i].name == rest[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		return usagef("unknown command %q (see tankctl --help)", rest[0])
	}

	if configPath == "" {
		configPath = os.Getenv(config.EnvVar)
	}
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if flagSet.Changed("install") {
		cfg.InstallDir = installDir
	}
	if flagSet.Changed("skip-broken") {
		cfg.SkipBroken = skipBroken
	}
	if flagSet.Changed("mmap") {
		cfg.Mmap = mmap
	}
	if flagSet.Changed("verify-crc") {
		cfg.VerifyCRC = verifyCRC
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if len(archives) == 0 {
		if err := cfg.Validate(); err != nil {
			return usagef("no archives to load: %v", err)
		}
	}
	level, err := cfg.Level()
	if err != nil {
		return usagef("%v", err)
	}
	paint, err := newPalette(colorMode, stdout)
	if err != nil {
		return err
	}

	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			return fmt.Errorf("creating CPU profile: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("starting CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}
	if memProfile != "" {
		defer writeHeapProfile(memProfile, stderr)
	}

	e := &env{
		cfg:      cfg,
		archives: archives,
		logger:   slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})),
		paint:    paint,
		stdout:   stdout,
		stderr:   stderr,
	}
	return cmd.run(ctx, e, rest[1:])
}

func writeHeapProfile(path string, stderr io.Writer) {
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(stderr, "creating heap profile: %v\n", err)
		return
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		fmt.Fprintf(stderr, "writing heap profile: %v\n", err)
	}
}

// openSet loads the configured archives.
func (e *env) openSet(ctx context.Context) (*overlay.Set, error) {
	paths := e.archives
	if len(paths) == 0 {
		dirs := e.cfg.SearchDirs()
		var err error
		if paths, err = overlay.Discover(dirs, e.cfg.Extensions); err != nil {
			return nil, err
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("no archives found in %s", strings.Join(dirs, ", "))
		}
	}
	return overlay.Load(ctx, paths, e.cfg.OverlayOptions(e.logger)...)
}

// flagSet returns a flag set for a subcommand.
func (e *env) flagSet(name, usage string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(e.stderr)
	flags.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage:\n  tankctl %s %s\n\nFlags:\n", name, usage)
		flags.PrintDefaults()
	}
	return flags
}

// parseFlags parses subcommand flags. done is true when help was shown.
func parseFlags(flags *pflag.FlagSet, args []string) (done bool, err error) {
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return true, nil
		}
		return true, usagef("%s: %v", flags.Name(), err)
	}
	return false, nil
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `tankctl inspects Tank archives through their priority-merged namespace.

Usage:
  tankctl [flags] <command> [command flags] [args]

Commands:
`)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, `
Examples:
  # List the root of an install
  tankctl --install "/games/Dungeon Siege" ls -l

  # Print a file from two explicit archives
  tankctl -a Logic.dsres -a Patch.dsres cat /world/global/gas/foo.gas

  # Extract every map template
  tankctl --config tank.yaml extract -o out '/world/maps/**/*.gas'

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}
