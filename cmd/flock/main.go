package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/shelbyd/flock-deprecated/pkg/driver"
)

const cliToolVersion = "flock 0.1.0-dev"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// cli carries the process streams so commands can be exercised in tests.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	tty    bool
}

func main() {
	// Filtering happens on each logger; the global floor only has to admit trace.
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	c := &cli{
		stdout: os.Stdout,
		stderr: os.Stderr,
		tty:    term.IsTerminal(int(os.Stdout.Fd())),
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := c.run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func (c *cli) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		printUsage(c.stderr)
		return exitUsage
	}

	globals, remaining, err := parseGlobalOptions(args)
	if err != nil {
		fmt.Fprintln(c.stderr, err)
		return exitUsage
	}
	if len(remaining) == 0 {
		printUsage(c.stderr)
		return exitUsage
	}

	switch remaining[0] {
	case "--help", "-h", "help":
		printUsage(c.stdout)
		return exitOK
	case "--version", "-V", "version":
		fmt.Fprintln(c.stdout, cliToolVersion)
		return exitOK
	}

	env, err := c.setup(globals)
	if err != nil {
		fmt.Fprintf(c.stderr, "flock: %v\n", err)
		return exitUsage
	}
	defer env.loader.Close()

	switch remaining[0] {
	case "run":
		return c.runCommand(ctx, env, remaining[1:])
	case "disasm":
		return c.disasmCommand(env, remaining[1:])
	case "repl":
		return c.replCommand(ctx, env, remaining[1:])
	default:
		fmt.Fprintf(c.stderr, "flock: unknown command %q\n", remaining[0])
		printUsage(c.stderr)
		return exitUsage
	}
}

// runEnv is what every command needs once flags and config are settled.
type runEnv struct {
	cfg    *driver.Config
	log    zerolog.Logger
	loader *driver.Loader
}

func (c *cli) setup(globals globalOptions) (*runEnv, error) {
	cfg, err := driver.LoadConfig(globals.configPath)
	if err != nil {
		return nil, err
	}
	if globals.logLevel != "" {
		cfg.LogLevel = globals.logLevel
	}
	switch globals.mode {
	case execSerial:
		cfg.Workers = 1
	case execParallel:
		if cfg.Workers < 2 {
			cfg.Workers = driver.DefaultConfig().Workers
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, _ := cfg.Level()
	log := zerolog.New(zerolog.ConsoleWriter{Out: c.stderr, NoColor: !c.tty}).
		Level(level).
		With().Timestamp().Logger()

	return &runEnv{cfg: cfg, log: log, loader: driver.NewLoader(log)}, nil
}
