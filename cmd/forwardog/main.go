package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/oicur0t/forwardog/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "dev"

// errFailed makes the process exit 1 after output has already been printed
var errFailed = errors.New("failed")

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"submit":       {"submit <kind> [flags]   submit one payload", runSubmit},
	"history":      {"history list|show|replay|clear|export", runHistory},
	"presets":      {"presets <kind>          list backend presets", runPresets},
	"validate-key": {"validate-key            check the backend API key", runValidateKey},
	"agent-file":   {"agent-file recent|clear show or clear the agent log file", runAgentFile},
	"config":       {"config                  show the backend configuration", runConfig},
	"theme":        {"theme [light|dark]      show or set the theme", runTheme},
	"follow":       {"follow <file>           tail a file as agent-file batches", runFollow},
	"serve":        {"serve                   run the local HTTP API", runServe},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("forwardog", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "Path to configuration file (default "+config.DefaultConfigPath()+" when present)")
	verbose := global.Bool("v", false, "Verbose output")
	global.Usage = func() { usage(global, stderr) }

	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		usage(global, stderr)
		return 2
	}

	cmd, ok := commands[global.Arg(0)]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command %q\n\n", global.Arg(0))
		usage(global, stderr)
		return 2
	}

	// Load configuration
	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// Initialize logger
	logger, err := initLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, stdin, stdout, *verbose)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer a.Close(context.WithoutCancel(ctx))

	if err := cmd.run(ctx, a, global.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func usage(global *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, "forwardog %s: telemetry submission test harness\n\n", version)
	fmt.Fprintln(w, "Usage: forwardog [global flags] <command> [args]")
	fmt.Fprintln(w, "\nCommands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}

	fmt.Fprintln(w, "\nGlobal flags:")
	global.PrintDefaults()
}

// initLogger creates a configured zap logger
func initLogger(level string, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var loggerConfig zap.Config
	if format == "json" {
		loggerConfig = zap.NewProductionConfig()
	} else {
		loggerConfig = zap.NewDevelopmentConfig()
	}

	loggerConfig.Level = zap.NewAtomicLevelAt(zapLevel)

	return loggerConfig.Build()
}
