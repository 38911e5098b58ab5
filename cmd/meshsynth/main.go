package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/ironsheep/meshsynth/internal/config"
	"github.com/ironsheep/meshsynth/internal/logging"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	name := os.Args[1]
	switch name {
	case "--version", "-v", "version":
		fmt.Printf("meshsynth %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return
	case "--help", "-h", "help":
		printUsage()
		return
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "meshsynth: unknown command %q\n\n", name)
		printUsage()
		os.Exit(2)
	}

	os.Exit(run(cmd, name, os.Args[2:]))
}

func run(cmd command, name string, args []string) int {
	cfg, err := config.Load(configPath(args))
	if err != nil {
		fmt.Fprintf(os.Stderr, "meshsynth: %v\n", err)
		return 1
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.String("config", "", "config file (default "+config.DefaultFile+" if present)")
	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "debug, info, warn or error")
	fs.StringVar(&cfg.Logging.File, "log-file", cfg.Logging.File, "also log to this rotating file")
	saveConfig := fs.String("save-config", "", "write the effective config to this file")
	if cmd.flags != nil {
		cmd.flags(fs, cfg)
	}
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: meshsynth %s [flags]\n\n%s\n\nFlags:\n", name, cmd.summary)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	closer := logging.Setup(cfg.Logging)
	defer closer.Close()

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}
	if *saveConfig != "" {
		if err := cfg.SaveTo(*saveConfig); err != nil {
			log.Error().Err(err).Msg("failed to save config")
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debug().Str("version", Version).Str("command", name).Msg("starting")
	if err := cmd.run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn().Str("command", name).Msg("interrupted")
			return 130
		}
		log.Error().Err(err).Str("command", name).Msg("command failed")
		return 1
	}
	return 0
}

// configPath finds -config or --config in args before the flag set exists,
// so the file can supply the defaults that flags then override.
func configPath(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func printUsage() {
	fmt.Println("meshsynth - synthetic object-detection datasets from 3D meshes")
	fmt.Println()
	fmt.Println("Usage: meshsynth <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, name := range commandOrder {
		fmt.Printf("  %-10s %s\n", name, commands[name].summary)
	}
	fmt.Println("  version    Print version information")
	fmt.Println("  help       Print this help message")
	fmt.Println()
	fmt.Println("Run 'meshsynth <command> -h' for the flags of a command.")
	fmt.Println()
	fmt.Println("Configuration is read from " + config.DefaultFile + " (or -config), then")
	fmt.Println("MESHSYNTH_* environment variables and a .env file, then flags.")
}
