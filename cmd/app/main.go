package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/engram/internal"
	"github.com/starford/engram/internal/printer"
	pkgconfig "github.com/starford/engram/pkg/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// out is replaced in tests.
var out = printer.Stdio()

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found && cmd.IsSet("config") {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	if v := cmd.String("project"); v != "" {
		cfg.Memory.Project = v
	}
	if v := cmd.String("memory-dir"); v != "" {
		cfg.Memory.Dir = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// cliLogger keeps one-shot commands quiet unless --debug is given.
func cliLogger(cmd *cli.Command) *slog.Logger {
	level := slog.LevelWarn
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	var w io.Writer = os.Stderr
	if out.Err != nil {
		w = out.Err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "engram",
		Usage:   "Version control for categorized LLM session knowledge",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "Project whose knowledge to operate on",
				Sources: cli.EnvVars("ENGRAM_PROJECT"),
			},
			&cli.StringFlag{
				Name:    "memory-dir",
				Usage:   "Root of the memory directory",
				Sources: cli.EnvVars("ENGRAM_MEMORY_DIR"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Log repository operations to stderr",
			},
		},
		Commands: []*cli.Command{
			initCommand(),
			statusCommand(),
			stageCommand(),
			commitCommand(),
			logCommand(),
			showCommand(),
			branchCommand(),
			checkoutCommand(),
			diffCommand(),
			searchCommand(),
			serveCommand(),
			mcpCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_ = explain(out, err)
		os.Exit(1)
	}
}
