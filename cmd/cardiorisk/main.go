// CardioRisk - Cardiovascular risk scoring as a service.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/opensource-finance/cardiorisk/internal/config"
	"github.com/opensource-finance/cardiorisk/internal/domain"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const (
	configFlagName = "config"
	debugFlagName  = "debug"
)

// app carries state shared by the subcommands once flags are parsed.
type app struct {
	cfg *domain.Config
}

func main() {
	initLogging("info", "json")

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	a := &app{}
	return &cli.Command{
		Name:    "cardiorisk",
		Usage:   "Cardiovascular risk classification service",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    configFlagName,
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				Sources: cli.EnvVars("CARDIORISK_CONFIG"),
			},
			&cli.BoolFlag{
				Name:    debugFlagName,
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("CARDIORISK_DEBUG"),
			},
		},
		Before: a.before,
		Action: a.serve,
		Commands: []*cli.Command{
			a.serveCommand(),
			a.scoreCommand(),
			a.schemaCommand(),
			benchmarkCommand(),
		},
	}
}

func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(cmd.String(configFlagName))
	if err != nil {
		return ctx, err
	}
	if cmd.Bool(debugFlagName) {
		cfg.Logging.Level = "debug"
	}
	initLogging(cfg.Logging.Level, cfg.Logging.Format)
	a.cfg = cfg
	return ctx, nil
}

func initLogging(level, format string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, opts)
	if format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
