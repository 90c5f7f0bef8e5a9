// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command immp runs a message bridge: it connects the transports named in
// the config file, routes every inbound message through the registered
// hooks, and dispatches prefixed commands.
package main

import (
	"context"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mau.fi/util/exzerolog"

	"github.com/whychoosebob/IMMP/pkg/bridge"
	"github.com/whychoosebob/IMMP/pkg/command"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "immp",
	Short:        "A modular message bridge",
	Version:      Tag + " (" + Commit + ", built " + BuildTime + ")",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the config file")
}

func setupLogging(cfg LoggingConfig) zerolog.Logger {
	var log zerolog.Logger
	if cfg.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli})
	} else {
		log = zerolog.New(os.Stderr)
	}
	level, _ := zerolog.ParseLevel(cfg.Level)
	log = log.With().Timestamp().Logger().Level(level)
	exzerolog.SetupDefaults(&log)
	return log
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log := setupLogging(cfg.Logging)

	host := bridge.NewHost(log)
	for _, name := range slices.Sorted(maps.Keys(cfg.Transports)) {
		t, err := buildTransport(name, cfg.Transports[name], log)
		if err != nil {
			return err
		}
		if err := host.AddTransport(t); err != nil {
			return err
		}
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.Channels)) {
		cc := cfg.Channels[name]
		ch := &bridge.Channel{Transport: host.Transport(cc.Transport), Source: cc.Source}
		if err := host.AddChannel(name, ch); err != nil {
			return err
		}
	}
	if cfg.Command != nil {
		if err := host.AddHook(command.New("command", *cfg.Command, host, log), true); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Info().Str("version", Tag).Str("config", configPath).Msg("Starting bridge")
	err = host.Run(ctx)
	log.Info().Err(err).Msg("Bridge stopped")
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
