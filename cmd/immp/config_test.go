// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/whychoosebob/IMMP/pkg/bridge"
	"github.com/whychoosebob/IMMP/pkg/transport/telegram"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
logging:
  level: debug
transports:
  tg:
    type: telegram
    token: "12345:SECRET"
channels:
  general:
    transport: tg
    source: "-100200300"
command:
  prefixes: ["!bot "]
  groups:
    everyone:
      transports:
        anywhere: [tg]
      hooks: [command]
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Channels["general"].Source != "-100200300" {
		t.Errorf("channel = %+v", cfg.Channels["general"])
	}
	if cfg.Command == nil || len(cfg.Command.Prefixes) != 1 || cfg.Command.Prefixes[0] != "!bot " {
		t.Errorf("Command = %+v", cfg.Command)
	}
	if _, ok := cfg.Command.Groups["everyone"]; !ok {
		t.Error("missing group everyone")
	}

	tr, err := buildTransport("tg", cfg.Transports["tg"], zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	tg, ok := tr.(*telegram.Transport)
	if !ok {
		t.Fatalf("transport is %T, want *telegram.Transport", tr)
	}
	if tg.Name() != "tg" {
		t.Errorf("Name() = %q, want tg", tg.Name())
	}
}

func TestLoadConfigDefaultsLevel(t *testing.T) {
	t.Parallel()
	cfg, err := loadConfig(writeConfig(t, "transports: {}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadConfigBadChannel(t *testing.T) {
	t.Parallel()
	_, err := loadConfig(writeConfig(t, `
channels:
  general:
    transport: missing
    source: C1
`))
	var cerr *bridge.ConfigError
	if !errors.As(err, &cerr) {
		t.Errorf("loadConfig() error = %v, want ConfigError", err)
	}
}

func TestBuildTransportUnknownType(t *testing.T) {
	t.Parallel()
	cfg, err := loadConfig(writeConfig(t, `
transports:
  x:
    type: carrier-pigeon
`))
	if err != nil {
		t.Fatal(err)
	}
	_, err = buildTransport("x", cfg.Transports["x"], zerolog.Nop())
	var cerr *bridge.ConfigError
	if !errors.As(err, &cerr) {
		t.Errorf("buildTransport() error = %v, want ConfigError", err)
	}
}

func TestBuildTransportMissingToken(t *testing.T) {
	t.Parallel()
	cfg, err := loadConfig(writeConfig(t, `
transports:
  tg:
    type: telegram
`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := buildTransport("tg", cfg.Transports["tg"], zerolog.Nop()); err == nil {
		t.Error("buildTransport() = nil error without a token")
	}
}
