// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/whychoosebob/IMMP/pkg/bridge"
	"github.com/whychoosebob/IMMP/pkg/command"
	"github.com/whychoosebob/IMMP/pkg/transport/mattermost"
	"github.com/whychoosebob/IMMP/pkg/transport/slack"
	"github.com/whychoosebob/IMMP/pkg/transport/telegram"
)

// Config is the top-level bridge configuration file.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	// Transports maps instance names to transport blocks. Each block has a
	// "type" key selecting the implementation; the remaining keys are that
	// transport's own config.
	Transports map[string]yaml.Node `yaml:"transports"`
	// Channels are named handles for platform channels, referenced by
	// command groups.
	Channels map[string]ChannelConfig `yaml:"channels"`
	// Command configures the command dispatcher hook. Omitting the section
	// disables command handling.
	Command *command.Config `yaml:"command"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type ChannelConfig struct {
	Transport string `yaml:"transport"`
	Source    string `yaml:"source"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, bridge.ConfigErrorf("parsing %s: %v", path, err)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return nil, bridge.ConfigErrorf("logging: unknown level %q", cfg.Logging.Level)
	}
	for name, ch := range cfg.Channels {
		if ch.Transport == "" || ch.Source == "" {
			return nil, bridge.ConfigErrorf("channel %q: transport and source are required", name)
		}
		if _, ok := cfg.Transports[ch.Transport]; !ok {
			return nil, bridge.ConfigErrorf("channel %q: unknown transport %q", name, ch.Transport)
		}
	}
	return &cfg, nil
}

// buildTransport decodes one transport block and constructs the transport
// it names.
func buildTransport(name string, node yaml.Node, log zerolog.Logger) (bridge.Transport, error) {
	var head struct {
		Type string `yaml:"type"`
	}
	if err := node.Decode(&head); err != nil {
		return nil, bridge.ConfigErrorf("transport %q: %v", name, err)
	}
	switch head.Type {
	case "telegram":
		var cfg telegram.Config
		if err := node.Decode(&cfg); err != nil {
			return nil, bridge.ConfigErrorf("transport %q: %v", name, err)
		}
		return telegram.New(name, cfg, log)
	case "slack":
		var cfg slack.Config
		if err := node.Decode(&cfg); err != nil {
			return nil, bridge.ConfigErrorf("transport %q: %v", name, err)
		}
		return slack.New(name, cfg, log)
	case "mattermost":
		var cfg mattermost.Config
		if err := node.Decode(&cfg); err != nil {
			return nil, bridge.ConfigErrorf("transport %q: %v", name, err)
		}
		return mattermost.New(name, cfg, log)
	case "":
		return nil, bridge.ConfigErrorf("transport %q: type is required", name)
	default:
		return nil, bridge.ConfigErrorf("transport %q: unknown type %q", name, head.Type)
	}
}
