// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package command

// Config is the dispatcher configuration.
type Config struct {
	// Prefixes are matched case-insensitively against the start of a
	// message, in order; the first match wins. A single character makes
	// commands top-level ("?help"), a word plus trailing space makes
	// subcommands ("!bot help").
	Prefixes []string `yaml:"prefixes"`
	// ReturnErrors sends a summary of unhandled command failures back to
	// the source channel.
	ReturnErrors bool `yaml:"return-errors"`
	// Sets are named subsets of hook commands (hook name to command names),
	// referenced by groups to enable only part of a hook's surface.
	Sets map[string]map[string][]string `yaml:"sets"`
	// Groups grant commands to channels and users.
	Groups map[string]Group `yaml:"groups"`
}

// Visibility lists transports whose channels a group covers, split by
// conversation type.
type Visibility struct {
	Anywhere []string `yaml:"anywhere"`
	Private  []string `yaml:"private"`
	Shared   []string `yaml:"shared"`
}

// Group is a named config bundle granting a set of commands to a set of
// channels and users.
type Group struct {
	// Transports enables the group for channels of the listed transports,
	// by conversation type.
	Transports Visibility `yaml:"transports"`
	// Channels enables the group for the listed named channels, independent
	// of the transport lists.
	Channels []string `yaml:"channels"`
	// Hooks enables every command of the listed hooks.
	Hooks []string `yaml:"hooks"`
	// Sets enables the commands named by the listed command sets.
	Sets []string `yaml:"sets"`
	// Admins maps a transport name to the user IDs authorised for
	// admin-only commands within this group.
	Admins map[string][]string `yaml:"admins"`
}
