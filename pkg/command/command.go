// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package command discovers commands exposed by active hooks, resolves
// which are usable in a given channel and user context against named config
// groups, parses and validates arguments, and dispatches invocations.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/shlex"

	"github.com/whychoosebob/IMMP/pkg/bridge"
)

// ErrBadUsage is returned by a command body to indicate the arguments were
// invalid; the dispatcher recovers it locally and responds with the
// command's help text.
var ErrBadUsage = errors.New("bad usage")

// Parser selects how the argument text following a command name is split.
type Parser int

const (
	// ParseSpaces splits on whitespace runs.
	ParseSpaces Parser = iota
	// ParseShell splits shell-style, allowing quoting of multi-word
	// arguments.
	ParseShell
	// ParseNone passes the trailing text through as a single argument.
	ParseNone
)

// Scope restricts the conversation types a command is available in.
type Scope int

const (
	ScopeAnywhere Scope = iota
	ScopePrivate
	ScopeShared
)

// Role restricts which users may invoke a command.
type Role int

const (
	RoleAnyone Role = iota
	RoleAdmin
)

// Param is one entry in a command's parameter signature. A variadic
// parameter must be last and absorbs any surplus arguments.
type Param struct {
	Name     string
	Required bool
	Variadic bool
}

// Func is a command body. Parsed arguments arrive per the command's parser
// mode; returning [ErrBadUsage] (possibly wrapped) requests the command's
// help text instead of an error report.
type Func func(ctx context.Context, msg *bridge.Message, source *bridge.Channel, args []string) error

// Command describes one invokable command. Commands are defined once per
// hook type and are immutable thereafter.
type Command struct {
	// Name is the lowercase token following the prefix, unique per hook.
	Name   string
	Doc    string
	Parser Parser
	Scope  Scope
	Role   Role
	Params []Param
	// Test optionally enables or disables the command based on hook state.
	Test func() bool
	Run  Func
}

// Spec returns a readable summary of the accepted arguments, e.g.
// "<required> [optional] [varargs...]".
func (c *Command) Spec() string {
	parts := make([]string, 0, len(c.Params))
	for _, p := range c.Params {
		switch {
		case p.Variadic:
			parts = append(parts, "["+p.Name+"...]")
		case p.Required:
			parts = append(parts, "<"+p.Name+">")
		default:
			parts = append(parts, "["+p.Name+"]")
		}
	}
	return strings.Join(parts, " ")
}

// ParseArgs splits the trailing argument text per the command's parser mode.
func (c *Command) ParseArgs(trailing string) ([]string, error) {
	if trailing == "" {
		return nil, nil
	}
	switch c.Parser {
	case ParseShell:
		return shlex.Split(trailing)
	case ParseNone:
		return []string{trailing}, nil
	default:
		return strings.Fields(trailing), nil
	}
}

// Valid checks the argument count against the parameter signature.
func (c *Command) Valid(args []string) error {
	required := 0
	variadic := false
	for _, p := range c.Params {
		if p.Variadic {
			variadic = true
		} else if p.Required {
			required++
		}
	}
	if len(args) < required {
		return fmt.Errorf("expected at least %d args, got %d", required, len(args))
	}
	if len(args) > len(c.Params) && !variadic {
		return fmt.Errorf("expected at most %d args, got %d", len(c.Params), len(args))
	}
	return nil
}

// Provider is implemented by hooks that expose commands. The returned slice
// must be stable across calls: it is the hook type's definition-time
// registration list, not a per-call construction.
type Provider interface {
	Commands() []*Command
}

// BoundCommand pairs a hook instance with one of its commands. Bindings are
// transient: built fresh on every lookup and discarded after use.
type BoundCommand struct {
	Hook bridge.Hook
	*Command
}

// Applicable reports whether the command may be used in a channel with the
// given privacy, by a user with the given admin status.
func (b BoundCommand) Applicable(private, admin bool) bool {
	if b.Scope == ScopePrivate && !private {
		return false
	}
	if b.Scope == ScopeShared && private {
		return false
	}
	if b.Role == RoleAdmin && !admin {
		return false
	}
	if b.Test != nil {
		return b.Test()
	}
	return true
}

// Discover returns the commands declared by a hook, keyed by lowercase
// name. A hook that is not active, or exposes no commands, yields nothing.
func Discover(h bridge.Hook) map[string]BoundCommand {
	if h == nil || h.State() != bridge.StateActive {
		return nil
	}
	p, ok := h.(Provider)
	if !ok {
		return nil
	}
	cmds := p.Commands()
	out := make(map[string]BoundCommand, len(cmds))
	for _, cmd := range cmds {
		out[strings.ToLower(cmd.Name)] = BoundCommand{Hook: h, Command: cmd}
	}
	return out
}

// splitInvocation separates a prefix-stripped message into the lowercase
// command name and the trailing argument text.
func splitInvocation(rest string) (name, trailing string) {
	rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
	idx := strings.IndexFunc(rest, unicode.IsSpace)
	if idx < 0 {
		return strings.ToLower(rest), ""
	}
	return strings.ToLower(rest[:idx]), strings.TrimLeftFunc(rest[idx:], unicode.IsSpace)
}
