// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package command

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/whychoosebob/IMMP/pkg/bridge"
	"github.com/whychoosebob/IMMP/pkg/richtext"
)

// Hook is the command dispatcher: a bridge hook that watches primary
// inbound messages for a configured prefix and routes matching invocations
// to commands exposed by other hooks. It exposes a built-in "help" command
// listing whatever is available in the calling context.
type Hook struct {
	bridge.Openable
	name string
	cfg  Config
	host *bridge.Host
	log  zerolog.Logger

	commands []*Command
}

var (
	_ bridge.Hook = (*Hook)(nil)
	_ Provider    = (*Hook)(nil)
)

// New creates the dispatcher hook.
func New(name string, cfg Config, host *bridge.Host, log zerolog.Logger) *Hook {
	h := &Hook{
		name: name,
		cfg:  cfg,
		host: host,
		log:  log.With().Str("component", "command").Str("hook", name).Logger(),
	}
	h.commands = []*Command{{
		Name:   "help",
		Doc:    "List all available commands in this channel, or show help about a single command.",
		Params: []Param{{Name: "command"}},
		Run:    h.runHelp,
	}}
	return h
}

func (h *Hook) Name() string { return h.name }

func (h *Hook) Connect(ctx context.Context) error {
	return h.Open(ctx, func(context.Context) error { return nil })
}

func (h *Hook) Disconnect(ctx context.Context) error {
	return h.Close(ctx, func(context.Context) error { return nil })
}

// Commands implements Provider with the dispatcher's own built-ins.
func (h *Hook) Commands() []*Command { return h.commands }

// Available resolves every command usable in the given channel by the given
// user, keyed by lowercase name. Resolution is pure: with unchanged config
// and hook state, two calls return identical mappings. Two distinct
// commands collapsing to one name is a configuration fault, never a silent
// preference.
func (h *Hook) Available(ctx context.Context, ch *bridge.Channel, user *bridge.User) (map[string]BoundCommand, error) {
	private, err := ch.IsPrivate(ctx)
	if err != nil {
		return nil, err
	}

	transport := ch.Transport.Name()
	applicable := make(map[*Command]BoundCommand)
	for name, group := range h.cfg.Groups {
		matched := slices.Contains(group.Transports.Anywhere, transport) ||
			(private && slices.Contains(group.Transports.Private, transport)) ||
			(!private && slices.Contains(group.Transports.Shared, transport))
		if !matched {
			for _, label := range group.Channels {
				named := h.host.Channel(label)
				if named == nil {
					return nil, bridge.ConfigErrorf("group %q references unknown channel %q", name, label)
				}
				if named.Equal(ch) {
					matched = true
					break
				}
			}
		}
		if !matched {
			continue
		}

		admin := user != nil && user.Transport != "" && slices.Contains(group.Admins[user.Transport], user.ID)

		candidates, err := h.candidates(name, group)
		if err != nil {
			return nil, err
		}
		for cmd, bound := range candidates {
			if bound.Applicable(private, admin) {
				applicable[cmd] = bound
			}
		}
	}

	mapped := make(map[string]BoundCommand, len(applicable))
	for cmd, bound := range applicable {
		key := strings.ToLower(cmd.Name)
		if other, ok := mapped[key]; ok && other.Command != cmd {
			return nil, bridge.ConfigErrorf("multiple applicable commands named %q", key)
		}
		mapped[key] = bound
	}
	return mapped, nil
}

// candidates gathers the group's commands: every command of every listed
// hook, plus every command named by every listed set.
func (h *Hook) candidates(groupName string, group Group) (map[*Command]BoundCommand, error) {
	out := make(map[*Command]BoundCommand)
	for _, hookName := range group.Hooks {
		hook := h.host.Hook(hookName)
		if hook == nil {
			return nil, bridge.ConfigErrorf("group %q references unknown hook %q", groupName, hookName)
		}
		for _, bound := range Discover(hook) {
			out[bound.Command] = bound
		}
	}
	for _, setName := range group.Sets {
		set, ok := h.cfg.Sets[setName]
		if !ok {
			return nil, bridge.ConfigErrorf("group %q references unknown set %q", groupName, setName)
		}
		for hookName, names := range set {
			hook := h.host.Hook(hookName)
			if hook == nil {
				return nil, bridge.ConfigErrorf("set %q references unknown hook %q", setName, hookName)
			}
			discovered := Discover(hook)
			for _, cmdName := range names {
				bound, ok := discovered[strings.ToLower(cmdName)]
				if !ok {
					if hook.State() != bridge.StateActive {
						// Hook currently offline; its commands simply
						// don't resolve.
						continue
					}
					return nil, bridge.ConfigErrorf("set %q references unknown command %q of hook %q",
						setName, cmdName, hookName)
				}
				out[bound.Command] = bound
			}
		}
	}
	return out, nil
}

// OnReceive implements bridge.Hook: match a prefix, resolve, parse,
// validate and invoke. Failures inside command bodies are contained here
// and never propagate into the host's delivery loop.
func (h *Hook) OnReceive(ctx context.Context, msg *bridge.Message, source *bridge.Channel, primary bool) error {
	if !primary || msg.User == nil {
		return nil
	}
	plain := msg.Text.String()
	if plain == "" {
		return nil
	}
	lower := strings.ToLower(plain)
	rest := ""
	matched := false
	for _, prefix := range h.cfg.Prefixes {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			rest = plain[len(prefix):]
			matched = true
			break
		}
	}
	if !matched {
		return nil
	}
	name, trailing := splitInvocation(rest)
	if name == "" {
		return nil
	}

	cmds, err := h.Available(ctx, source, msg.User)
	if err != nil {
		return err
	}
	cmd, ok := cmds[name]
	if !ok {
		// Most messages are not commands; a name miss is not an error.
		h.log.Debug().Str("name", name).Msg("No matches for command name")
		return nil
	}

	args, err := cmd.ParseArgs(trailing)
	if err == nil {
		err = cmd.Valid(args)
	}
	if err != nil {
		h.log.Debug().Err(err).Str("name", name).Msg("Invalid command arguments")
		return h.sendHelp(ctx, source, cmd)
	}

	h.log.Debug().Str("name", name).Strs("args", args).Msg("Executing command")
	if err := cmd.Run(ctx, msg, source, args); err != nil {
		if errors.Is(err, ErrBadUsage) {
			return h.sendHelp(ctx, source, cmd)
		}
		h.log.Error().Err(err).Str("name", name).Msg("Command failed")
		if h.cfg.ReturnErrors {
			reply := &bridge.Message{Text: richtext.Plain("⚠ " + err.Error())}
			if _, err := source.Send(ctx, reply); err != nil {
				h.log.Warn().Err(err).Msg("Failed to report command failure")
			}
		}
	}
	return nil
}

// helpText renders the usage description of a single command.
func helpText(cmd BoundCommand) richtext.RichText {
	text := richtext.RichText{{Text: cmd.Name, Bold: true}}
	if spec := cmd.Spec(); spec != "" {
		text = append(text, richtext.Segment{Text: " " + spec})
	}
	if cmd.Doc != "" {
		text = append(text,
			richtext.Segment{Text: ":", Bold: true},
			richtext.Segment{Text: "\n" + cmd.Doc})
	}
	return text
}

// sendHelp responds with one command's usage summary.
func (h *Hook) sendHelp(ctx context.Context, source *bridge.Channel, cmd BoundCommand) error {
	_, err := source.Send(ctx, &bridge.Message{Text: helpText(cmd)})
	if err != nil {
		h.log.Warn().Err(err).Str("name", cmd.Name).Msg("Failed to send help text")
	}
	return nil
}

// runHelp is the body of the built-in help command.
func (h *Hook) runHelp(ctx context.Context, msg *bridge.Message, source *bridge.Channel, args []string) error {
	cmds, err := h.Available(ctx, source, msg.User)
	if err != nil {
		return err
	}
	var text richtext.RichText
	if len(args) > 0 {
		cmd, ok := cmds[strings.ToLower(args[0])]
		if !ok {
			text = richtext.Plain("❌ No such command")
		} else {
			text = helpText(cmd)
		}
	} else {
		names := make([]string, 0, len(cmds))
		for name := range cmds {
			names = append(names, name)
		}
		sort.Strings(names)
		text = richtext.RichText{{Text: "Available commands:", Bold: true}}
		for _, name := range names {
			text = append(text, richtext.Segment{Text: "\n- " + name})
			if spec := cmds[name].Spec(); spec != "" {
				text = append(text, richtext.Segment{Text: " " + spec, Italic: true})
			}
		}
	}
	_, err = source.Send(ctx, &bridge.Message{Text: text})
	return err
}
