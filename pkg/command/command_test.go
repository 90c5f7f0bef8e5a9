// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package command

import (
	"context"
	"reflect"
	"testing"

	"github.com/whychoosebob/IMMP/pkg/bridge"
)

func TestCommandSpec(t *testing.T) {
	t.Parallel()
	cmd := &Command{Params: []Param{
		{Name: "target", Required: true},
		{Name: "mode"},
		{Name: "extra", Variadic: true},
	}}
	if got := cmd.Spec(); got != "<target> [mode] [extra...]" {
		t.Errorf("Spec: got %q", got)
	}
}

func TestCommandValidArity(t *testing.T) {
	t.Parallel()
	// One required and one optional parameter: 0 args rejected, 1 and 2
	// accepted, 3 rejected.
	cmd := &Command{Params: []Param{
		{Name: "a", Required: true},
		{Name: "b"},
	}}
	if err := cmd.Valid(nil); err == nil {
		t.Error("0 args should be rejected")
	}
	if err := cmd.Valid([]string{"x"}); err != nil {
		t.Errorf("1 arg should be accepted: %v", err)
	}
	if err := cmd.Valid([]string{"x", "y"}); err != nil {
		t.Errorf("2 args should be accepted: %v", err)
	}
	if err := cmd.Valid([]string{"x", "y", "z"}); err == nil {
		t.Error("3 args should be rejected")
	}
}

func TestCommandValidVariadic(t *testing.T) {
	t.Parallel()
	cmd := &Command{Params: []Param{
		{Name: "a", Required: true},
		{Name: "rest", Variadic: true},
	}}
	if err := cmd.Valid(nil); err == nil {
		t.Error("missing required arg should be rejected")
	}
	if err := cmd.Valid([]string{"1", "2", "3", "4"}); err != nil {
		t.Errorf("variadic should absorb surplus args: %v", err)
	}
}

func TestCommandParseArgsModes(t *testing.T) {
	t.Parallel()
	spaces := &Command{Parser: ParseSpaces}
	got, err := spaces.ParseArgs("one  two three")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"one", "two", "three"}) {
		t.Errorf("ParseSpaces: got %v", got)
	}

	shell := &Command{Parser: ParseShell}
	got, err = shell.ParseArgs(`one "two three" four`)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"one", "two three", "four"}) {
		t.Errorf("ParseShell: got %v", got)
	}

	verbatim := &Command{Parser: ParseNone}
	got, err = verbatim.ParseArgs("all of it  verbatim")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"all of it  verbatim"}) {
		t.Errorf("ParseNone: got %v", got)
	}
}

func TestCommandParseArgsEmpty(t *testing.T) {
	t.Parallel()
	for _, parser := range []Parser{ParseSpaces, ParseShell, ParseNone} {
		cmd := &Command{Parser: parser}
		got, err := cmd.ParseArgs("")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("parser %v: empty trailing should yield no args, got %v", parser, got)
		}
	}
}

func TestDiscoverActiveHook(t *testing.T) {
	t.Parallel()
	cmd := &Command{Name: "Greet"}
	hook := newProviderHook("greeter", cmd)
	got := Discover(hook)
	if len(got) != 1 {
		t.Fatalf("Discover: got %d commands", len(got))
	}
	bound, ok := got["greet"]
	if !ok {
		t.Fatal("command should be keyed by lowercase name")
	}
	if bound.Hook != bridge.Hook(hook) || bound.Command != cmd {
		t.Error("binding should pair the hook instance with the command")
	}
}

func TestDiscoverInactiveHookYieldsNothing(t *testing.T) {
	t.Parallel()
	hook := newProviderHook("greeter", &Command{Name: "greet"})
	_ = hook.Disconnect(context.Background())
	if got := Discover(hook); len(got) != 0 {
		t.Errorf("inactive hook should yield nothing, got %v", got)
	}
}

func TestDiscoverNonProvider(t *testing.T) {
	t.Parallel()
	hook := &recordOnly{}
	_ = hook.Connect(context.Background())
	if got := Discover(hook); len(got) != 0 {
		t.Errorf("non-provider hook should yield nothing, got %v", got)
	}
}

// recordOnly is a hook without commands.
type recordOnly struct {
	bridge.Openable
}

func (h *recordOnly) Name() string { return "plain" }

func (h *recordOnly) Connect(ctx context.Context) error {
	return h.Open(ctx, func(context.Context) error { return nil })
}

func (h *recordOnly) Disconnect(ctx context.Context) error {
	return h.Close(ctx, func(context.Context) error { return nil })
}

func (h *recordOnly) OnReceive(context.Context, *bridge.Message, *bridge.Channel, bool) error {
	return nil
}

func TestSplitInvocation(t *testing.T) {
	t.Parallel()
	name, trailing := splitInvocation("Echo  hello world ")
	if name != "echo" || trailing != "hello world " {
		t.Errorf("splitInvocation: got %q, %q", name, trailing)
	}
	name, trailing = splitInvocation("solo")
	if name != "solo" || trailing != "" {
		t.Errorf("splitInvocation: got %q, %q", name, trailing)
	}
}

func TestApplicableScopeAndRole(t *testing.T) {
	t.Parallel()
	private := BoundCommand{Command: &Command{Scope: ScopePrivate}}
	if private.Applicable(false, true) {
		t.Error("private-only command must not apply in a shared channel")
	}
	if !private.Applicable(true, false) {
		t.Error("private-only command should apply in a private channel")
	}

	shared := BoundCommand{Command: &Command{Scope: ScopeShared}}
	if shared.Applicable(true, false) {
		t.Error("shared-only command must not apply in a private channel")
	}

	admin := BoundCommand{Command: &Command{Role: RoleAdmin}}
	if admin.Applicable(true, false) {
		t.Error("admin-only command must not apply for a non-admin")
	}
	if !admin.Applicable(true, true) {
		t.Error("admin-only command should apply for an admin")
	}

	disabled := BoundCommand{Command: &Command{Test: func() bool { return false }}}
	if disabled.Applicable(true, true) {
		t.Error("command with a false predicate must not apply")
	}
}
