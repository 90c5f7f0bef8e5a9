// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package command

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/whychoosebob/IMMP/pkg/bridge"
)

// fakeTransport records outbound messages and serves channel privacy from a
// fixed map.
type fakeTransport struct {
	bridge.Openable
	name    string
	private map[string]bool

	mu   sync.Mutex
	sent []*bridge.Message
}

func newFakeTransport(name string) *fakeTransport {
	t := &fakeTransport{name: name, private: make(map[string]bool)}
	_ = t.Connect(context.Background())
	return t
}

func (t *fakeTransport) Name() string { return t.name }

func (t *fakeTransport) Connect(ctx context.Context) error {
	return t.Open(ctx, func(context.Context) error { return nil })
}

func (t *fakeTransport) Disconnect(ctx context.Context) error {
	return t.Close(ctx, func(context.Context) error { return nil })
}

func (t *fakeTransport) Get() <-chan bridge.Event { return nil }

func (t *fakeTransport) Put(_ context.Context, _ *bridge.Channel, msg *bridge.Message) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, msg)
	return []string{"1"}, nil
}

func (t *fakeTransport) IsPrivate(_ context.Context, source string) (bool, error) {
	return t.private[source], nil
}

func (t *fakeTransport) sentMessages() []*bridge.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make([]*bridge.Message, len(t.sent))
	copy(cp, t.sent)
	return cp
}

// providerHook exposes a fixed command list.
type providerHook struct {
	bridge.Openable
	name string
	cmds []*Command
}

func newProviderHook(name string, cmds ...*Command) *providerHook {
	h := &providerHook{name: name, cmds: cmds}
	_ = h.Connect(context.Background())
	return h
}

func (h *providerHook) Name() string { return h.name }

func (h *providerHook) Connect(ctx context.Context) error {
	return h.Open(ctx, func(context.Context) error { return nil })
}

func (h *providerHook) Disconnect(ctx context.Context) error {
	return h.Close(ctx, func(context.Context) error { return nil })
}

func (h *providerHook) OnReceive(context.Context, *bridge.Message, *bridge.Channel, bool) error {
	return nil
}

func (h *providerHook) Commands() []*Command { return h.cmds }

// harness wires a host, one transport and the dispatcher for tests.
type harness struct {
	host      *bridge.Host
	transport *fakeTransport
	hook      *Hook
}

func newHarness(t *testing.T, cfg Config, hooks ...bridge.Hook) *harness {
	t.Helper()
	host := bridge.NewHost(zerolog.Nop())
	tr := newFakeTransport("net")
	if err := host.AddTransport(tr); err != nil {
		t.Fatal(err)
	}
	for _, hook := range hooks {
		if err := host.AddHook(hook, false); err != nil {
			t.Fatal(err)
		}
	}
	dispatcher := New("command", cfg, host, zerolog.Nop())
	if err := host.AddHook(dispatcher, false); err != nil {
		t.Fatal(err)
	}
	if err := dispatcher.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	return &harness{host: host, transport: tr, hook: dispatcher}
}

func (h *harness) channel(source string) *bridge.Channel {
	return &bridge.Channel{Transport: h.transport, Source: source}
}

// groupAnywhere is a config with one group covering the fake transport in
// all conversation types, enabling the given hooks.
func groupAnywhere(hooks ...string) Config {
	return Config{
		Prefixes: []string{"?"},
		Groups: map[string]Group{
			"main": {
				Transports: Visibility{Anywhere: []string{"net"}},
				Hooks:      hooks,
			},
		},
	}
}
