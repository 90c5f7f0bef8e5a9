// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Host owns the transport and hook registries and routes every transport's
// inbound stream to every hook. Registries are fixed before Run and
// read-only afterwards.
type Host struct {
	log zerolog.Logger

	transports map[string]Transport
	channels   map[string]*Channel
	hooks      map[string]Hook
	resources  map[string]Hook

	// hookOrder preserves registration order so delivery within one
	// transport's loop is deterministic.
	hookOrder []string
}

// NewHost creates an empty host.
func NewHost(log zerolog.Logger) *Host {
	return &Host{
		log:        log.With().Str("component", "host").Logger(),
		transports: make(map[string]Transport),
		channels:   make(map[string]*Channel),
		hooks:      make(map[string]Hook),
		resources:  make(map[string]Hook),
	}
}

// AddTransport registers a transport under its name.
func (h *Host) AddTransport(t Transport) error {
	if _, ok := h.transports[t.Name()]; ok {
		return ConfigErrorf("duplicate transport name %q", t.Name())
	}
	h.transports[t.Name()] = t
	return nil
}

// AddChannel registers a named channel for config references.
func (h *Host) AddChannel(name string, ch *Channel) error {
	if _, ok := h.channels[name]; ok {
		return ConfigErrorf("duplicate channel name %q", name)
	}
	h.channels[name] = ch
	return nil
}

// AddHook registers a hook. Resources are hooks required by the host
// itself; they participate in delivery like any other hook but are kept in
// a separate registry for lookups.
func (h *Host) AddHook(hook Hook, resource bool) error {
	if _, ok := h.hooks[hook.Name()]; ok {
		return ConfigErrorf("duplicate hook name %q", hook.Name())
	}
	if resource {
		h.resources[hook.Name()] = hook
	}
	h.hooks[hook.Name()] = hook
	h.hookOrder = append(h.hookOrder, hook.Name())
	return nil
}

// Transport returns a registered transport, or nil.
func (h *Host) Transport(name string) Transport {
	return h.transports[name]
}

// Channel returns a named channel, or nil.
func (h *Host) Channel(name string) *Channel {
	return h.channels[name]
}

// Hook returns a registered hook by name, searching resources too.
func (h *Host) Hook(name string) Hook {
	if hook, ok := h.hooks[name]; ok {
		return hook
	}
	return h.resources[name]
}

// Hooks returns all registered hooks in registration order.
func (h *Host) Hooks() []Hook {
	out := make([]Hook, 0, len(h.hookOrder))
	for _, name := range h.hookOrder {
		out = append(out, h.hooks[name])
	}
	return out
}

// ResolveChannel builds a channel handle for a platform channel ID,
// reusing the named channel when one matches.
func (h *Host) ResolveChannel(t Transport, source string) *Channel {
	for _, ch := range h.channels {
		if ch.Transport == t && ch.Source == source {
			return ch
		}
	}
	return &Channel{Transport: t, Source: source}
}

// Run connects every hook and transport, then consumes each transport's
// stream until the context is cancelled or all streams end. Each transport
// gets its own consumption loop; within one loop, each message is delivered
// to every hook in order and a hook runs to completion before the next
// message reaches it, while a slow hook on one transport never blocks
// another transport's loop.
func (h *Host) Run(ctx context.Context) error {
	for _, name := range h.hookOrder {
		hook := h.hooks[name]
		if err := hook.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect hook %s: %w", name, err)
		}
	}
	for name, t := range h.transports {
		if err := t.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect transport %s: %w", name, err)
		}
	}

	var wg sync.WaitGroup
	for name, t := range h.transports {
		wg.Add(1)
		go func(name string, t Transport) {
			defer wg.Done()
			h.consume(ctx, name, t)
		}(name, t)
	}
	streams := make(chan struct{})
	go func() {
		wg.Wait()
		close(streams)
	}()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-streams:
	}
	h.shutdown()
	wg.Wait()
	return err
}

// consume drives one transport's delivery loop.
func (h *Host) consume(ctx context.Context, name string, t Transport) {
	log := h.log.With().Str("transport", name).Logger()
	for ev := range t.Get() {
		if ev.Message == nil {
			continue
		}
		h.Deliver(ctx, ev.Channel, ev.Message, true)
	}
	log.Info().Msg("Transport stream ended")
}

// Deliver hands one message to every active hook in registration order.
// Direct transport deliveries are primary; hooks redistributing a message
// pass primary=false.
func (h *Host) Deliver(ctx context.Context, ch *Channel, msg *Message, primary bool) {
	log := h.log.With().
		Str("delivery_id", uuid.NewString()).
		Str("message_id", msg.ID).
		Bool("primary", primary).
		Logger()
	for _, name := range h.hookOrder {
		hook := h.hooks[name]
		if hook.State() != StateActive {
			continue
		}
		if err := hook.OnReceive(ctx, msg, ch, primary); err != nil {
			log.Error().Err(err).Str("hook", name).Msg("Hook failed to handle message")
		}
	}
}

// shutdown disconnects all transports and hooks, interrupting any pending
// receives.
func (h *Host) shutdown() {
	ctx := context.Background()
	for name, t := range h.transports {
		if err := t.Disconnect(ctx); err != nil {
			h.log.Warn().Err(err).Str("transport", name).Msg("Transport disconnect failed")
		}
	}
	for _, name := range h.hookOrder {
		if err := h.hooks[name].Disconnect(ctx); err != nil {
			h.log.Warn().Err(err).Str("hook", name).Msg("Hook disconnect failed")
		}
	}
}
