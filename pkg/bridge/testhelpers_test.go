// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"sync"
)

// fakeTransport is an in-memory transport for host tests. Events pushed via
// push appear on the Get stream; sent messages are recorded.
type fakeTransport struct {
	Openable
	name    string
	events  chan Event
	private map[string]bool

	mu   sync.Mutex
	sent []*Message
}

func newFakeTransport(name string) *fakeTransport {
	return &fakeTransport{
		name:    name,
		events:  make(chan Event, 16),
		private: make(map[string]bool),
	}
}

func (t *fakeTransport) Name() string { return t.name }

func (t *fakeTransport) Connect(ctx context.Context) error {
	return t.Open(ctx, func(context.Context) error { return nil })
}

func (t *fakeTransport) Disconnect(ctx context.Context) error {
	return t.Close(ctx, func(context.Context) error {
		close(t.events)
		return nil
	})
}

func (t *fakeTransport) Get() <-chan Event { return t.events }

func (t *fakeTransport) Put(_ context.Context, _ *Channel, msg *Message) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, msg)
	return []string{"1"}, nil
}

func (t *fakeTransport) IsPrivate(_ context.Context, source string) (bool, error) {
	return t.private[source], nil
}

func (t *fakeTransport) push(ch *Channel, msg *Message) {
	t.events <- Event{Channel: ch, Message: msg}
}

// recordHook captures deliveries in order.
type recordHook struct {
	Openable
	name string
	fail error

	mu       sync.Mutex
	received []*Message
}

func (h *recordHook) Name() string { return h.name }

func (h *recordHook) Connect(ctx context.Context) error {
	return h.Open(ctx, func(context.Context) error { return nil })
}

func (h *recordHook) Disconnect(ctx context.Context) error {
	return h.Close(ctx, func(context.Context) error { return nil })
}

func (h *recordHook) OnReceive(_ context.Context, msg *Message, _ *Channel, _ bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.received = append(h.received, msg)
	return h.fail
}

func (h *recordHook) messages() []*Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]*Message, len(h.received))
	copy(cp, h.received)
	return cp
}
