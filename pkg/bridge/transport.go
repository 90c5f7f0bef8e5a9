// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import "context"

// Event is one inbound delivery from a transport: a message and the channel
// it arrived in.
type Event struct {
	Channel *Channel
	Message *Message
}

// Transport adapts one chat network to the bridge. Implementations embed
// [Openable] and expose their inbound stream as a channel of events that is
// closed when the transport disconnects or its stream ends; the stream is
// not restartable once closed. Reconnect behaviour on transient connection
// loss is internal to the transport and invisible to consumers.
type Transport interface {
	// Name returns the configured instance name.
	Name() string
	// State exposes the lifecycle state, read-only.
	State() OpenState
	// Connect establishes the network connection. No-op when already
	// starting or active.
	Connect(ctx context.Context) error
	// Disconnect interrupts any pending receive and releases connection
	// resources exactly once. No-op when already inactive.
	Disconnect(ctx context.Context) error
	// Get returns the inbound event stream.
	Get() <-chan Event
	// Put delivers a message to a channel on the network, returning the
	// platform's IDs for the sent message parts.
	Put(ctx context.Context, ch *Channel, msg *Message) ([]string, error)
	// IsPrivate reports whether the channel source is a direct conversation.
	IsPrivate(ctx context.Context, source string) (bool, error)
}

// Channel is an addressable conversation endpoint within one transport. The
// source identifier is opaque network-specific data.
type Channel struct {
	Transport Transport
	Source    string
}

// IsPrivate reports whether this is a direct (one-to-one) conversation.
func (c *Channel) IsPrivate(ctx context.Context) (bool, error) {
	return c.Transport.IsPrivate(ctx, c.Source)
}

// Send delivers a message to the channel via its owning transport.
func (c *Channel) Send(ctx context.Context, msg *Message) ([]string, error) {
	return c.Transport.Put(ctx, c, msg)
}

// Equal reports whether two channels address the same conversation.
func (c *Channel) Equal(other *Channel) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Transport == other.Transport && c.Source == other.Source
}
