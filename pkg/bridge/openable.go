// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"sync"
)

// OpenState is the lifecycle state of a transport or hook instance.
type OpenState int

const (
	StateInactive OpenState = iota
	StateStarting
	StateActive
	StateStopping
	StateFailed
)

func (s OpenState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Openable governs connect/disconnect for a transport or hook instance.
// Embed it and route Connect/Disconnect through Open and Close with the
// instance's own start and stop functions. State is single-writer: only the
// owning instance transitions it, observers read it via State.
type Openable struct {
	mu    sync.Mutex
	state OpenState
	cause error
}

// State returns the current lifecycle state.
func (o *Openable) State() OpenState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Cause returns the error recorded by the last failed open, if any.
func (o *Openable) Cause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cause
}

// Open runs start under the state machine: no-op when already starting or
// active, otherwise inactive/failed -> starting, then active on success or
// failed with the cause recorded on error.
func (o *Openable) Open(ctx context.Context, start func(context.Context) error) error {
	o.mu.Lock()
	switch o.state {
	case StateStarting, StateActive:
		o.mu.Unlock()
		return nil
	}
	o.state = StateStarting
	o.cause = nil
	o.mu.Unlock()

	if err := start(ctx); err != nil {
		o.mu.Lock()
		o.state = StateFailed
		o.cause = err
		o.mu.Unlock()
		return err
	}
	o.mu.Lock()
	o.state = StateActive
	o.mu.Unlock()
	return nil
}

// Close runs stop under the state machine: no-op when already inactive,
// otherwise any state -> stopping -> inactive. stop runs at most once per
// open, so resources are released exactly once regardless of the state the
// shutdown started from.
func (o *Openable) Close(ctx context.Context, stop func(context.Context) error) error {
	o.mu.Lock()
	if o.state == StateInactive || o.state == StateStopping {
		o.mu.Unlock()
		return nil
	}
	o.state = StateStopping
	o.mu.Unlock()

	err := stop(ctx)

	o.mu.Lock()
	o.state = StateInactive
	o.cause = nil
	o.mu.Unlock()
	return err
}
