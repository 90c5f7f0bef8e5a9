// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import "context"

// Hook is a pluggable behaviour unit. The host delivers every inbound
// message to every active hook; primary marks the canonical delivery of a
// message, as opposed to a mirrored redelivery. Hooks must treat primary as
// an opaque flag and only use it to gate side effects such as command
// execution.
type Hook interface {
	Name() string
	State() OpenState
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	// OnReceive is invoked once per inbound message, in arrival order for
	// messages from the same transport. Returned errors are logged by the
	// host and never interrupt delivery.
	OnReceive(ctx context.Context, msg *Message, source *Channel, primary bool) error
}
