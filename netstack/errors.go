// Copyright 2026 The NetBridge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package netstack

import (
	"errors"
	"fmt"
	"os"
)

// Portable analogs of the stack's failure classes.
//
// Errors returned from this module's packages can be tested against these
// errors using [errors.Is]. Every failing operation leaves its receiver
// either unchanged or in the documented post-failure state; there is no
// automatic retry anywhere in the module.
var (
	// ErrClosed is returned by an operation on a socket, listener or stream
	// that has already been torn down, and should normally be tested using
	// errors.Is(err, netstack.ErrClosed).
	ErrClosed = fmt.Errorf("the network stack endpoint is closed: %w", os.ErrClosed)

	// ErrNoMemory is returned when the stack cannot allocate a control block
	// or descriptor. The failed operation is idempotent and safe to retry.
	ErrNoMemory = errors.New("network stack cannot allocate a control block")

	// ErrInvalidArgument is returned for malformed input, such as a
	// non-multicast group address. The operation fails synchronously with no
	// partial state.
	ErrInvalidArgument = fmt.Errorf("invalid argument: %w", os.ErrInvalid)

	// ErrMsgSize is returned by a send primitive when the assembled item
	// exceeds what the link can carry in one unit.
	ErrMsgSize = errors.New("outbound item exceeds the link maximum")
)
