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

/*
Package netstack defines the contracts between this module and an underlying
callback-driven network stack.

The stack is not a second scheduled thread. Its callbacks run whenever the
application yields into the stack's processing step ([Advancer.Advance]), so
they interleave with application code rather than run in parallel with it.
Every consumer package in this module (datagram, frame, dns, stream) treats
callbacks as reentrant with respect to the application context and performs
an explicit single-producer/single-consumer handoff for any data crossing
the boundary.

Callbacks are registered together with an opaque [Token] that identifies the
owning instance. The callback trampoline must recover the owner from the
token and check that it is still alive; implementations never bind callbacks
to instances through closure capture.
*/
package netstack
