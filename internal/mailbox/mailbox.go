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

// Package mailbox implements the two-slot pending/current handoff that moves
// one inbound item from stack-callback context to application context.
//
// The pending slot belongs to the callback side and the current slot to the
// application side. At most one unconsumed item is retained: a second
// delivery before the next Publish overwrites the pending slot and the
// earlier payload is silently lost (latest wins). The current slot is only
// ever replaced wholesale by Publish, never mutated in place.
//
// Callbacks are not truly parallel with the application, but they do
// interleave at yield points, so the handoff is guarded by an explicit
// mutex rather than by assumed ordering.
package mailbox

import (
	"sync"

	"github.com/coopnet/netbridge/netstack"
)

// NoData is the cursor sentinel meaning the current slot holds nothing
// readable.
const NoData = -1

// Mailbox is a single-item pending/current handoff with a read cursor over
// the current slot. Both slots keep their storage across deliveries, so a
// steady-state mailbox does not allocate.
type Mailbox struct {
	mu      sync.Mutex
	pending []byte
	current []byte
	pos     int
}

// New returns a Mailbox with both slots reserved to capacity bytes.
func New(capacity int) *Mailbox {
	return &Mailbox{
		pending: make([]byte, 0, capacity),
		current: make([]byte, 0, capacity),
		pos:     NoData,
	}
}

// Deliver replaces the pending slot with the concatenated payloads of chain,
// in chain order. It is the latest-wins write half of the handoff and runs
// in callback context. The chain is copied out in full; no link is retained
// after Deliver returns, so the stack may free the descriptors immediately.
func (m *Mailbox) Deliver(chain *netstack.Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = appendChain(m.pending[:0], chain)
}

// DeliverAppend appends the chain's payloads to the pending slot instead of
// replacing it. Stream consumers use it so that segments arriving between
// two Publish calls accumulate rather than overwrite each other.
func (m *Mailbox) DeliverAppend(chain *netstack.Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = appendChain(m.pending, chain)
}

func appendChain(dst []byte, chain *netstack.Buffer) []byte {
	if n := chain.TotalLen(); cap(dst)-len(dst) < n {
		grown := make([]byte, len(dst), len(dst)+n)
		copy(grown, dst)
		dst = grown
	}
	for b := chain; b != nil; b = b.Next {
		dst = append(dst, b.Payload...)
	}
	return dst
}

// Publish moves the pending slot into the current slot, clears pending and
// resets the cursor: 0 when the new current is non-empty, NoData otherwise.
// It returns the length of the new current slot. Publish is the application
// side of the handoff; everything a callback delivered before Publish was
// entered is visible through the cursor after it returns.
func (m *Mailbox) Publish() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current, m.pending = m.pending, m.current[:0]
	if len(m.current) > 0 {
		m.pos = 0
	} else {
		m.pos = NoData
	}
	return len(m.current)
}

func (m *Mailbox) readable() bool {
	return 0 <= m.pos && m.pos < len(m.current)
}

// Available returns the number of unread bytes in the current slot.
func (m *Mailbox) Available() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.readable() {
		return 0
	}
	return len(m.current) - m.pos
}

// ReadByte returns the next byte and advances the cursor, or NoData if the
// current slot is exhausted or was never published.
func (m *Mailbox) ReadByte() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.readable() {
		return NoData
	}
	b := m.current[m.pos]
	m.pos++
	return int(b)
}

// Read copies up to len(p) unread bytes into p, advances the cursor by the
// amount copied and returns it. It returns 0 when nothing is readable or
// p is empty.
func (m *Mailbox) Read(p []byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(p) == 0 || !m.readable() {
		return 0
	}
	n := copy(p, m.current[m.pos:])
	m.pos += n
	return n
}

// Peek returns the next byte without advancing the cursor, or NoData if
// nothing is readable.
func (m *Mailbox) Peek() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.readable() {
		return NoData
	}
	return int(m.current[m.pos])
}

// Discard logically drops whatever remains in the current slot by parking
// the cursor at NoData. The slot's storage is kept for reuse.
func (m *Mailbox) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos = NoData
}
