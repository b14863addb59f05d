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

import "net/netip"

// Buffer is one link of a chained inbound buffer descriptor. The stack owns
// the chain: a receive callback must copy whatever it needs out of Payload
// before returning and must not retain any link.
type Buffer struct {
	Payload []byte
	Next    *Buffer
}

// TotalLen returns the combined payload length of the chain starting at b.
// It is the capacity hint a receiver should reserve before concatenating.
func (b *Buffer) TotalLen() int {
	n := 0
	for l := b; l != nil; l = l.Next {
		n += len(l.Payload)
	}
	return n
}

// Token is an opaque handle identifying the owner of a registered callback.
// Tokens are minted by the consumer packages (see internal/owners) and
// dereferenced inside callback trampolines with a liveness check.
type Token uint64

// Handle identifies a control block allocated inside the network stack
// (a bound datagram socket or an open stream).
type Handle int32

// FrameFunc receives one inbound raw frame. Runs in callback context.
type FrameFunc func(owner Token, chain *Buffer)

// DatagramFunc receives one inbound datagram together with its source
// endpoint. A nil chain is the stack's abnormal-closure notification and
// must tear the receiving socket down rather than be treated as an empty
// datagram. Runs in callback context.
type DatagramFunc func(owner Token, chain *Buffer, from netip.AddrPort)

// ResolveFunc reports a completed asynchronous name resolution. The name is
// echoed back so a receiver can discard stale results from a superseded
// request. Runs in callback context.
type ResolveFunc func(owner Token, host string, addr netip.Addr)

// StreamEventKind enumerates the notifications a stream control block emits.
type StreamEventKind uint8

const (
	// StreamConnected signals that the connect handshake completed.
	StreamConnected StreamEventKind = iota
	// StreamData carries inbound bytes. A nil Data chain means the remote
	// side closed the stream.
	StreamData
	// StreamClosed signals an orderly local or remote close.
	StreamClosed
	// StreamError signals an abnormal stack-side failure; the control block
	// is gone and the handle must not be used again.
	StreamError
)

// StreamEvent is one notification delivered to a stream's event callback.
type StreamEvent struct {
	Kind StreamEventKind
	Data *Buffer
	Err  error
}

// StreamEventFunc receives stream notifications. Runs in callback context.
type StreamEventFunc func(owner Token, ev StreamEvent)

// ResolveStatus is the synchronous outcome of a Resolve call.
type ResolveStatus uint8

const (
	// ResolveDone means the address was available immediately (cached or
	// literal); the returned address is valid and no callback will fire.
	ResolveDone ResolveStatus = iota
	// ResolveInProgress means the query was issued; the callback fires
	// during a later Advance once an answer (or failure) arrives.
	ResolveInProgress
)

// Advancer is the cooperative yield point. Advance processes pending stack
// events and may invoke any registered callback before it returns. It is the
// only place callbacks are expected to interleave with application code.
type Advancer interface {
	Advance()
}

// FrameLink is the raw-frame face of the stack.
type FrameLink interface {
	// SetFrameReceiver registers the process-wide raw-frame receive callback.
	// It fails with ErrNoMemory if the stack cannot install a hook and with
	// ErrInvalidArgument if a receiver is already installed.
	SetFrameReceiver(owner Token, fn FrameFunc) error

	// ClearFrameReceiver removes a previously installed receiver.
	ClearFrameReceiver()

	// OutputFrame transmits one fully formed frame. The frame is consumed
	// synchronously; the caller may reuse the slice after return.
	OutputFrame(frame []byte) error
}

// DatagramLink is the datagram-socket face of the stack.
type DatagramLink interface {
	// OpenDatagram allocates a control block bound to bind:port. A zero
	// (invalid) bind address means "any". Fails with ErrNoMemory when the
	// stack is out of control blocks.
	OpenDatagram(bind netip.Addr, port uint16) (Handle, error)

	// JoinGroup subscribes the control block to a multicast group.
	JoinGroup(h Handle, group netip.Addr) error

	// SetDatagramReceiver registers the receive callback for h.
	SetDatagramReceiver(h Handle, owner Token, fn DatagramFunc)

	// SendDatagram transmits payload to dst in one call. The payload is
	// consumed synchronously.
	SendDatagram(h Handle, dst netip.AddrPort, payload []byte) error

	// CloseDatagram releases the control block. The handle must not be used
	// afterwards.
	CloseDatagram(h Handle)
}

// NameResolver is the asynchronous name-resolution face of the stack.
//
// On a cache hit or literal address the call returns the address with
// ResolveDone and fn never fires. Otherwise it returns ResolveInProgress and
// fn fires during a later Advance. Malformed input fails synchronously with
// ErrInvalidArgument.
type NameResolver interface {
	Resolve(host string, owner Token, fn ResolveFunc) (netip.Addr, ResolveStatus, error)
}

// StreamLink is the stream-socket face of the stack.
type StreamLink interface {
	// OpenStream allocates a control block and starts a connect to dst.
	// Progress is reported through fn.
	OpenStream(owner Token, dst netip.AddrPort, fn StreamEventFunc) (Handle, error)

	// SendStream queues p for transmission. The payload is consumed
	// synchronously.
	SendStream(h Handle, p []byte) error

	// CloseStream starts an orderly close and releases the control block.
	CloseStream(h Handle) error
}

// Stack is the full collaborator contract. Consumers should depend on the
// narrower faces they actually use; Stack exists for implementations and
// test fakes that provide everything.
type Stack interface {
	Advancer
	FrameLink
	DatagramLink
	NameResolver
	StreamLink
}
