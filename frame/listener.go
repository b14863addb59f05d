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

// Package frame provides poll-driven reception and builder-based
// transmission of raw link-layer frames.
//
// The stack delivers frames for protocols it does not handle itself to a
// single registered receiver. The original embedded design made that
// receiver an implicitly constructed process-wide singleton; here it is an
// explicitly created and torn-down [Listener], bound to its callback through
// the same opaque-token pattern the datagram sockets use. The stack still
// accepts only one receiver at a time, and a second Listen fails until the
// first Listener is closed.
package frame

import (
	"github.com/google/gopacket/layers"

	"github.com/coopnet/netbridge/internal/mailbox"
	"github.com/coopnet/netbridge/internal/outbuf"
	"github.com/coopnet/netbridge/internal/owners"
	"github.com/coopnet/netbridge/netstack"
)

const (
	// MaxFrameLen is the largest frame the listener buffers: 1518 bytes of
	// 802.3 frame plus a 4-byte 802.1Q tag.
	MaxFrameLen = 1522

	// HardwareAddrLen is the length of a link-layer address.
	HardwareAddrLen = 6
)

// ErrNotStarted is returned by [Listener.EndFrame] when no frame is in
// progress.
var ErrNotStarted = outbuf.ErrNotStarted

// Stack is the slice of the network stack a Listener needs.
type Stack interface {
	netstack.Advancer
	netstack.FrameLink
}

// Listener receives raw frames through the stack's frame hook and builds
// outbound frames one at a time.
type Listener struct {
	stack Stack
	tok   netstack.Token
	open  bool

	in  *mailbox.Mailbox
	out *outbuf.Builder
}

var listeners owners.Table[*Listener]

// onFrame is the receive trampoline: recover the owner, refill the pending
// slot (latest wins). The chain is copied before return.
func onFrame(owner netstack.Token, chain *netstack.Buffer) {
	l, ok := listeners.Get(owner)
	if !ok || chain == nil {
		return
	}
	l.in.Deliver(chain)
}

// Listen registers a frame receiver with the stack and returns the
// Listener. It fails if the stack already has a receiver installed.
func Listen(stack Stack) (*Listener, error) {
	l := &Listener{
		stack: stack,
		in:    mailbox.New(MaxFrameLen),
		out:   outbuf.New(MaxFrameLen),
	}
	l.tok = listeners.Put(l)
	if err := stack.SetFrameReceiver(l.tok, onFrame); err != nil {
		listeners.Drop(l.tok)
		return nil, err
	}
	l.open = true
	return l, nil
}

// Close removes the receiver from the stack and unregisters the trampoline
// token. Closing twice is a no-op.
func (l *Listener) Close() {
	if l.open {
		l.open = false
		l.stack.ClearFrameReceiver()
	}
	listeners.Drop(l.tok)
}

// Poll yields into the stack, then publishes the most recently received
// frame for reading, returning its length (0 if none arrived).
func (l *Listener) Poll() int {
	if !l.open {
		return 0
	}
	l.stack.Advance()
	return l.in.Publish()
}

// Available returns the number of unread bytes in the published frame.
func (l *Listener) Available() int {
	return l.in.Available()
}

// ReadByte returns the next byte of the published frame, or -1.
func (l *Listener) ReadByte() int {
	return l.in.ReadByte()
}

// Read copies up to len(p) bytes of the published frame into p.
func (l *Listener) Read(p []byte) int {
	return l.in.Read(p)
}

// Peek returns the next byte without consuming it, or -1.
func (l *Listener) Peek() int {
	return l.in.Peek()
}

// BeginFrame starts building an outbound frame, discarding any unfinished
// previous frame.
func (l *Listener) BeginFrame() {
	l.out.Begin()
}

// BeginEthernetFrame starts a frame and writes the 14-byte Ethernet header:
// destination, source and EtherType (or length, for 802.3 encodings).
func (l *Listener) BeginEthernetFrame(dst, src [HardwareAddrLen]byte, etherType layers.EthernetType) {
	l.BeginFrame()
	l.out.Write(dst[:])
	l.out.Write(src[:])
	l.writeUint16(uint16(etherType))
}

// BeginVLANFrame starts a frame with an 802.1Q tagged header: the outer
// EtherType is Dot1Q, followed by the tag control word and the encapsulated
// EtherType.
func (l *Listener) BeginVLANFrame(dst, src [HardwareAddrLen]byte, vlanTag uint16, etherType layers.EthernetType) {
	l.BeginEthernetFrame(dst, src, layers.EthernetTypeDot1Q)
	l.writeUint16(vlanTag)
	l.writeUint16(uint16(etherType))
}

func (l *Listener) writeUint16(v uint16) {
	l.out.WriteByte(byte(v >> 8))
	l.out.WriteByte(byte(v))
}

// WriteByte appends one byte to the frame under construction; 0 if no frame
// is in progress.
func (l *Listener) WriteByte(v byte) int {
	return l.out.WriteByte(v)
}

// Write appends p to the frame under construction. A single write longer
// than 65535 bytes is truncated; the count taken is returned.
func (l *Listener) Write(p []byte) int {
	return l.out.Write(p)
}

// EndFrame hands the assembled frame to the stack's output primitive in one
// call. The building state is cleared whether or not the send succeeds.
func (l *Listener) EndFrame() error {
	return l.out.End(func(p []byte) error {
		if !l.open {
			return netstack.ErrClosed
		}
		return l.stack.OutputFrame(p)
	})
}

// Send transmits an already-formed frame directly, independent of any frame
// under construction.
func (l *Listener) Send(frame []byte) error {
	if !l.open {
		return netstack.ErrClosed
	}
	return l.stack.OutputFrame(frame)
}
