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

// Package datagram provides a poll-driven datagram socket over a
// callback-driven network stack.
//
// Reception is single-item and latest-wins: the stack's receive callback
// overwrites the socket's pending slot, and the application takes a snapshot
// with [Conn.Poll] before reading through the cursor. Datagrams arriving
// between two polls replace each other; only the most recent one survives.
// Transmission accumulates one packet at a time between [Conn.BeginPacket]
// and [Conn.EndPacket], which hands the assembled bytes to the stack in a
// single send call.
package datagram

import (
	"net/netip"
	"sync"

	"github.com/coopnet/netbridge/internal/mailbox"
	"github.com/coopnet/netbridge/internal/outbuf"
	"github.com/coopnet/netbridge/internal/owners"
	"github.com/coopnet/netbridge/netstack"
)

// MaxDatagramLen is the reserve size for inbound and outbound packet
// buffers: a 1500-byte MTU minus the UDP header and a minimal IPv4 header.
const MaxDatagramLen = 1500 - 8 - 20

// ErrNotStarted is returned by [Conn.EndPacket] when no packet is in
// progress.
var ErrNotStarted = outbuf.ErrNotStarted

// Stack is the slice of the network stack a Conn needs.
type Stack interface {
	netstack.Advancer
	netstack.DatagramLink
}

// HostResolver resolves a hostname to an address. *dns.Resolver implements
// it; tests substitute their own.
type HostResolver interface {
	Resolve(host string) (netip.Addr, error)
}

// Conn is a datagram socket. It is owned by a single application context;
// only the stack's receive callback touches it concurrently, and that
// crossing is confined to the mailbox and the remote-endpoint pair.
type Conn struct {
	stack    Stack
	resolver HostResolver
	tok      netstack.Token

	handle netstack.Handle
	open   bool

	in  *mailbox.Mailbox
	out *outbuf.Builder
	dst netip.AddrPort

	mu     sync.Mutex // guards remote
	remote netip.AddrPort
}

var conns owners.Table[*Conn]

// onDatagram is the receive trampoline. It recovers the owning Conn from the
// token, refills the pending slot (latest wins) and captures the sender
// endpoint. A nil chain is the stack's abnormal-closure notification and
// tears the socket down instead of publishing an empty datagram. The chain
// is fully copied before return; ownership stays with the stack.
func onDatagram(owner netstack.Token, chain *netstack.Buffer, from netip.AddrPort) {
	c, ok := conns.Get(owner)
	if !ok {
		return
	}
	if chain == nil {
		c.Close()
		return
	}
	c.in.Deliver(chain)
	c.mu.Lock()
	c.remote = from
	c.mu.Unlock()
}

// New returns an unopened Conn. resolver may be nil, in which case
// [Conn.BeginPacketHost] fails with ErrInvalidArgument.
func New(stack Stack, resolver HostResolver) *Conn {
	return &Conn{
		stack:    stack,
		resolver: resolver,
		in:       mailbox.New(MaxDatagramLen),
		out:      outbuf.New(MaxDatagramLen),
	}
}

// Open binds the socket to port on any local address and registers its
// receive callback. An already open Conn is rebound: the old control block
// is released first.
func (c *Conn) Open(port uint16) error {
	return c.bind(netip.Addr{}, port)
}

// OpenMulticast binds the socket to the multicast group and port and joins
// the group. A group outside 224.0.0.0/4 is rejected before any control
// block is allocated, so a failed call has no stack-side effects.
func (c *Conn) OpenMulticast(group netip.Addr, port uint16) error {
	if !group.Is4() || !group.IsMulticast() {
		return netstack.ErrInvalidArgument
	}
	if err := c.bind(group, port); err != nil {
		return err
	}
	if err := c.stack.JoinGroup(c.handle, group); err != nil {
		c.Close()
		return err
	}
	return nil
}

func (c *Conn) bind(addr netip.Addr, port uint16) error {
	if c.open {
		c.stack.CloseDatagram(c.handle)
		c.open = false
	}
	h, err := c.stack.OpenDatagram(addr, port)
	if err != nil {
		return err
	}
	if c.tok == 0 {
		c.tok = conns.Put(c)
	}
	c.stack.SetDatagramReceiver(h, c.tok, onDatagram)
	c.handle = h
	c.open = true
	return nil
}

// Close releases the control block and unregisters the receive trampoline.
// Closing a closed Conn is a no-op.
func (c *Conn) Close() {
	if c.open {
		c.open = false
		c.stack.CloseDatagram(c.handle)
	}
	if c.tok != 0 {
		conns.Drop(c.tok)
		c.tok = 0
	}
}

// Poll yields into the stack's processing step, then publishes the most
// recently received datagram for reading. It returns the datagram's length,
// or 0 if none arrived since the previous Poll. Receive callbacks may fire
// inside the yield; whatever they deliver before the publish is what Poll
// exposes.
func (c *Conn) Poll() int {
	if !c.open {
		return 0
	}
	c.stack.Advance()
	return c.in.Publish()
}

// Available returns the number of unread bytes in the published datagram.
func (c *Conn) Available() int {
	return c.in.Available()
}

// ReadByte returns the next byte of the published datagram, or -1 if it is
// exhausted or nothing was published.
func (c *Conn) ReadByte() int {
	return c.in.ReadByte()
}

// Read copies up to len(p) bytes of the published datagram into p and
// returns the count, 0 if nothing is readable.
func (c *Conn) Read(p []byte) int {
	return c.in.Read(p)
}

// Peek returns the next byte without consuming it, or -1.
func (c *Conn) Peek() int {
	return c.in.Peek()
}

// Discard drops the rest of the published datagram.
func (c *Conn) Discard() {
	c.in.Discard()
}

// RemoteAddr returns the sender of the most recently received datagram.
// The pair is captured by the receive callback independently of Poll, so it
// can be ahead of the published payload when several datagrams arrived since
// the last Poll. That skew is part of the contract: address and payload are
// only guaranteed to pair up for the most recent arrival.
func (c *Conn) RemoteAddr() netip.AddrPort {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

// BeginPacket starts building an outbound packet addressed to dst:port.
// Content from an unfinished previous packet is discarded.
func (c *Conn) BeginPacket(dst netip.Addr, port uint16) error {
	if !dst.IsValid() {
		return netstack.ErrInvalidArgument
	}
	c.dst = netip.AddrPortFrom(dst, port)
	c.out.Begin()
	return nil
}

// BeginPacketHost resolves host and starts building a packet to it. The
// resolution blocks cooperatively up to the resolver's ceiling; on failure
// no packet is started.
func (c *Conn) BeginPacketHost(host string, port uint16) error {
	if c.resolver == nil {
		return netstack.ErrInvalidArgument
	}
	addr, err := c.resolver.Resolve(host)
	if err != nil {
		return err
	}
	return c.BeginPacket(addr, port)
}

// WriteByte appends one byte to the packet under construction. Returns the
// number of bytes taken: 0 when no packet is in progress.
func (c *Conn) WriteByte(v byte) int {
	return c.out.WriteByte(v)
}

// Write appends p to the packet under construction. A single write longer
// than 65535 bytes is truncated, not rejected; the count taken is returned.
func (c *Conn) Write(p []byte) int {
	return c.out.Write(p)
}

// EndPacket hands the assembled packet to the stack in one send call. The
// building state is cleared whether or not the send succeeds; retrying
// requires a fresh BeginPacket.
func (c *Conn) EndPacket() error {
	return c.out.End(func(p []byte) error {
		if !c.open {
			return netstack.ErrClosed
		}
		return c.stack.SendDatagram(c.handle, c.dst, p)
	})
}

// Send transmits an already-formed datagram directly, bypassing the builder
// and leaving any packet under construction untouched.
func (c *Conn) Send(dst netip.AddrPort, payload []byte) error {
	if !c.open {
		return netstack.ErrClosed
	}
	return c.stack.SendDatagram(c.handle, dst, payload)
}
