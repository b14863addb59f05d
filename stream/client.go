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

// Package stream provides a poll-driven stream (TCP-style) client over a
// callback-driven network stack.
//
// The client reuses the pending/current handoff the datagram and frame
// paths use, with one difference: stream segments append to the pending
// slot instead of replacing it, because a byte stream must not drop data
// that arrived between two polls. The connect handshake is bridged the same
// way the resolver bridges name resolution: a bounded cooperative loop that
// sleeps, yields into the stack and re-checks the state.
package stream

import (
	"fmt"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/coopnet/netbridge/internal/mailbox"
	"github.com/coopnet/netbridge/internal/owners"
	"github.com/coopnet/netbridge/netstack"
)

// streamBufLen is the reserve size of the inbound mailbox slots.
const streamBufLen = 4096

const (
	// connectPollInterval is how long Connect sleeps between yields.
	connectPollInterval = 10 * time.Millisecond

	// connectCeilingMillis bounds the connect handshake.
	connectCeilingMillis = 5000
)

// ErrTimeout means the connect handshake did not complete within the
// client's ceiling.
var ErrTimeout = fmt.Errorf("connect timed out: %w", os.ErrDeadlineExceeded)

// State is the connection state of a [Client].
type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
	StateError
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Stack is the slice of the network stack a Client needs.
type Stack interface {
	netstack.Advancer
	netstack.StreamLink
}

// HostResolver resolves a hostname to an address; *dns.Resolver implements
// it.
type HostResolver interface {
	Resolve(host string) (netip.Addr, error)
}

// Client is a stream socket driven by the application's polling loop.
type Client struct {
	stack    Stack
	clock    netstack.Clock
	resolver HostResolver
	tok      netstack.Token

	handle netstack.Handle

	mu    sync.Mutex // guards state; written from callback context
	state State

	in *mailbox.Mailbox
}

var clients owners.Table[*Client]

// onEvent is the stream callback trampoline. State transitions are driven
// entirely by stack notifications; data is appended to the pending slot.
func onEvent(owner netstack.Token, ev netstack.StreamEvent) {
	c, ok := clients.Get(owner)
	if !ok {
		return
	}
	switch ev.Kind {
	case netstack.StreamConnected:
		c.transition(StateConnecting, StateConnected)
	case netstack.StreamData:
		if ev.Data == nil {
			// remote close delivered in place of data
			c.setState(StateClosed)
			return
		}
		c.in.DeliverAppend(ev.Data)
	case netstack.StreamClosed:
		c.setState(StateClosed)
	case netstack.StreamError:
		c.setState(StateError)
	}
}

// New returns an idle Client. resolver may be nil, in which case
// [Client.ConnectHost] fails with ErrInvalidArgument.
func New(stack Stack, clock netstack.Clock, resolver HostResolver) *Client {
	c := &Client{
		stack:    stack,
		clock:    clock,
		resolver: resolver,
		state:    StateIdle,
		in:       mailbox.New(streamBufLen),
	}
	c.tok = clients.Put(c)
	return c
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// transition moves from to to, but only if the state still equals from.
func (c *Client) transition(from, to State) {
	c.mu.Lock()
	if c.state == from {
		c.state = to
	}
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the stream is established.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// Connect opens a stream to dst and waits cooperatively for the handshake,
// up to the client's ceiling. On timeout the control block is closed and
// ErrTimeout is returned. Connect is only valid from the idle or closed
// states.
func (c *Client) Connect(dst netip.AddrPort) error {
	switch c.State() {
	case StateIdle, StateClosed, StateError:
	default:
		return netstack.ErrInvalidArgument
	}

	h, err := c.stack.OpenStream(c.tok, dst, onEvent)
	if err != nil {
		return err
	}
	c.handle = h
	c.setState(StateConnecting)

	start := c.clock.NowMillis()
	for {
		c.clock.Sleep(connectPollInterval)
		c.stack.Advance()

		switch c.State() {
		case StateConnected:
			return nil
		case StateClosed, StateError:
			return netstack.ErrClosed
		}
		if c.clock.NowMillis()-start >= connectCeilingMillis {
			c.stack.CloseStream(c.handle)
			c.setState(StateClosed)
			return ErrTimeout
		}
	}
}

// ConnectHost resolves host and connects to it.
func (c *Client) ConnectHost(host string, port uint16) error {
	if c.resolver == nil {
		return netstack.ErrInvalidArgument
	}
	addr, err := c.resolver.Resolve(host)
	if err != nil {
		return err
	}
	return c.Connect(netip.AddrPortFrom(addr, port))
}

// Available returns the number of readable bytes. When the published slot is
// drained it yields into the stack and publishes whatever segments have
// accumulated; unread published bytes are never discarded by this refill.
func (c *Client) Available() int {
	c.refill()
	return c.in.Available()
}

// ReadByte returns the next byte of the stream, or -1 if none is available.
func (c *Client) ReadByte() int {
	c.refill()
	return c.in.ReadByte()
}

// Read copies up to len(p) buffered bytes into p and returns the count.
func (c *Client) Read(p []byte) int {
	c.refill()
	return c.in.Read(p)
}

// Peek returns the next byte without consuming it, or -1.
func (c *Client) Peek() int {
	c.refill()
	return c.in.Peek()
}

// refill publishes accumulated segments, but only once the current slot is
// fully consumed, so the cursor never skips bytes.
func (c *Client) refill() {
	if c.in.Available() > 0 {
		return
	}
	c.stack.Advance()
	c.in.Publish()
}

// Write sends p on the established stream and returns the count taken, 0
// with ErrClosed when the stream is not connected.
func (c *Client) Write(p []byte) (int, error) {
	if c.State() != StateConnected {
		return 0, netstack.ErrClosed
	}
	if err := c.stack.SendStream(c.handle, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close starts an orderly shutdown and unregisters the callback token. The
// client cannot be reused afterwards.
func (c *Client) Close() error {
	var err error
	switch c.State() {
	case StateConnecting, StateConnected:
		c.setState(StateClosing)
		err = c.stack.CloseStream(c.handle)
		c.setState(StateClosed)
	default:
		c.setState(StateClosed)
	}
	clients.Drop(c.tok)
	return err
}
