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

// Package lwipstack binds the userspace lwIP stack from the [lwIP library]
// to the netstack contracts, covering the raw packet path: frames written
// through [Device.OutputFrame] are injected into lwIP, and packets lwIP
// emits are handed to the registered frame receiver.
//
// lwIP keeps its hooks in process-wide state, so the device is a singleton:
// configuring a new one closes the previous instance. TCP and UDP
// connection handlers can be registered with the lwIP library separately;
// this device does not own them.
//
// [lwIP library]: https://github.com/eycorsican/go-tun2socks
//
// The lwIP binding is a cgo library, so this package is only built when
// cgo is enabled.

//go:build cgo

package lwipstack

import (
	"sync"

	lwip "github.com/eycorsican/go-tun2socks/core"

	"github.com/coopnet/netbridge/netstack"
)

// Compilation guard against interface implementation
var (
	_ netstack.Advancer  = (*Device)(nil)
	_ netstack.FrameLink = (*Device)(nil)
)

// Device adapts the lwIP stack to [netstack.Advancer] and
// [netstack.FrameLink].
type Device struct {
	stack lwip.LWIPStack

	mu     sync.Mutex
	owner  netstack.Token
	fn     netstack.FrameFunc
	closed bool
}

var (
	instMu sync.Mutex
	inst   *Device
)

// Configure sets up the singleton lwIP device. An already configured device
// is closed and replaced.
func Configure() (*Device, error) {
	instMu.Lock()
	defer instMu.Unlock()

	if inst != nil {
		inst.Close()
	}
	d := &Device{stack: lwip.NewLWIPStack()}
	lwip.RegisterOutputFn(d.handleOutput)
	inst = d
	return d, nil
}

// handleOutput receives packets emitted by lwIP and forwards them to the
// registered frame receiver. lwIP reuses the buffer after this function
// returns, so the payload is copied before the handoff. Packets arriving
// with no receiver installed are dropped.
func (d *Device) handleOutput(b []byte) (int, error) {
	d.mu.Lock()
	fn, owner := d.fn, d.owner
	d.mu.Unlock()

	if fn == nil {
		return len(b), nil
	}
	p := make([]byte, len(b))
	copy(p, b)
	fn(owner, &netstack.Buffer{Payload: p})
	return len(b), nil
}

// SetFrameReceiver implements [netstack.FrameLink].
func (d *Device) SetFrameReceiver(owner netstack.Token, fn netstack.FrameFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return netstack.ErrClosed
	}
	if d.fn != nil {
		return netstack.ErrInvalidArgument
	}
	d.owner, d.fn = owner, fn
	return nil
}

// ClearFrameReceiver implements [netstack.FrameLink].
func (d *Device) ClearFrameReceiver() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fn = nil
}

// OutputFrame implements [netstack.FrameLink]. It injects one packet into
// lwIP, which may synchronously emit response packets through the output
// hook, i.e. the frame receiver can fire before OutputFrame returns.
func (d *Device) OutputFrame(frame []byte) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return netstack.ErrClosed
	}
	_, err := d.stack.Write(frame)
	// Workaround: the lwip netstack does not use a typed error.
	if err != nil && err.Error() == "stack closed" {
		return netstack.ErrClosed
	}
	return err
}

// Advance implements [netstack.Advancer]. The lwIP binding runs its
// callbacks inline from OutputFrame, so the yield point has no work to do;
// it exists to satisfy the cooperative contract of the consumer packages.
func (d *Device) Advance() {}

// Close shuts the lwIP stack down. The device is unusable afterwards.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.fn = nil
	d.mu.Unlock()
	return d.stack.Close()
}
