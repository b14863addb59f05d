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
	"net/netip"
	"sync"
)

// Compilation guard against interface implementation
var _ Stack = (*MockStack)(nil)

// SentDatagram records one datagram handed to [MockStack.SendDatagram].
type SentDatagram struct {
	Handle  Handle
	Dst     netip.AddrPort
	Payload []byte
}

// MockStack is a scriptable in-memory [Stack] for tests. Inbound items are
// queued with the Queue* methods and delivered to the registered callbacks
// by the next [MockStack.Advance], which models the cooperative contract:
// callbacks only interleave with application code at yield points.
//
// MockStack records every outbound item so tests can assert on the exact
// bytes crossing the send primitive.
type MockStack struct {
	mu sync.Mutex

	// Advances counts Advance calls.
	Advances int

	frameOwner   Token
	frameFn      FrameFunc
	queuedFrames []*Buffer
	// SentFrames records every frame handed to OutputFrame.
	SentFrames [][]byte

	nextHandle      Handle
	receivers       map[Handle]datagramReceiver
	queuedDatagrams []queuedDatagram
	// SentDatagrams records every payload handed to SendDatagram.
	SentDatagrams []SentDatagram
	// Groups records JoinGroup calls per handle.
	Groups map[Handle][]netip.Addr
	// OpenDatagramCalls counts OpenDatagram attempts, including failed ones.
	OpenDatagramCalls int
	// FailNextOpen makes the next OpenDatagram fail with ErrNoMemory.
	FailNextOpen bool
	// SendErr, when non-nil, is returned by SendDatagram, OutputFrame and
	// SendStream instead of recording the item.
	SendErr error

	resolveScripts  map[string]resolveScript
	pendingResolves []*pendingResolve
	lastResolveFn   ResolveFunc
	lastResolveTok  Token

	streams       map[Handle]*mockStream
	connectAfter  int
	queuedStreams []queuedStreamEvent
	// SentStream records SendStream payloads per handle.
	SentStream map[Handle][][]byte
}

type datagramReceiver struct {
	owner Token
	fn    DatagramFunc
}

type queuedDatagram struct {
	h     Handle
	chain *Buffer
	from  netip.AddrPort
}

type resolveScript struct {
	addr     netip.Addr
	status   ResolveStatus
	err      error
	advances int // callback fires after this many Advance calls when in progress
}

type pendingResolve struct {
	host      string
	addr      netip.Addr
	owner     Token
	fn        ResolveFunc
	remaining int
}

type mockStream struct {
	owner        Token
	fn           StreamEventFunc
	connectAfter int
	closed       bool
}

type queuedStreamEvent struct {
	h  Handle
	ev StreamEvent
}

// NewMockStack returns an empty MockStack.
func NewMockStack() *MockStack {
	return &MockStack{
		receivers:      make(map[Handle]datagramReceiver),
		Groups:         make(map[Handle][]netip.Addr),
		resolveScripts: make(map[string]resolveScript),
		streams:        make(map[Handle]*mockStream),
		SentStream:     make(map[Handle][][]byte),
	}
}

// Advance implements [Advancer]. It drains everything queued so far and
// invokes the matching callbacks, outside the mock's lock so a callback may
// call back into the stack.
func (m *MockStack) Advance() {
	m.mu.Lock()
	m.Advances++

	frames := m.queuedFrames
	m.queuedFrames = nil
	frameFn, frameTok := m.frameFn, m.frameOwner

	dgrams := m.queuedDatagrams
	m.queuedDatagrams = nil
	recvs := make(map[Handle]datagramReceiver, len(m.receivers))
	for h, r := range m.receivers {
		recvs[h] = r
	}

	var resolved []*pendingResolve
	var still []*pendingResolve
	for _, p := range m.pendingResolves {
		p.remaining--
		if p.remaining <= 0 {
			resolved = append(resolved, p)
		} else {
			still = append(still, p)
		}
	}
	m.pendingResolves = still

	var streamEvents []queuedStreamEvent
	for h, s := range m.streams {
		if s.connectAfter > 0 {
			s.connectAfter--
			if s.connectAfter == 0 {
				streamEvents = append(streamEvents, queuedStreamEvent{h, StreamEvent{Kind: StreamConnected}})
			}
		}
	}
	streamEvents = append(streamEvents, m.queuedStreams...)
	m.queuedStreams = nil
	streamFns := make(map[Handle]*mockStream, len(m.streams))
	for h, s := range m.streams {
		streamFns[h] = s
	}
	m.mu.Unlock()

	if frameFn != nil {
		for _, f := range frames {
			frameFn(frameTok, f)
		}
	}
	for _, d := range dgrams {
		if r, ok := recvs[d.h]; ok && r.fn != nil {
			r.fn(r.owner, d.chain, d.from)
		}
	}
	for _, p := range resolved {
		p.fn(p.owner, p.host, p.addr)
	}
	for _, e := range streamEvents {
		if s, ok := streamFns[e.h]; ok && !s.closed && s.fn != nil {
			s.fn(s.owner, e.ev)
		}
	}
}

// SetFrameReceiver implements [FrameLink].
func (m *MockStack) SetFrameReceiver(owner Token, fn FrameFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frameFn != nil {
		return ErrInvalidArgument
	}
	m.frameOwner, m.frameFn = owner, fn
	return nil
}

// ClearFrameReceiver implements [FrameLink].
func (m *MockStack) ClearFrameReceiver() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frameFn = nil
}

// OutputFrame implements [FrameLink].
func (m *MockStack) OutputFrame(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.SentFrames = append(m.SentFrames, append([]byte(nil), frame...))
	return nil
}

// QueueFrame schedules an inbound frame for the next Advance.
func (m *MockStack) QueueFrame(chain *Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queuedFrames = append(m.queuedFrames, chain)
}

// OpenDatagram implements [DatagramLink].
func (m *MockStack) OpenDatagram(bind netip.Addr, port uint16) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenDatagramCalls++
	if m.FailNextOpen {
		m.FailNextOpen = false
		return 0, ErrNoMemory
	}
	m.nextHandle++
	h := m.nextHandle
	m.receivers[h] = datagramReceiver{}
	return h, nil
}

// JoinGroup implements [DatagramLink].
func (m *MockStack) JoinGroup(h Handle, group netip.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.receivers[h]; !ok {
		return ErrClosed
	}
	m.Groups[h] = append(m.Groups[h], group)
	return nil
}

// SetDatagramReceiver implements [DatagramLink].
func (m *MockStack) SetDatagramReceiver(h Handle, owner Token, fn DatagramFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.receivers[h]; ok {
		m.receivers[h] = datagramReceiver{owner, fn}
	}
}

// SendDatagram implements [DatagramLink].
func (m *MockStack) SendDatagram(h Handle, dst netip.AddrPort, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.receivers[h]; !ok {
		return ErrClosed
	}
	if m.SendErr != nil {
		return m.SendErr
	}
	m.SentDatagrams = append(m.SentDatagrams, SentDatagram{h, dst, append([]byte(nil), payload...)})
	return nil
}

// CloseDatagram implements [DatagramLink].
func (m *MockStack) CloseDatagram(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.receivers, h)
}

// OpenHandles reports how many datagram control blocks are live.
func (m *MockStack) OpenHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.receivers)
}

// QueueDatagram schedules an inbound datagram on h for the next Advance.
// A nil chain models the stack's abnormal-closure notification.
func (m *MockStack) QueueDatagram(h Handle, chain *Buffer, from netip.AddrPort) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queuedDatagrams = append(m.queuedDatagrams, queuedDatagram{h, chain, from})
}

// ScriptResolveDone makes Resolve answer host immediately with addr.
func (m *MockStack) ScriptResolveDone(host string, addr netip.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolveScripts[host] = resolveScript{addr: addr, status: ResolveDone}
}

// ScriptResolveInvalid makes Resolve fail host synchronously with
// ErrInvalidArgument.
func (m *MockStack) ScriptResolveInvalid(host string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolveScripts[host] = resolveScript{err: ErrInvalidArgument}
}

// ScriptResolveAfter makes Resolve report in-progress for host, firing the
// callback with addr after the given number of Advance calls.
func (m *MockStack) ScriptResolveAfter(host string, addr netip.Addr, advances int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolveScripts[host] = resolveScript{addr: addr, status: ResolveInProgress, advances: advances}
}

// Resolve implements [NameResolver]. Unscripted hosts stay in progress
// forever, which exercises the caller's timeout bound.
func (m *MockStack) Resolve(host string, owner Token, fn ResolveFunc) (netip.Addr, ResolveStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastResolveFn, m.lastResolveTok = fn, owner
	s, ok := m.resolveScripts[host]
	if !ok {
		return netip.Addr{}, ResolveInProgress, nil
	}
	if s.err != nil {
		return netip.Addr{}, 0, s.err
	}
	if s.status == ResolveDone {
		return s.addr, ResolveDone, nil
	}
	m.pendingResolves = append(m.pendingResolves, &pendingResolve{
		host: host, addr: s.addr, owner: owner, fn: fn, remaining: s.advances,
	})
	return netip.Addr{}, ResolveInProgress, nil
}

// InvokeResolve fires the most recently registered resolve callback right
// away with an arbitrary name and address. Tests use it to model a stale
// answer from a superseded request.
func (m *MockStack) InvokeResolve(host string, addr netip.Addr) {
	m.mu.Lock()
	fn, tok := m.lastResolveFn, m.lastResolveTok
	m.mu.Unlock()
	if fn != nil {
		fn(tok, host, addr)
	}
}

// ScriptConnectAfter makes the next OpenStream report StreamConnected after
// the given number of Advance calls. Zero means the connect never completes.
func (m *MockStack) ScriptConnectAfter(advances int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectAfter = advances
}

// OpenStream implements [StreamLink].
func (m *MockStack) OpenStream(owner Token, dst netip.AddrPort, fn StreamEventFunc) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextHandle++
	h := m.nextHandle
	m.streams[h] = &mockStream{owner: owner, fn: fn, connectAfter: m.connectAfter}
	return h, nil
}

// SendStream implements [StreamLink].
func (m *MockStack) SendStream(h Handle, p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[h]
	if !ok || s.closed {
		return ErrClosed
	}
	if m.SendErr != nil {
		return m.SendErr
	}
	m.SentStream[h] = append(m.SentStream[h], append([]byte(nil), p...))
	return nil
}

// CloseStream implements [StreamLink].
func (m *MockStack) CloseStream(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[h]
	if !ok || s.closed {
		return ErrClosed
	}
	s.closed = true
	return nil
}

// QueueStreamEvent schedules a stream notification for the next Advance.
func (m *MockStack) QueueStreamEvent(h Handle, ev StreamEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queuedStreams = append(m.queuedStreams, queuedStreamEvent{h, ev})
}
