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

package stream

import (
	"net/netip"
	"testing"
	"time"

	"github.com/coopnet/netbridge/netstack"
	"github.com/stretchr/testify/require"
)

var target = netip.MustParseAddrPort("203.0.113.10:443")

func connectedClient(t *testing.T, stack *netstack.MockStack) *Client {
	t.Helper()
	stack.ScriptConnectAfter(1)
	c := New(stack, &fakeClock{}, nil)
	require.NoError(t, c.Connect(target))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConnectCompletesAfterHandshake(t *testing.T) {
	stack := netstack.NewMockStack()
	stack.ScriptConnectAfter(3)
	c := New(stack, &fakeClock{}, nil)
	defer c.Close()

	require.Equal(t, StateIdle, c.State())
	require.NoError(t, c.Connect(target))
	require.Equal(t, StateConnected, c.State())
	require.True(t, c.Connected())
	require.Equal(t, 3, stack.Advances)
}

func TestConnectTimesOut(t *testing.T) {
	stack := netstack.NewMockStack()
	clock := &fakeClock{}
	c := New(stack, clock, nil)
	defer c.Close()

	err := c.Connect(target)
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, StateClosed, c.State())
	require.GreaterOrEqual(t, clock.now, int64(5000))
}

func TestConnectWhileConnectedIsRejected(t *testing.T) {
	stack := netstack.NewMockStack()
	c := connectedClient(t, stack)
	require.ErrorIs(t, c.Connect(target), netstack.ErrInvalidArgument)
}

func TestReadAppendsSegmentsAcrossPolls(t *testing.T) {
	stack := netstack.NewMockStack()
	c := connectedClient(t, stack)

	stack.QueueStreamEvent(1, netstack.StreamEvent{
		Kind: netstack.StreamData,
		Data: &netstack.Buffer{Payload: []byte("hello ")},
	})
	stack.QueueStreamEvent(1, netstack.StreamEvent{
		Kind: netstack.StreamData,
		Data: &netstack.Buffer{Payload: []byte("world")},
	})

	require.Equal(t, 11, c.Available())
	p := make([]byte, 32)
	n := c.Read(p)
	require.Equal(t, "hello world", string(p[:n]))
	require.Equal(t, -1, c.ReadByte())
}

func TestUnreadBytesSurviveRefill(t *testing.T) {
	stack := netstack.NewMockStack()
	c := connectedClient(t, stack)

	stack.QueueStreamEvent(1, netstack.StreamEvent{
		Kind: netstack.StreamData,
		Data: &netstack.Buffer{Payload: []byte("abc")},
	})
	require.Equal(t, 3, c.Available())
	require.Equal(t, int('a'), c.ReadByte())

	// more data arrives; the unread "bc" must not be discarded
	stack.QueueStreamEvent(1, netstack.StreamEvent{
		Kind: netstack.StreamData,
		Data: &netstack.Buffer{Payload: []byte("def")},
	})
	require.Equal(t, int('b'), c.ReadByte())
	require.Equal(t, int('c'), c.ReadByte())
	require.Equal(t, 3, c.Available())

	p := make([]byte, 8)
	n := c.Read(p)
	require.Equal(t, "def", string(p[:n]))
}

func TestWriteOnConnectedStream(t *testing.T) {
	stack := netstack.NewMockStack()
	c := connectedClient(t, stack)

	n, err := c.Write([]byte("request"))
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.Equal(t, [][]byte{[]byte("request")}, stack.SentStream[1])
}

func TestWriteWhenNotConnectedFails(t *testing.T) {
	stack := netstack.NewMockStack()
	c := New(stack, &fakeClock{}, nil)
	defer c.Close()

	n, err := c.Write([]byte("x"))
	require.ErrorIs(t, err, netstack.ErrClosed)
	require.Zero(t, n)
}

func TestRemoteCloseNotification(t *testing.T) {
	stack := netstack.NewMockStack()
	c := connectedClient(t, stack)

	// nil data chain in place of bytes means the remote side closed
	stack.QueueStreamEvent(1, netstack.StreamEvent{Kind: netstack.StreamData})
	stack.Advance()
	require.Equal(t, StateClosed, c.State())

	_, err := c.Write([]byte("x"))
	require.ErrorIs(t, err, netstack.ErrClosed)
}

func TestStackErrorMovesClientToErrorState(t *testing.T) {
	stack := netstack.NewMockStack()
	c := connectedClient(t, stack)

	stack.QueueStreamEvent(1, netstack.StreamEvent{Kind: netstack.StreamError})
	stack.Advance()
	require.Equal(t, StateError, c.State())
}

func TestConnectHost(t *testing.T) {
	stack := netstack.NewMockStack()
	stack.ScriptConnectAfter(1)
	addr := netip.MustParseAddr("203.0.113.77")
	c := New(stack, &fakeClock{}, resolverFunc(func(host string) (netip.Addr, error) {
		require.Equal(t, "svc.example", host)
		return addr, nil
	}))
	defer c.Close()

	require.NoError(t, c.ConnectHost("svc.example", 80))
	require.True(t, c.Connected())
}

func TestStateStrings(t *testing.T) {
	require.Equal(t, "idle", StateIdle.String())
	require.Equal(t, "connected", StateConnected.String())
	require.Equal(t, "error", StateError.String())
}

/********** Test Utilities **********/

type fakeClock struct {
	now int64
}

var _ netstack.Clock = (*fakeClock)(nil)

func (c *fakeClock) NowMillis() int64 {
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.now += d.Milliseconds()
}

type resolverFunc func(host string) (netip.Addr, error)

func (f resolverFunc) Resolve(host string) (netip.Addr, error) {
	return f(host)
}
