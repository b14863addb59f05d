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

package mailbox

import (
	"testing"

	"github.com/coopnet/netbridge/netstack"
	"github.com/stretchr/testify/require"
)

func chainOf(segs ...string) *netstack.Buffer {
	var head, tail *netstack.Buffer
	for _, s := range segs {
		b := &netstack.Buffer{Payload: []byte(s)}
		if head == nil {
			head = b
		} else {
			tail.Next = b
		}
		tail = b
	}
	return head
}

func TestUnpublishedMailboxYieldsSentinels(t *testing.T) {
	m := New(64)
	require.Equal(t, 0, m.Available())
	require.Equal(t, NoData, m.ReadByte())
	require.Equal(t, NoData, m.Peek())
	require.Equal(t, 0, m.Read(make([]byte, 8)))
}

func TestDeliverPublishRead(t *testing.T) {
	m := New(64)
	m.Deliver(chainOf("hello"))

	// pending is invisible until Publish
	require.Equal(t, 0, m.Available())

	require.Equal(t, 5, m.Publish())
	require.Equal(t, 5, m.Available())
	require.Equal(t, int('h'), m.Peek())
	require.Equal(t, int('h'), m.ReadByte())
	require.Equal(t, 4, m.Available())

	p := make([]byte, 8)
	n := m.Read(p)
	require.Equal(t, 4, n)
	require.Equal(t, "ello", string(p[:n]))
	require.Equal(t, 0, m.Available())
	require.Equal(t, NoData, m.ReadByte())
	require.Equal(t, NoData, m.Peek())
}

func TestChainedDescriptorsConcatenateInOrder(t *testing.T) {
	m := New(64)
	m.Deliver(chainOf("ab", "", "cd", "e"))
	require.Equal(t, 5, m.Publish())

	p := make([]byte, 5)
	require.Equal(t, 5, m.Read(p))
	require.Equal(t, "abcde", string(p))
}

func TestLatestDeliveryWins(t *testing.T) {
	m := New(64)
	m.Deliver(chainOf("first"))
	m.Deliver(chainOf("second"))
	m.Deliver(chainOf("third"))

	require.Equal(t, 5, m.Publish())
	p := make([]byte, 16)
	n := m.Read(p)
	require.Equal(t, "third", string(p[:n]))
}

func TestPublishWithNothingPendingEmptiesCurrent(t *testing.T) {
	m := New(64)
	m.Deliver(chainOf("data"))
	require.Equal(t, 4, m.Publish())

	// no new delivery: the second publish exposes an empty item and the
	// cursor parks at the sentinel
	require.Equal(t, 0, m.Publish())
	require.Equal(t, 0, m.Available())
	require.Equal(t, NoData, m.ReadByte())
}

func TestPartialReadsAdvanceCursorExactly(t *testing.T) {
	m := New(64)
	m.Deliver(chainOf("0123456789"))
	require.Equal(t, 10, m.Publish())

	p := make([]byte, 3)
	require.Equal(t, 3, m.Read(p))
	require.Equal(t, "012", string(p))
	require.Equal(t, 7, m.Available())

	require.Equal(t, 3, m.Read(p))
	require.Equal(t, "345", string(p))

	big := make([]byte, 100)
	require.Equal(t, 4, m.Read(big))
	require.Equal(t, "6789", string(big[:4]))
	require.Equal(t, 0, m.Available())
	require.Equal(t, 0, m.Read(big))
}

func TestZeroLengthReadReturnsZero(t *testing.T) {
	m := New(64)
	m.Deliver(chainOf("x"))
	m.Publish()
	require.Equal(t, 0, m.Read(nil))
	require.Equal(t, 1, m.Available())
}

func TestDiscardParksCursorWithoutClearingStorage(t *testing.T) {
	m := New(64)
	m.Deliver(chainOf("payload"))
	require.Equal(t, 7, m.Publish())
	require.Equal(t, int('p'), m.ReadByte())

	m.Discard()
	require.Equal(t, 0, m.Available())
	require.Equal(t, NoData, m.ReadByte())
	require.Equal(t, NoData, m.Peek())
}

func TestDeliveryDuringReadIsInvisibleUntilNextPublish(t *testing.T) {
	m := New(64)
	m.Deliver(chainOf("one"))
	require.Equal(t, 3, m.Publish())

	// a callback fires while the application is mid-read
	require.Equal(t, int('o'), m.ReadByte())
	m.Deliver(chainOf("two"))

	// the current item is unaffected
	p := make([]byte, 8)
	n := m.Read(p)
	require.Equal(t, "ne", string(p[:n]))

	require.Equal(t, 3, m.Publish())
	n = m.Read(p)
	require.Equal(t, "two", string(p[:n]))
}

func TestDeliverAppendAccumulates(t *testing.T) {
	m := New(64)
	m.DeliverAppend(chainOf("seg1,"))
	m.DeliverAppend(chainOf("seg2"))
	require.Equal(t, 9, m.Publish())

	p := make([]byte, 16)
	n := m.Read(p)
	require.Equal(t, "seg1,seg2", string(p[:n]))
}

func TestOversizeDeliveryGrowsPending(t *testing.T) {
	m := New(4)
	m.Deliver(chainOf("longer than the reserve"))
	require.Equal(t, 23, m.Publish())
	p := make([]byte, 32)
	n := m.Read(p)
	require.Equal(t, "longer than the reserve", string(p[:n]))
}
