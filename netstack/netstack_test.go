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
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferTotalLen(t *testing.T) {
	chain := &Buffer{
		Payload: []byte("abc"),
		Next: &Buffer{
			Payload: nil,
			Next:    &Buffer{Payload: []byte("de")},
		},
	}
	require.Equal(t, 5, chain.TotalLen())
	require.Equal(t, 0, (&Buffer{}).TotalLen())
}

func TestErrorClasses(t *testing.T) {
	require.ErrorIs(t, ErrClosed, os.ErrClosed)
	require.ErrorIs(t, ErrInvalidArgument, os.ErrInvalid)
}

func TestMockDeliversOnlyOnAdvance(t *testing.T) {
	m := NewMockStack()
	h, err := m.OpenDatagram(netip.Addr{}, 1234)
	require.NoError(t, err)

	var got []byte
	m.SetDatagramReceiver(h, 7, func(owner Token, chain *Buffer, from netip.AddrPort) {
		require.Equal(t, Token(7), owner)
		got = append([]byte(nil), chain.Payload...)
	})

	m.QueueDatagram(h, &Buffer{Payload: []byte("x")}, netip.MustParseAddrPort("192.0.2.1:1"))
	require.Nil(t, got, "queued items must wait for the yield point")

	m.Advance()
	require.Equal(t, []byte("x"), got)
}
