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

package owners

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGetDrop(t *testing.T) {
	var tbl Table[*int]
	a, b := 1, 2

	ta := tbl.Put(&a)
	tb := tbl.Put(&b)
	require.NotZero(t, ta)
	require.NotEqual(t, ta, tb)

	got, ok := tbl.Get(ta)
	require.True(t, ok)
	require.Same(t, &a, got)

	tbl.Drop(ta)
	_, ok = tbl.Get(ta)
	require.False(t, ok)

	// the other owner is untouched
	got, ok = tbl.Get(tb)
	require.True(t, ok)
	require.Same(t, &b, got)
}

func TestDropUnknownTokenIsNoop(t *testing.T) {
	var tbl Table[string]
	tbl.Drop(42)

	tok := tbl.Put("x")
	tbl.Drop(tok)
	tbl.Drop(tok)
	_, ok := tbl.Get(tok)
	require.False(t, ok)
}

func TestTokensAreNotReused(t *testing.T) {
	var tbl Table[int]
	seen := make(map[any]bool)
	for i := 0; i < 100; i++ {
		tok := tbl.Put(i)
		require.False(t, seen[tok])
		seen[tok] = true
		tbl.Drop(tok)
	}
}
