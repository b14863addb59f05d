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

// Package owners maps opaque callback tokens to live owner instances.
//
// Stack callbacks carry a [netstack.Token] rather than a pointer, so a
// callback trampoline must look the owner up and verify it is still alive
// before touching it. Each consumer package keeps one package-level Table
// for its own type.
package owners

import (
	"sync"

	"github.com/coopnet/netbridge/netstack"
)

// Table is a token-to-owner registry. The zero value is ready to use and
// safe for concurrent access from callback and application contexts.
type Table[T any] struct {
	mu   sync.Mutex
	next netstack.Token
	m    map[netstack.Token]T
}

// Put registers v and returns its token. Tokens are never zero and never
// reused within a Table's lifetime.
func (t *Table[T]) Put(v T) netstack.Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		t.m = make(map[netstack.Token]T)
	}
	t.next++
	t.m[t.next] = v
	return t.next
}

// Get returns the owner registered under tok, if it is still alive.
func (t *Table[T]) Get(tok netstack.Token) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.m[tok]
	return v, ok
}

// Drop unregisters tok. Dropping an unknown token is a no-op, so teardown
// paths can call it unconditionally.
func (t *Table[T]) Drop(tok netstack.Token) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, tok)
}
