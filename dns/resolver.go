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

// Package dns turns the network stack's asynchronous name-resolution
// callback into a blocking-style call with a fixed ceiling.
//
// There is no real blocking primitive underneath: while a query is in
// flight, [Resolver.Resolve] sleeps in short fixed intervals and yields into
// the stack's processing step each iteration, so the stack keeps making
// forward progress and the answer callback gets a chance to run. The loop is
// bounded; a query that produces no answer within the ceiling fails with
// [ErrTimeout].
package dns

import (
	"fmt"
	"net/netip"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/dns/dnsmessage"

	"github.com/coopnet/netbridge/internal/owners"
	"github.com/coopnet/netbridge/netstack"
)

const (
	// pollInterval is how long Resolve sleeps between yields into the stack.
	pollInterval = 10 * time.Millisecond

	// resolveCeilingMillis bounds the total time Resolve waits for the
	// answer callback.
	resolveCeilingMillis = 2000
)

// Resolution failure classes. Test with [errors.Is].
var (
	// ErrTimeout means no answer arrived within the resolver's ceiling.
	ErrTimeout = fmt.Errorf("hostname resolution timed out: %w", os.ErrDeadlineExceeded)

	// ErrInvalidHostname means the input could not be a DNS name; the stack
	// was not queried.
	ErrInvalidHostname = fmt.Errorf("not a resolvable hostname: %w", os.ErrInvalid)
)

// Stack is the slice of the network stack the resolver needs.
type Stack interface {
	netstack.Advancer
	netstack.NameResolver
}

// Resolver bridges one asynchronous resolve request at a time. Issuing a new
// request supersedes the previous one: a late callback for the old request
// is ignored because its name no longer matches the stored hostname.
type Resolver struct {
	stack Stack
	clock netstack.Clock
	tok   netstack.Token

	mu    sync.Mutex
	host  string
	addr  netip.Addr
	found bool
}

var resolvers owners.Table[*Resolver]

// onResolved is the callback trampoline the stack invokes when an answer
// arrives. It recovers the owning Resolver from the token and drops results
// whose name does not match the live request.
func onResolved(owner netstack.Token, host string, addr netip.Addr) {
	r, ok := resolvers.Get(owner)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.host != host {
		// stale answer from a superseded request
		return
	}
	r.addr = addr
	r.found = true
}

// NewResolver returns a Resolver bound to stack and clock. Call
// [Resolver.Close] when done so late callbacks stop matching it.
func NewResolver(stack Stack, clock netstack.Clock) *Resolver {
	r := &Resolver{stack: stack, clock: clock}
	r.tok = resolvers.Put(r)
	return r
}

// Close unregisters the resolver from the callback table. Any in-flight
// answer is dropped at the trampoline's liveness check.
func (r *Resolver) Close() {
	resolvers.Drop(r.tok)
}

// Resolve resolves host to an address, waiting up to the resolver's ceiling.
//
// A synchronously available answer (cached entry or address literal) returns
// without any polling. Otherwise Resolve sleeps pollInterval, yields into
// the stack, and re-checks, until the answer callback fires or the ceiling
// elapses.
func (r *Resolver) Resolve(host string) (netip.Addr, error) {
	if !validHostname(host) {
		return netip.Addr{}, ErrInvalidHostname
	}

	// Record the hostname before issuing the request so a racing callback
	// from an earlier request can be told apart by name.
	r.mu.Lock()
	r.host = host
	r.addr = netip.Addr{}
	r.found = false
	r.mu.Unlock()

	addr, status, err := r.stack.Resolve(host, r.tok, onResolved)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolve %q: %w", host, err)
	}
	if status == netstack.ResolveDone {
		return addr, nil
	}

	start := r.clock.NowMillis()
	for {
		r.clock.Sleep(pollInterval)
		r.stack.Advance()

		r.mu.Lock()
		found, got := r.found, r.addr
		r.mu.Unlock()
		if found {
			return got, nil
		}
		if r.clock.NowMillis()-start >= resolveCeilingMillis {
			return netip.Addr{}, fmt.Errorf("resolve %q: %w", host, ErrTimeout)
		}
	}
}

// validHostname reports whether host is a well-formed DNS name. Address
// literals pass too; the stack answers those synchronously.
func validHostname(host string) bool {
	if host == "" {
		return false
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return true
	}
	fqdn := host
	if !strings.HasSuffix(fqdn, ".") {
		fqdn += "."
	}
	_, err := dnsmessage.NewName(fqdn)
	return err == nil
}
