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

// Package outbuf implements the bounded accumulate-then-flush builder shared
// by frame and datagram transmission. A Builder holds exactly one in-flight
// item; Begin while an item is open discards the unflushed content.
package outbuf

import (
	"errors"
	"math"
)

// MaxWriteLen is the largest single bulk write accepted by [Builder.Write].
// Longer writes are truncated to this length, not rejected.
const MaxWriteLen = math.MaxUint16

// ErrNotStarted is returned by [Builder.End] when no item is in progress.
var ErrNotStarted = errors.New("no outbound item in progress")

// Builder accumulates one outbound item and hands it to a send primitive in
// a single call. It is single-owner: instances are not shared and the buffer
// storage never escapes except for the duration of the flush callback.
type Builder struct {
	building bool
	buf      []byte
	reserve  int
}

// New returns a Builder that reserves reserve bytes on first use.
func New(reserve int) *Builder {
	return &Builder{reserve: reserve}
}

// Begin opens a new item, discarding any unflushed content from a previous
// Begin. Storage is reserved up front so steady-state building does not
// allocate.
func (b *Builder) Begin() {
	if b.buf == nil {
		b.buf = make([]byte, 0, b.reserve)
	}
	b.building = true
	b.buf = b.buf[:0]
}

// Building reports whether an item is open.
func (b *Builder) Building() bool {
	return b.building
}

// WriteByte appends one byte and returns 1, or 0 if no item is open.
func (b *Builder) WriteByte(v byte) int {
	if !b.building {
		return 0
	}
	b.buf = append(b.buf, v)
	return 1
}

// Write appends p and returns the number of bytes taken: 0 if no item is
// open, otherwise min(len(p), MaxWriteLen).
func (b *Builder) Write(p []byte) int {
	if !b.building || len(p) == 0 {
		return 0
	}
	if len(p) > MaxWriteLen {
		p = p[:MaxWriteLen]
	}
	b.buf = append(b.buf, p...)
	return len(p)
}

// Len returns the number of bytes accumulated in the open item.
func (b *Builder) Len() int {
	return len(b.buf)
}

// End closes the item and hands the accumulated bytes to flush in one call.
// The builder leaves the building state unconditionally, even when flush
// fails, so a failed transmission is never retryable without a fresh Begin.
// The buffer is cleared before End returns; flush must not retain it.
func (b *Builder) End(flush func(p []byte) error) error {
	if !b.building {
		return ErrNotStarted
	}
	b.building = false
	err := flush(b.buf)
	b.buf = b.buf[:0]
	return err
}
