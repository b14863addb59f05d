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

import "time"

// Clock is the monotonic time source used to bound cooperative poll loops.
// It exists as an interface so tests can drive timeouts deterministically.
type Clock interface {
	// NowMillis returns a monotonic millisecond counter. Only differences
	// between two readings are meaningful.
	NowMillis() int64

	// Sleep pauses the calling context for at least d.
	Sleep(d time.Duration)
}

// SystemClock is a [Clock] backed by the runtime's monotonic clock.
type SystemClock struct {
	base time.Time
}

var _ Clock = (*SystemClock)(nil)

// NewSystemClock returns a SystemClock whose counter starts near zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{base: time.Now()}
}

// NowMillis implements [Clock.NowMillis].
func (c *SystemClock) NowMillis() int64 {
	return time.Since(c.base).Milliseconds()
}

// Sleep implements [Clock.Sleep].
func (c *SystemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
