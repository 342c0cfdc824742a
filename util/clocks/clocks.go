// Copyright 2019 eBay Inc.
// Primary authors: Simon Fell, Diego Ongaro,
//                  Raymond Kroeker, and Sathish Kandasamy.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package clocks lets time-bounded code read the time through an interface,
// so that tests can substitute a clock they control.
package clocks

import (
	"sync"
	"time"
)

// Time is time.Time.
type Time = time.Time

// Source reports the current time.
type Source interface {
	Now() Time
}

// Wall reads the system clock.
var Wall Source = wallClock{}

type wallClock struct{}

func (wallClock) Now() Time {
	return time.Now()
}

// Mock is a Source that only moves when told to. The zero value is not
// usable; call NewMock.
type Mock struct {
	lock sync.Mutex
	now  Time
	step time.Duration
}

var _ Source = (*Mock)(nil)

// NewMock returns a Mock set to the Unix epoch.
func NewMock() *Mock {
	return &Mock{now: time.Unix(0, 0)}
}

// Now returns the mock time, then moves it forward by the AutoAdvance step.
func (c *Mock) Now() Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	now := c.now
	c.now = now.Add(c.step)
	return now
}

// Advance moves the mock time forward.
func (c *Mock) Advance(d time.Duration) {
	c.lock.Lock()
	c.now = c.now.Add(d)
	c.lock.Unlock()
}

// AutoAdvance sets how far each later call to Now moves the time. A search
// that checks its deadline on every step then sees time pass without another
// goroutine driving the clock. Zero turns it off.
func (c *Mock) AutoAdvance(step time.Duration) {
	c.lock.Lock()
	c.step = step
	c.lock.Unlock()
}
