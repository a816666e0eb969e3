// Copyright 2018 Comcast Cable Communications Management, LLC
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mtconsumer

import "sync/atomic"

// connState is the DAG of connection states from spec §3: Uninitialized ->
// Ready -> Closing -> Closed, plus the terminal Failed reachable from
// Uninitialized or Closing. Only the Core Actor writes it, through the
// published atomic below, and the Core Actor is also its only reader: the
// poller and Consumer do not read it.
type connState int32

const (
	stateUninitialized connState = iota
	stateReady
	stateClosing
	stateClosed
	stateFailed
)

func (s connState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateReady:
		return "ready"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// publishedState is a published atomic snapshot of connState. Loads and
// stores are atomic, so a read needs no lock; no accessor outside the Core
// Actor exposes it.
type publishedState struct {
	v atomic.Int32
}

func (p *publishedState) set(s connState) { p.v.Store(int32(s)) }
func (p *publishedState) get() connState  { return connState(p.v.Load()) }
