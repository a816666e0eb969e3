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

import (
	"container/list"
	"time"

	"github.com/pepper-iot/pulsar-client-go/core/msg"
)

// unackedTracker triggers redelivery for messages that weren't
// acknowledged within AckTimeout. Its entries/index are actor-owned state:
// the ticker goroutine below only ever posts an ackTimeoutTickEvent to the
// Core Actor's mailbox, and it is the actor itself (via onAckTimeoutTick)
// that calls collectExpired, keeping every mutation of entries/index on
// the single actor goroutine alongside Add/Remove/RemoveUntil/Clear.
//
// Entries are kept in a doubly linked list ordered by add time (a
// time-wheel reduced to a single bucket per tick, which is sufficient
// given AckTimeoutTickTime granularity); the tick handler only needs to
// scan from the front until it finds an entry younger than the deadline.
type unackedTracker struct {
	timeout  time.Duration
	tickTime time.Duration

	entries *list.List // of *unackedEntry, oldest first
	index   map[msg.MessageID]*list.Element

	ticker *time.Ticker
	stopCh chan struct{}
	postCh chan<- event
}

type unackedEntry struct {
	id      msg.MessageID
	addedAt time.Time
}

// newUnackedTracker builds a tracker. If timeout is zero, ack-timeout
// redelivery is disabled and the returned tracker is inert: Add/Remove
// still work so callers don't need to special-case a disabled tracker,
// but Start is a no-op.
func newUnackedTracker(timeout, tickTime time.Duration, postCh chan<- event) *unackedTracker {
	return &unackedTracker{
		timeout:  timeout,
		tickTime: tickTime,
		entries:  list.New(),
		index:    make(map[msg.MessageID]*list.Element),
		stopCh:   make(chan struct{}),
		postCh:   postCh,
	}
}

// Start launches the background ticker, if ack-timeout tracking is
// enabled. Safe to call once.
func (u *unackedTracker) Start() {
	if u.timeout <= 0 {
		return
	}
	u.ticker = time.NewTicker(u.tickTime)
	go u.run()
}

// Stop halts the ticker. Safe to call even if Start was never called.
func (u *unackedTracker) Stop() {
	close(u.stopCh)
	if u.ticker != nil {
		u.ticker.Stop()
	}
}

// run only ever signals the actor; it never touches entries/index itself.
func (u *unackedTracker) run() {
	for {
		select {
		case <-u.ticker.C:
			select {
			case u.postCh <- &ackTimeoutTickEvent{}:
			case <-u.stopCh:
				return
			}
		case <-u.stopCh:
			return
		}
	}
}

// Add records id as delivered-and-unacked. Called by the Core Actor on
// every delivery to a caller.
func (u *unackedTracker) Add(id msg.MessageID) {
	if _, ok := u.index[id]; ok {
		return
	}
	el := u.entries.PushBack(&unackedEntry{id: id, addedAt: time.Now()})
	u.index[id] = el
}

// Remove clears a single id, idempotently: acking an already-removed id
// is a no-op.
func (u *unackedTracker) Remove(id msg.MessageID) {
	el, ok := u.index[id]
	if !ok {
		return
	}
	u.entries.Remove(el)
	delete(u.index, id)
}

// RemoveUntil clears every tracked id for topic with position <= id
// (cumulative ack).
func (u *unackedTracker) RemoveUntil(id msg.MessageID) {
	var next *list.Element
	for el := u.entries.Front(); el != nil; el = next {
		next = el.Next()
		e := el.Value.(*unackedEntry)
		if e.id.TopicName == id.TopicName && !id.Less(e.id) {
			u.entries.Remove(el)
			delete(u.index, e.id)
		}
	}
}

// Clear empties the tracker, used after Seek/RedeliverAll.
func (u *unackedTracker) Clear() {
	u.entries.Init()
	u.index = make(map[msg.MessageID]*list.Element)
}

func (u *unackedTracker) Len() int { return u.entries.Len() }

// collectExpired removes and returns every id added more than timeout
// before now.
func (u *unackedTracker) collectExpired(now time.Time) []msg.MessageID {
	var expired []msg.MessageID
	var next *list.Element
	for el := u.entries.Front(); el != nil; el = next {
		next = el.Next()
		e := el.Value.(*unackedEntry)
		if now.Sub(e.addedAt) < u.timeout {
			break // list is ordered by add time: nothing younger follows
		}
		expired = append(expired, e.id)
		u.entries.Remove(el)
		delete(u.index, e.id)
	}
	return expired
}
