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

import "time"

// waiter is a parked ReceiveAsync request, dequeued FIFO.
type waiter struct {
	reply chan Result
	done  chan struct{}
}

// batchResult is what a parked BatchReceiveAsync call is ultimately handed:
// either a (possibly empty) slice of results, or a cancellation error.
type batchResult struct {
	items []Result
	err   error
}

// batchWaiter is a parked BatchReceiveAsync request. timeoutTimer fires
// sendBatchByTimeout unless the waiter is satisfied or canceled first.
type batchWaiter struct {
	reply        chan batchResult
	done         chan struct{}
	timeoutTimer *time.Timer
	canceled     bool
}

// incomingQueue is the FIFO of received Results (messages and decoded
// errors) awaiting a Receive/BatchReceive call, plus the two waiter lists. It is owned
// exclusively by the Core Actor: every method here assumes single-writer
// access, matching spec §3/§5 (no locks across queues and waiter lists).
type incomingQueue struct {
	items         []Result
	incomingBytes int64

	waiters      []*waiter
	batchWaiters []*batchWaiter

	cfg Config
}

func newIncomingQueue(cfg Config) *incomingQueue {
	return &incomingQueue{cfg: cfg}
}

func (q *incomingQueue) len() int { return len(q.items) }

// push enqueues a result, accounting incomingBytes for successful entries.
// Invariant: when Waiters is non-empty the queue must be empty (callers
// are expected to satisfy a waiter directly instead of calling push).
func (q *incomingQueue) push(r Result) {
	q.items = append(q.items, r)
	if r.Err == nil {
		q.incomingBytes += int64(len(r.Msg.Payload))
	}
}

// pop dequeues the oldest result, decrementing incomingBytes if it was a
// successful entry. This is the only place incomingBytes decrements.
func (q *incomingQueue) pop() (Result, bool) {
	if len(q.items) == 0 {
		return Result{}, false
	}
	r := q.items[0]
	q.items = q.items[1:]
	if r.Err == nil {
		q.incomingBytes -= int64(len(r.Msg.Payload))
	}
	return r, true
}

// aboveResumeThreshold reports whether the queue holds more than
// receiverQueueSize/2 entries, the point at which a withheld poller reply
// should keep being withheld.
func (q *incomingQueue) aboveResumeThreshold() bool {
	return len(q.items) > q.cfg.resumeThreshold()
}

// clear empties the queue and zeroes incomingBytes, used by Seek and
// RedeliverAll.
func (q *incomingQueue) clear() {
	q.items = nil
	q.incomingBytes = 0
}

func (q *incomingQueue) pushWaiter(w *waiter) {
	q.waiters = append(q.waiters, w)
}

func (q *incomingQueue) popWaiter() (*waiter, bool) {
	if len(q.waiters) == 0 {
		return nil, false
	}
	w := q.waiters[0]
	q.waiters = q.waiters[1:]
	return w, true
}

// removeWaiter detaches w (used when its Receive's context is canceled
// while parked). Idempotent: a waiter already popped is simply not found.
func (q *incomingQueue) removeWaiter(w *waiter) {
	for i, cur := range q.waiters {
		if cur == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}

func (q *incomingQueue) pushBatchWaiter(b *batchWaiter) {
	q.batchWaiters = append(q.batchWaiters, b)
}

func (q *incomingQueue) popBatchWaiter() (*batchWaiter, bool) {
	if len(q.batchWaiters) == 0 {
		return nil, false
	}
	b := q.batchWaiters[0]
	q.batchWaiters = q.batchWaiters[1:]
	return b, true
}

func (q *incomingQueue) removeBatchWaiter(b *batchWaiter) {
	for i, cur := range q.batchWaiters {
		if cur == b {
			q.batchWaiters = append(q.batchWaiters[:i], q.batchWaiters[i+1:]...)
			return
		}
	}
}

// hasEnoughForBatch reports whether the queue already satisfies the
// count/byte limits of policy. The Timeout limit is not checked here: a
// batch waiter's timer event replies with whatever is queued when it fires.
func (q *incomingQueue) hasEnoughForBatch(policy BatchReceivePolicy) bool {
	if len(q.items) >= policy.MaxNumMessages {
		return true
	}
	if q.incomingBytes >= policy.MaxNumBytes {
		return true
	}
	return false
}

// drainForBatch pops up to policy.MaxNumMessages successful-or-error
// results for a batch reply. It stops early if it would exceed
// policy.MaxNumBytes of successful payload, always taking at least one
// result if present.
func (q *incomingQueue) drainForBatch(policy BatchReceivePolicy) []Result {
	var out []Result
	var bytes int64
	for len(q.items) > 0 && len(out) < policy.MaxNumMessages {
		r := q.items[0]
		if len(out) > 0 && r.Err == nil && bytes+int64(len(r.Msg.Payload)) > policy.MaxNumBytes {
			break
		}
		r, _ = q.pop()
		out = append(out, r)
		if r.Err == nil {
			bytes += int64(len(r.Msg.Payload))
		}
	}
	return out
}
