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
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pepper-iot/pulsar-client-go/core/msg"
)

func testConfig(receiverQueueSize int) Config {
	cfg := Config{ReceiverQueueSize: receiverQueueSize}.SetDefaults()
	cfg.ReceiverQueueSize = receiverQueueSize
	return cfg
}

func TestIncomingQueuePushPopFIFO(t *testing.T) {
	q := newIncomingQueue(testConfig(10))
	r1 := Result{Msg: msg.Message{Payload: []byte("one")}}
	r2 := Result{Msg: msg.Message{Payload: []byte("two")}}
	q.push(r1)
	q.push(r2)
	require.Equal(t, 2, q.len())

	got, ok := q.pop()
	require.True(t, ok)
	require.Equal(t, "one", string(got.Msg.Payload))

	got, ok = q.pop()
	require.True(t, ok)
	require.Equal(t, "two", string(got.Msg.Payload))

	_, ok = q.pop()
	require.False(t, ok)
}

func TestIncomingQueueIncomingBytesTracksSuccessfulPushesOnly(t *testing.T) {
	q := newIncomingQueue(testConfig(10))
	q.push(Result{Msg: msg.Message{Payload: []byte("abcd")}})
	q.push(Result{Err: errors.New("boom")})
	require.EqualValues(t, 4, q.incomingBytes)

	q.pop()
	require.EqualValues(t, 0, q.incomingBytes)
}

func TestIncomingQueueAboveResumeThreshold(t *testing.T) {
	q := newIncomingQueue(testConfig(10)) // resumeThreshold = 5
	for i := 0; i < 5; i++ {
		q.push(Result{Msg: msg.Message{Payload: []byte("x")}})
	}
	require.False(t, q.aboveResumeThreshold())
	q.push(Result{Msg: msg.Message{Payload: []byte("x")}})
	require.True(t, q.aboveResumeThreshold())
}

func TestIncomingQueueClearResetsBytes(t *testing.T) {
	q := newIncomingQueue(testConfig(10))
	q.push(Result{Msg: msg.Message{Payload: []byte("abcd")}})
	q.clear()
	require.Equal(t, 0, q.len())
	require.EqualValues(t, 0, q.incomingBytes)
}

func TestIncomingQueueWaiterFIFOAndRemove(t *testing.T) {
	q := newIncomingQueue(testConfig(10))
	w1 := &waiter{reply: make(chan Result, 1)}
	w2 := &waiter{reply: make(chan Result, 1)}
	q.pushWaiter(w1)
	q.pushWaiter(w2)

	q.removeWaiter(w1)
	got, ok := q.popWaiter()
	require.True(t, ok)
	require.Same(t, w2, got)

	_, ok = q.popWaiter()
	require.False(t, ok)

	// removeWaiter on an already-popped waiter is a no-op, not a panic.
	q.removeWaiter(w2)
}

func TestIncomingQueueBatchWaiterFIFOAndRemove(t *testing.T) {
	q := newIncomingQueue(testConfig(10))
	b1 := &batchWaiter{reply: make(chan batchResult, 1)}
	b2 := &batchWaiter{reply: make(chan batchResult, 1)}
	q.pushBatchWaiter(b1)
	q.pushBatchWaiter(b2)

	q.removeBatchWaiter(b1)
	got, ok := q.popBatchWaiter()
	require.True(t, ok)
	require.Same(t, b2, got)
}

func TestIncomingQueueHasEnoughForBatch(t *testing.T) {
	q := newIncomingQueue(testConfig(10))
	policy := BatchReceivePolicy{MaxNumMessages: 2, MaxNumBytes: 1024}
	require.False(t, q.hasEnoughForBatch(policy))
	q.push(Result{Msg: msg.Message{Payload: []byte("a")}})
	require.False(t, q.hasEnoughForBatch(policy))
	q.push(Result{Msg: msg.Message{Payload: []byte("b")}})
	require.True(t, q.hasEnoughForBatch(policy))
}

func TestIncomingQueueHasEnoughForBatchByBytes(t *testing.T) {
	q := newIncomingQueue(testConfig(10))
	policy := BatchReceivePolicy{MaxNumMessages: 100, MaxNumBytes: 4}
	q.push(Result{Msg: msg.Message{Payload: []byte("abcd")}})
	require.True(t, q.hasEnoughForBatch(policy))
}

func TestIncomingQueueDrainForBatchRespectsMaxNumMessages(t *testing.T) {
	q := newIncomingQueue(testConfig(10))
	for i := 0; i < 5; i++ {
		q.push(Result{Msg: msg.Message{Payload: []byte("x")}})
	}
	out := q.drainForBatch(BatchReceivePolicy{MaxNumMessages: 3, MaxNumBytes: 1024})
	require.Len(t, out, 3)
	require.Equal(t, 2, q.len())
}

func TestIncomingQueueDrainForBatchAlwaysTakesAtLeastOne(t *testing.T) {
	q := newIncomingQueue(testConfig(10))
	q.push(Result{Msg: msg.Message{Payload: []byte("huge-payload")}})
	out := q.drainForBatch(BatchReceivePolicy{MaxNumMessages: 10, MaxNumBytes: 1})
	require.Len(t, out, 1)
}

func TestIncomingQueueDrainForBatchStopsBeforeExceedingBytes(t *testing.T) {
	q := newIncomingQueue(testConfig(10))
	q.push(Result{Msg: msg.Message{Payload: []byte("ab")}})
	q.push(Result{Msg: msg.Message{Payload: []byte("cd")}})
	q.push(Result{Msg: msg.Message{Payload: []byte("ef")}})
	out := q.drainForBatch(BatchReceivePolicy{MaxNumMessages: 10, MaxNumBytes: 3})
	require.Len(t, out, 1)
	require.Equal(t, 2, q.len())
}

