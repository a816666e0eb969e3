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
	"context"
	"time"

	"github.com/pepper-iot/pulsar-client-go/core/msg"
)

// event is the closed set of messages the Core Actor processes, one at a
// time, in arrival order (spec §4.5/§5).
type event interface{ isEvent() }

type baseEvent struct{}

func (baseEvent) isEvent() {}

// messageReceivedEvent is posted by the Poller for every value pulled
// from the TaskSeq. reply unblocks the Poller's next pull once the message
// is enqueued/handed off; while the queue is above the resume threshold the
// reply is withheld until a dequeue brings it back down.
type messageReceivedEvent struct {
	baseEvent
	key string
	res Result
	reply chan struct{}
}

// receiveEvent implements ReceiveAsync.
type receiveEvent struct {
	baseEvent
	ctx   context.Context
	reply chan Result
}

// batchReceiveEvent implements BatchReceiveAsync.
type batchReceiveEvent struct {
	baseEvent
	ctx   context.Context
	reply chan batchResult
}

// sendBatchByTimeoutEvent fires when a BatchWaiter's timer elapses.
type sendBatchByTimeoutEvent struct {
	baseEvent
	w *batchWaiter
}

type ackKind int

const (
	ackSingle ackKind = iota
	ackCumulative
	ackNegative
)

type acknowledgeEvent struct {
	baseEvent
	kind  ackKind
	id    msg.MessageID
	reply chan error
}

type redeliverAllEvent struct {
	baseEvent
	reply chan error
}

type redeliverUnackedEvent struct {
	baseEvent
	ids   []msg.MessageID
	reply chan error
}

type redeliverTimedOutEvent struct {
	baseEvent
	ids []msg.MessageID
}

// ackTimeoutTickEvent is posted by the unackedTracker's ticker goroutine on
// every tick. The actor itself calls collectExpired in response, so
// entries/index stay single-writer.
type ackTimeoutTickEvent struct{ baseEvent }

type seekEvent struct {
	baseEvent
	seek     msg.SeekData
	resolver func(topic string) msg.SeekData // non-nil for SeekWithResolver
	reply    chan error
}

type partitionTickEvent struct{ baseEvent }

type patternTickEvent struct{ baseEvent }

type hasReachedEndEvent struct {
	baseEvent
	reply chan bool
}

type lastDisconnectedEvent struct {
	baseEvent
	reply chan time.Time
}

type getStatsEvent struct {
	baseEvent
	reply chan ConsumerStats
}

type reconsumeLaterEvent struct {
	baseEvent
	ids        []msg.MessageID
	cumulative bool
	reply      chan error
}

type hasMessageAvailableEvent struct {
	baseEvent
	reply chan bool
}

type removeWaiterEvent struct {
	baseEvent
	w *waiter
}

type removeBatchWaiterEvent struct {
	baseEvent
	w *batchWaiter
}

type closeEvent struct {
	baseEvent
	reply chan error
}

type unsubscribeEvent struct {
	baseEvent
	reply chan error
}
