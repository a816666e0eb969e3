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

// Package mtconsumer implements a client-side multi-topic consumer: a
// fan-in aggregator over many single-topic ChildConsumers that presents a
// single Consumer surface, the way MultiTopicsConsumer/PatternConsumer do
// in the wire-protocol client this package was carved out of.
package mtconsumer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pepper-iot/pulsar-client-go/core/msg"
)

// Consumer is the public multi-topic consumer surface. Every method posts
// an event to the Core Actor and waits for its reply; none of them touch
// actor-owned state directly.
type Consumer struct {
	core *Core
}

// NewConsumer builds and starts a multi-topic consumer targeting kind
// (Partitioned/MultiTopic/Pattern), subscribing each resolved topic through
// factory. lookup resolves partition counts and pattern matches; cleanup,
// if non-nil, is invoked once after the consumer fully stops (Close or
// Unsubscribe), letting an owning ClientLifecycle drop its reference.
//
// NewConsumer blocks until the initial child set is either fully
// subscribed or has failed; a failure disposes whatever children were
// already created.
func NewConsumer(cfg Config, kind MultiConsumerType, factory ChildFactory, lookup BinaryLookupService, cleanup func()) (*Consumer, error) {
	cfg = cfg.SetDefaults()
	cfg.BatchReceivePolicy = cfg.BatchReceivePolicy.SetDefaults()

	topicName := "MultiTopicsConsumer-" + uuid.New().String()
	name := cfg.Name
	if name == "" {
		name = topicName
	}

	core := newCore(topicName, name, cfg, kind, factory, lookup, cleanup)
	go core.run(context.Background())

	if err := core.waitCreated(); err != nil {
		return nil, err
	}
	return &Consumer{core: core}, nil
}

// Topic returns the synthetic topic name this consumer presents itself as.
func (c *Consumer) Topic() string { return c.core.topicName }

// Name returns the consumer name, explicit or generated.
func (c *Consumer) Name() string { return c.core.name }

// ReceiveAsync blocks for the next message across every child topic, or
// until ctx is done.
func (c *Consumer) ReceiveAsync(ctx context.Context) (msg.Message, error) {
	reply := make(chan Result, 1)
	c.core.post(&receiveEvent{ctx: ctx, reply: reply})
	select {
	case r := <-reply:
		return r.Msg, r.Err
	case <-ctx.Done():
		return msg.Message{}, ctx.Err()
	}
}

// BatchReceiveAsync blocks until the configured BatchReceivePolicy is
// satisfied (by count, by bytes, or by its timeout elapsing), or ctx is
// done. A timeout-driven reply may be an empty slice.
func (c *Consumer) BatchReceiveAsync(ctx context.Context) ([]Result, error) {
	reply := make(chan batchResult, 1)
	c.core.post(&batchReceiveEvent{ctx: ctx, reply: reply})
	select {
	case r := <-reply:
		return r.items, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Consumer) ackRequest(kind ackKind, id msg.MessageID) error {
	reply := make(chan error, 1)
	c.core.post(&acknowledgeEvent{kind: kind, id: id, reply: reply})
	return <-reply
}

// AcknowledgeAsync acknowledges a single message.
func (c *Consumer) AcknowledgeAsync(ctx context.Context, id msg.MessageID) error {
	return c.ackRequest(ackSingle, id)
}

// AcknowledgeMessagesAsync acknowledges a set of messages, one at a time in
// the order given, stopping at (and returning) the first failure.
func (c *Consumer) AcknowledgeMessagesAsync(ctx context.Context, ids []msg.MessageID) error {
	for _, id := range ids {
		if err := c.ackRequest(ackSingle, id); err != nil {
			return err
		}
	}
	return nil
}

// AcknowledgeCumulativeAsync acknowledges id and every prior message on its
// topic.
func (c *Consumer) AcknowledgeCumulativeAsync(ctx context.Context, id msg.MessageID) error {
	return c.ackRequest(ackCumulative, id)
}

// NegativeAcknowledge marks id for immediate redelivery without waiting for
// the ack-timeout tracker.
func (c *Consumer) NegativeAcknowledge(id msg.MessageID) {
	_ = c.ackRequest(ackNegative, id)
}

// RedeliverUnacknowledgedMessagesAsync requests redelivery. On a
// Shared/KeyShared subscription only the given ids are redelivered; on any
// other subscription type the whole consumer's unacknowledged backlog is
// redelivered and ids is ignored, matching per-child RedeliverAll semantics.
func (c *Consumer) RedeliverUnacknowledgedMessagesAsync(ctx context.Context, ids []msg.MessageID) error {
	reply := make(chan error, 1)
	c.core.post(&redeliverUnackedEvent{ids: ids, reply: reply})
	return <-reply
}

// SeekAsync repositions every child's cursor to id. Only msg.Earliest or
// msg.Latest are accepted synchronously; anything else fails with
// ErrIllegalMessageID before any child is touched.
func (c *Consumer) SeekAsync(ctx context.Context, id msg.MessageID) error {
	reply := make(chan error, 1)
	c.core.post(&seekEvent{seek: msg.SeekToMessageID(id), reply: reply})
	return <-reply
}

// SeekByTimeAsync repositions every child's cursor to the nearest message
// published at or after t. Unlike SeekAsync, this overload is not
// synchronously validated: whether a given child can seek by time is left
// to it to reject.
func (c *Consumer) SeekByTimeAsync(ctx context.Context, t time.Time) error {
	reply := make(chan error, 1)
	c.core.post(&seekEvent{seek: msg.SeekToTimestamp(t), reply: reply})
	return <-reply
}

// SeekWithResolverAsync lets the caller pick a distinct SeekData per child
// topic (by CompleteTopicName). Never synchronously validated, since the
// resolver's output isn't known until each child is visited.
func (c *Consumer) SeekWithResolverAsync(ctx context.Context, resolver func(topic string) msg.SeekData) error {
	reply := make(chan error, 1)
	c.core.post(&seekEvent{resolver: resolver, reply: reply})
	return <-reply
}

// UnsubscribeAsync unsubscribes every child and stops the consumer.
func (c *Consumer) UnsubscribeAsync(ctx context.Context) error {
	reply := make(chan error, 1)
	c.core.post(&unsubscribeEvent{reply: reply})
	return <-reply
}

// DisposeAsync closes every child and stops the consumer without
// unsubscribing. Once the consumer has stopped, further calls return nil.
func (c *Consumer) DisposeAsync(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case c.core.mailbox <- &closeEvent{reply: reply}:
	case <-c.core.stoppedCh:
		return nil
	}
	select {
	case err := <-reply:
		return err
	case <-c.core.stoppedCh:
		return nil
	}
}

// HasReachedEndOfTopic reports whether every child has reached the end of
// its topic.
func (c *Consumer) HasReachedEndOfTopic() bool {
	reply := make(chan bool, 1)
	c.core.post(&hasReachedEndEvent{reply: reply})
	return <-reply
}

// HasMessageAvailable reports true when the incoming queue holds a message
// or any child has not yet reached the end of its topic. A true result does
// not mean a ReceiveAsync call would return without blocking.
func (c *Consumer) HasMessageAvailable() bool {
	reply := make(chan bool, 1)
	c.core.post(&hasMessageAvailableEvent{reply: reply})
	return <-reply
}

// LastDisconnectedTimestamp returns the most recent disconnection across
// every child, the zero time if none has ever disconnected.
func (c *Consumer) LastDisconnectedTimestamp() time.Time {
	reply := make(chan time.Time, 1)
	c.core.post(&lastDisconnectedEvent{reply: reply})
	return <-reply
}

// GetStatsAsync returns the per-child counters summed (and
// IntervalDuration averaged) across every child.
func (c *Consumer) GetStatsAsync(ctx context.Context) (ConsumerStats, error) {
	reply := make(chan ConsumerStats, 1)
	c.core.post(&getStatsEvent{reply: reply})
	return <-reply, nil
}

// ReconsumeLaterAsync acknowledges each message in ids, in order, stopping
// at (and returning) the first failure; it returns once every message has
// been acknowledged, or none if RetryEnable is false. This resolves an
// explicit open question: there is no separate retry-topic republish here,
// only the ack-equivalent half of reconsume, since republishing is a
// producer-side concern out of scope for this package.
func (c *Consumer) ReconsumeLaterAsync(ctx context.Context, ids []msg.MessageID, delay time.Duration) error {
	reply := make(chan error, 1)
	c.core.post(&reconsumeLaterEvent{ids: ids, reply: reply})
	return <-reply
}

// ReconsumeLaterCumulativeAsync is the cumulative-ack form of
// ReconsumeLaterAsync.
func (c *Consumer) ReconsumeLaterCumulativeAsync(ctx context.Context, id msg.MessageID, delay time.Duration) error {
	reply := make(chan error, 1)
	c.core.post(&reconsumeLaterEvent{ids: []msg.MessageID{id}, cumulative: true, reply: reply})
	return <-reply
}

// GetLastMessageIdAsync always fails: a single last-message-id is
// ambiguous across a multi-topic view (spec non-goal).
func (c *Consumer) GetLastMessageIdAsync(ctx context.Context) (msg.MessageID, error) {
	return msg.MessageID{}, ErrNotSupported
}
