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

// ChildConsumer is the contract the multi-topic consumer relies on for
// every per-partition/per-topic subscription it owns. It is consumed as an
// opaque interface: the wire protocol, TCP connection, and broker lookup
// behind a concrete implementation are out of scope here.
type ChildConsumer interface {
	// Topic returns this child's CompleteTopicName, including any
	// -partition-N suffix.
	Topic() string

	// Receive blocks for the next message, or until ctx is done.
	Receive(ctx context.Context) (msg.Message, error)

	// Ack, AckCumulative, and Nack route to this child's subscription.
	Ack(ctx context.Context, id msg.MessageID) error
	AckCumulative(ctx context.Context, id msg.MessageID) error
	Nack(id msg.MessageID)

	// RedeliverAll requests redelivery of every unacknowledged message on
	// this child's subscription. RedeliverUnacknowledged redelivers only
	// the given ids (meaningful for Shared/KeyShared subscriptions).
	RedeliverAll(ctx context.Context) error
	RedeliverUnacknowledged(ctx context.Context, ids []msg.MessageID) error

	// Seek repositions this child's subscription cursor.
	Seek(ctx context.Context, seek msg.SeekData) error

	// Stats returns a snapshot of this child's counters.
	Stats() ConsumerStats

	HasReachedEndOfTopic() bool
	LastDisconnectedTimestamp() time.Time

	Unsubscribe(ctx context.Context) error
	Close(ctx context.Context) error

	// Done unblocks once the child has stopped for good and will deliver
	// nothing more.
	Done() <-chan struct{}
}

// ConsumerInitInfo records what the multi-topic consumer last observed
// about a partitioned topic: how many partitions it believes exist. It is
// the authoritative state PartitionTickTime compares against to detect
// growth.
type ConsumerInitInfo struct {
	Topic      string
	Partitions int
}

// ChildFactory creates a ChildConsumer for exactly one CompleteTopicName.
// receiverQueueSize is chosen by the caller: Init passes ReceiverQueueSize
// unchanged, while the Partition/Pattern Watcher passes a fair share of the
// queue budget (fairShareQueueSize) on growth. Implementations are expected to perform topic lookup,
// connection setup, and subscription -- all out of scope here.
type ChildFactory func(ctx context.Context, completeTopicName string, receiverQueueSize int) (ChildConsumer, error)

// BinaryLookupService is the external collaborator used by the partition
// and pattern watchers to discover partition growth and topic-set changes.
// It is consumed only by interface.
type BinaryLookupService interface {
	GetPartitionsForTopic(ctx context.Context, topic string) ([]string, error)
	GetPartitionedTopicMetadata(ctx context.Context, topic string) (partitions int, err error)
	GetTopicsMatchingPattern(ctx context.Context, pattern string) ([]string, error)
	GetServiceURL() string
}
