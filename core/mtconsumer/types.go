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
	"time"

	"github.com/pepper-iot/pulsar-client-go/core/msg"
)

// SubscriptionType mirrors Pulsar's subscription models, reused from the
// vocabulary already established by ConsumerConfig.SubMode in
// core/manage/managed_child.go.
type SubscriptionType int

const (
	Exclusive SubscriptionType = iota + 1
	Shared
	Failover
	KeyShared
)

// multiConsumerKind is a closed sum type over the three shapes a
// multi-topic consumer can be constructed from.
type multiConsumerKind int

const (
	kindPartitioned multiConsumerKind = iota + 1
	kindMultiTopic
	kindPattern
)

// MultiConsumerType is the tagged union of the three ways a multi-topic
// consumer can be told what to subscribe to. Construct one with
// NewPartitioned, NewMultiTopic, or NewPattern.
type MultiConsumerType struct {
	kind    multiConsumerKind
	topic   string   // Partitioned
	topics  []string // MultiTopic
	pattern string   // Pattern
}

// NewPartitioned targets every partition of a single partitioned topic.
func NewPartitioned(topic string) MultiConsumerType {
	return MultiConsumerType{kind: kindPartitioned, topic: topic}
}

// NewMultiTopic targets a fixed, explicit set of topics (each of which may
// itself be partitioned).
func NewMultiTopic(topics []string) MultiConsumerType {
	cp := make([]string, len(topics))
	copy(cp, topics)
	return MultiConsumerType{kind: kindMultiTopic, topics: cp}
}

// NewPattern targets every topic matching a regular-expression-style
// topic pattern, re-evaluated periodically by the pattern watcher.
func NewPattern(pattern string) MultiConsumerType {
	return MultiConsumerType{kind: kindPattern, pattern: pattern}
}

func (m MultiConsumerType) isPattern() bool     { return m.kind == kindPattern }
func (m MultiConsumerType) isPartitioned() bool { return m.kind == kindPartitioned }

// BatchReceivePolicy bounds a single BatchReceiveAsync reply.
type BatchReceivePolicy struct {
	MaxNumMessages int
	MaxNumBytes    int64
	Timeout        time.Duration
}

// SetDefaults fills zero fields with the library's defaults, following the
// same value-receiver convention as ConsumerConfig.SetDefaults in
// core/manage/managed_child.go.
func (p BatchReceivePolicy) SetDefaults() BatchReceivePolicy {
	if p.MaxNumMessages <= 0 {
		p.MaxNumMessages = 100
	}
	if p.MaxNumBytes <= 0 {
		p.MaxNumBytes = 10 * 1024 * 1024
	}
	if p.Timeout <= 0 {
		p.Timeout = 100 * time.Millisecond
	}
	return p
}

// Config holds every option the multi-topic consumer recognizes.
type Config struct {
	Name    string // consumer name; auto-generated when empty
	SubName string // subscription name
	SubType SubscriptionType

	ReceiverQueueSize                       int
	MaxTotalReceiverQueueSizeAcrossPartitions int

	AckTimeout         time.Duration
	AckTimeoutTickTime time.Duration

	BatchReceivePolicy BatchReceivePolicy

	AutoUpdatePartitions         bool
	AutoUpdatePartitionsInterval time.Duration

	PatternAutoDiscoveryPeriod time.Duration

	RetryEnable bool

	StartMessageID               *msg.MessageID
	StartMessageRollbackDuration time.Duration
}

// SetDefaults fills zero fields with appropriate defaults, matching the
// ConsumerConfig.SetDefaults pattern used throughout this module.
func (c Config) SetDefaults() Config {
	if c.SubType == 0 {
		c.SubType = Exclusive
	}
	if c.ReceiverQueueSize <= 0 {
		c.ReceiverQueueSize = 1000
	}
	if c.MaxTotalReceiverQueueSizeAcrossPartitions <= 0 {
		c.MaxTotalReceiverQueueSizeAcrossPartitions = 50000
	}
	if c.AckTimeout < 0 {
		c.AckTimeout = 0
	}
	if c.AckTimeout > 0 && c.AckTimeoutTickTime <= 0 {
		c.AckTimeoutTickTime = c.AckTimeout / 3
	}
	c.BatchReceivePolicy = c.BatchReceivePolicy.SetDefaults()
	if c.AutoUpdatePartitionsInterval <= 0 {
		c.AutoUpdatePartitionsInterval = time.Minute
	}
	if c.PatternAutoDiscoveryPeriod <= 0 {
		c.PatternAutoDiscoveryPeriod = time.Minute
	}
	return c
}

// resumeThreshold is the queue depth at or below which a withheld poller
// reply is released.
func (c Config) resumeThreshold() int {
	return c.ReceiverQueueSize / 2
}

