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

	"github.com/pepper-iot/pulsar-client-go/pkg/log"
)

// startWatchers launches the background tickers that post partitionTickEvent
// and patternTickEvent into the mailbox. Only the tickers a consumer's
// configuration actually calls for are started.
func (c *Core) startWatchers() {
	c.watcherStop = make(chan struct{})
	if c.cfg.AutoUpdatePartitions && len(c.partitionedTopics) > 0 {
		c.partitionTicker = time.NewTicker(c.cfg.AutoUpdatePartitionsInterval)
		go c.runPartitionWatcher()
	}
	if c.kind.isPattern() {
		c.patternTicker = time.NewTicker(c.cfg.PatternAutoDiscoveryPeriod)
		go c.runPatternWatcher()
	}
}

func (c *Core) stopWatchers() {
	if c.watcherStop != nil {
		close(c.watcherStop)
	}
	if c.partitionTicker != nil {
		c.partitionTicker.Stop()
	}
	if c.patternTicker != nil {
		c.patternTicker.Stop()
	}
}

func (c *Core) runPartitionWatcher() {
	for {
		select {
		case <-c.partitionTicker.C:
			select {
			case c.mailbox <- &partitionTickEvent{}:
			case <-c.watcherStop:
				return
			}
		case <-c.watcherStop:
			return
		}
	}
}

// onPartitionTick compares each known partitioned topic's current partition
// count against what broker lookup now reports. Growth adds children at a
// fair share of the receiver queue budget; a reported shrink is refused and
// logged (spec: partition-count shrinking is a non-goal).
func (c *Core) onPartitionTick() {
	for topic, info := range c.partitionedTopics {
		n, err := c.lookup.GetPartitionedTopicMetadata(context.Background(), topic)
		if err != nil {
			log.Warnf("mtconsumer: partition watcher lookup failed for %s: %v", topic, err)
			continue
		}
		if n <= info.Partitions {
			if n < info.Partitions {
				log.Warnf("mtconsumer: topic %s reports fewer partitions (%d) than known (%d), refusing to shrink", topic, n, info.Partitions)
			}
			continue
		}

		qsize := c.fairShareQueueSize()

		var created []ChildConsumer
		var failErr error
		for i := info.Partitions; i < n; i++ {
			name := partitionName(topic, i)
			child, err := c.factory(context.Background(), name, qsize)
			if err != nil {
				failErr = err
				break
			}
			created = append(created, child)
		}
		if failErr != nil {
			log.Warnf("mtconsumer: partition watcher failed to grow %s: %v", topic, failErr)
			for _, ch := range created {
				_ = ch.Close(context.Background())
			}
			continue
		}

		for i, ch := range created {
			name := partitionName(topic, info.Partitions+i)
			c.children[name] = ch
			c.seq.Add(name, NewStream(ch))
		}
		c.partitionedTopics[topic] = ConsumerInitInfo{Topic: topic, Partitions: n}
	}
}

// fairShareQueueSize is the per-child receiver queue size the watchers use
// when growing the child set, bounded by MaxTotalReceiverQueueSizeAcrossPartitions.
func (c *Core) fairShareQueueSize() int {
	qsize := c.cfg.ReceiverQueueSize
	total := len(c.children) + 1
	if share := c.cfg.MaxTotalReceiverQueueSizeAcrossPartitions / total; share > 0 && share < qsize {
		qsize = share
	}
	return qsize
}
