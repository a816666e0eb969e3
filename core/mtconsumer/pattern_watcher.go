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
	"strings"

	"github.com/pepper-iot/pulsar-client-go/pkg/log"
)

func (c *Core) runPatternWatcher() {
	for {
		select {
		case <-c.patternTicker.C:
			select {
			case c.mailbox <- &patternTickEvent{}:
			case <-c.watcherStop:
				return
			}
		case <-c.watcherStop:
			return
		}
	}
}

// onPatternTick re-resolves the topic pattern and reconciles the child set:
// newly matching topics are subscribed, topics that no longer match have
// their children torn down and removed.
func (c *Core) onPatternTick() {
	topics, err := c.lookup.GetTopicsMatchingPattern(context.Background(), c.kind.pattern)
	if err != nil {
		log.Warnf("mtconsumer: pattern watcher lookup failed: %v", err)
		return
	}
	newSet := make(map[string]bool, len(topics))
	for _, t := range topics {
		newSet[t] = true
	}

	for t := range newSet {
		if c.allTopics[t] {
			continue
		}
		var created []ChildConsumer
		if err := c.subscribeLogicalTopic(context.Background(), t, c.fairShareQueueSize(), &created); err != nil {
			log.Warnf("mtconsumer: pattern watcher failed to subscribe %s: %v", t, err)
			for _, ch := range created {
				_ = ch.Close(context.Background())
			}
			continue
		}
		c.allTopics[t] = true
	}

	for t := range c.allTopics {
		if newSet[t] {
			continue
		}
		c.removeTopicChildren(t)
		delete(c.allTopics, t)
		delete(c.partitionedTopics, t)
	}
}

func (c *Core) removeTopicChildren(topic string) {
	prefix := topic + "-partition-"
	for name, child := range c.children {
		if name != topic && !strings.HasPrefix(name, prefix) {
			continue
		}
		c.seq.Remove(name)
		_ = child.Close(context.Background())
		delete(c.children, name)
	}
}
