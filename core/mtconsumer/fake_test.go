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
	"sync"
	"time"

	"github.com/pepper-iot/pulsar-client-go/core/msg"
)

// fakeChild is a hand-written ChildConsumer used across this package's
// tests, in the teacher's plain-testing style (no mocking framework).
type fakeChild struct {
	topic string
	in    chan Result

	mu                sync.Mutex
	reachedEnd        bool
	acked             []msg.MessageID
	ackedCumulative   []msg.MessageID
	nacked            []msg.MessageID
	redeliverAllCalls int
	redeliverUnacked  [][]msg.MessageID
	seeks             []msg.SeekData
	stats             ConsumerStats
	lastDisconnected  time.Time
	closed            bool
	unsubscribed      bool
	doneCh            chan struct{}
}

func newFakeChild(topic string) *fakeChild {
	return &fakeChild{
		topic:  topic,
		in:     make(chan Result, 8),
		doneCh: make(chan struct{}),
	}
}

func (f *fakeChild) Topic() string { return f.topic }

func (f *fakeChild) deliverMessage(payload string) {
	f.in <- Result{Msg: msg.Message{ID: msg.MessageID{TopicName: f.topic}, Topic: f.topic, Payload: []byte(payload)}}
}

func (f *fakeChild) deliverError(err error) {
	f.in <- Result{Err: err}
}

func (f *fakeChild) Receive(ctx context.Context) (msg.Message, error) {
	select {
	case r := <-f.in:
		return r.Msg, r.Err
	case <-ctx.Done():
		return msg.Message{}, ctx.Err()
	}
}

func (f *fakeChild) Ack(ctx context.Context, id msg.MessageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, id)
	return nil
}

func (f *fakeChild) AckCumulative(ctx context.Context, id msg.MessageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ackedCumulative = append(f.ackedCumulative, id)
	return nil
}

func (f *fakeChild) Nack(id msg.MessageID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = append(f.nacked, id)
}

func (f *fakeChild) RedeliverAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redeliverAllCalls++
	return nil
}

func (f *fakeChild) RedeliverUnacknowledged(ctx context.Context, ids []msg.MessageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redeliverUnacked = append(f.redeliverUnacked, ids)
	return nil
}

func (f *fakeChild) Seek(ctx context.Context, seek msg.SeekData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, seek)
	return nil
}

func (f *fakeChild) Stats() ConsumerStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeChild) HasReachedEndOfTopic() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reachedEnd
}

func (f *fakeChild) setReachedEnd(v bool) {
	f.mu.Lock()
	f.reachedEnd = v
	f.mu.Unlock()
}

func (f *fakeChild) LastDisconnectedTimestamp() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastDisconnected
}

func (f *fakeChild) Unsubscribe(ctx context.Context) error {
	f.mu.Lock()
	f.unsubscribed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeChild) Close(ctx context.Context) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeChild) Done() <-chan struct{} { return f.doneCh }

// fakeLookup is a hand-written BinaryLookupService fake.
type fakeLookup struct {
	mu         sync.Mutex
	partitions map[string]int
	patterns   map[string][]string
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{partitions: make(map[string]int), patterns: make(map[string][]string)}
}

func (l *fakeLookup) GetPartitionsForTopic(ctx context.Context, topic string) ([]string, error) {
	return nil, nil
}

func (l *fakeLookup) GetPartitionedTopicMetadata(ctx context.Context, topic string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.partitions[topic], nil
}

func (l *fakeLookup) GetTopicsMatchingPattern(ctx context.Context, pattern string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.patterns[pattern]...), nil
}

func (l *fakeLookup) GetServiceURL() string { return "fake://localhost" }

func (l *fakeLookup) setPartitions(topic string, n int) {
	l.mu.Lock()
	l.partitions[topic] = n
	l.mu.Unlock()
}

func (l *fakeLookup) setPatternMatches(pattern string, topics []string) {
	l.mu.Lock()
	l.patterns[pattern] = topics
	l.mu.Unlock()
}
