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

// Package msg holds the wire-independent message and message-id types
// shared by the single-topic child consumer contract and the multi-topic
// consumer built on top of it.
package msg

import (
	"fmt"
	"sync/atomic"
	"time"
)

// MessageID totally orders messages within a single (topic, partition).
// It is only comparable for equality across partitions.
type MessageID struct {
	LedgerID  uint64
	EntryID   uint64
	BatchIdx  int32 // -1 when the entry isn't part of a batch
	Partition int32

	// TopicName is the CompleteTopicName (including any -partition-N
	// suffix) of the child this id was issued by. It is set by Stream
	// when a message is delivered, and is ignored by Less, which only
	// compares position within a single child's stream.
	TopicName string
}

// Earliest and Latest are sentinel ids usable as StartMessageID or as the
// target of SeekAsync(MessageID): the only two ids that aren't tied to a
// specific (ledger, entry) position.
var (
	Earliest = MessageID{LedgerID: 0, EntryID: 0, BatchIdx: -1, Partition: -1}
	Latest   = MessageID{LedgerID: ^uint64(0), EntryID: ^uint64(0), BatchIdx: -1, Partition: -1}
)

// IsEarliestOrLatest reports whether id is one of the two sentinel values,
// the only MessageIDs a multi-topic consumer is allowed to seek to
// directly (see the synchronous check behind mtconsumer's SeekAsync).
func (id MessageID) IsEarliestOrLatest() bool {
	return id == Earliest || id == Latest
}

// Less reports whether id sorts before other. Only meaningful when both
// ids originate from the same (topic, partition); callers are responsible
// for that precondition.
func (id MessageID) Less(other MessageID) bool {
	if id.LedgerID != other.LedgerID {
		return id.LedgerID < other.LedgerID
	}
	if id.EntryID != other.EntryID {
		return id.EntryID < other.EntryID
	}
	return id.BatchIdx < other.BatchIdx
}

func (id MessageID) String() string {
	return fmt.Sprintf("%s:%d:%d:%d", id.TopicName, id.LedgerID, id.EntryID, id.BatchIdx)
}

// Message is an immutable, already-decoded message handed to callers of
// ReceiveAsync/BatchReceiveAsync. Payload must not be mutated by callers.
type Message struct {
	ID          MessageID
	Topic       string // CompleteTopicName this message was received from
	Payload     []byte
	Properties  map[string]string
	PublishTime time.Time
	Key         string
}

// SeekData is a closed sum type over the two ways a seek may be requested:
// to a specific MessageID (Earliest/Latest only, for the multi-topic
// surface) or to a point in time.
type SeekData struct {
	kind      seekKind
	messageID MessageID
	timestamp time.Time
}

type seekKind int

const (
	seekKindMessageID seekKind = iota
	seekKindTimestamp
)

// SeekToMessageID builds a SeekData targeting a specific position.
func SeekToMessageID(id MessageID) SeekData {
	return SeekData{kind: seekKindMessageID, messageID: id}
}

// SeekToTimestamp builds a SeekData targeting a point in time.
func SeekToTimestamp(t time.Time) SeekData {
	return SeekData{kind: seekKindTimestamp, timestamp: t}
}

// MessageID returns the target id and true if this SeekData targets a
// MessageID, or the zero value and false otherwise.
func (s SeekData) MessageID() (MessageID, bool) {
	return s.messageID, s.kind == seekKindMessageID
}

// Timestamp returns the target time and true if this SeekData targets a
// timestamp, or the zero value and false otherwise.
func (s SeekData) Timestamp() (time.Time, bool) {
	return s.timestamp, s.kind == seekKindTimestamp
}

// MonotonicID issues strictly increasing uint64 ids, used for request and
// sequence ids that must never repeat within a connection's lifetime.
type MonotonicID struct {
	ID uint64
}

// Next atomically increments the counter and returns a pointer to the value
// it held before the increment (so the first id issued is 0).
func (m *MonotonicID) Next() *uint64 {
	id := atomic.AddUint64(&m.ID, 1) - 1
	return &id
}
