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

	"github.com/pepper-iot/pulsar-client-go/core/msg"
)

// Result is the outcome of a single pull from a Stream: either a message
// or a decoded error, never both.
type Result struct {
	Msg msg.Message
	Err error
}

// Stream adapts one ChildConsumer into a lazy, restartable producer of
// Results. A failed Next does not terminate the Stream: it yields the
// error and remains callable, so the Core Actor can retry via redelivery.
type Stream struct {
	child ChildConsumer
}

// NewStream wraps child in a Stream.
func NewStream(child ChildConsumer) *Stream {
	return &Stream{child: child}
}

// Topic returns the wrapped child's CompleteTopicName.
func (s *Stream) Topic() string { return s.child.Topic() }

// Next returns the child's next message (rewritten to carry the child's
// CompleteTopicName), a decoded error, or -- if the child reports
// HasReachedEndOfTopic -- parks until ctx is done, so the merged stream
// treats the child as terminally idle instead of busy-looping.
func (s *Stream) Next(ctx context.Context) Result {
	if s.child.HasReachedEndOfTopic() {
		<-ctx.Done()
		return Result{Err: ctx.Err()}
	}

	m, err := s.child.Receive(ctx)
	if err != nil {
		return Result{Err: childErr(s.child.Topic(), err)}
	}

	m.Topic = s.child.Topic()
	m.ID.TopicName = s.child.Topic()
	return Result{Msg: m}
}
