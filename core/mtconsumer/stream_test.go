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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStreamNextDeliversMessage(t *testing.T) {
	child := newFakeChild("persistent://p/n/t-partition-0")
	child.deliverMessage("hello")

	s := NewStream(child)
	res := s.Next(context.Background())

	require.NoError(t, res.Err)
	require.Equal(t, "hello", string(res.Msg.Payload))
	require.Equal(t, child.Topic(), res.Msg.Topic)
	require.Equal(t, child.Topic(), res.Msg.ID.TopicName)
}

func TestStreamNextWrapsChildError(t *testing.T) {
	child := newFakeChild("t")
	boom := errors.New("boom")
	child.deliverError(boom)

	s := NewStream(child)
	res := s.Next(context.Background())

	require.Error(t, res.Err)
	var childErr *ChildError
	require.ErrorAs(t, res.Err, &childErr)
	require.Equal(t, "t", childErr.Topic)
	require.ErrorIs(t, res.Err, boom)
}

func TestStreamNextParksAtEndOfTopic(t *testing.T) {
	child := newFakeChild("t")
	child.setReachedEnd(true)

	s := NewStream(child)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := s.Next(ctx)
	require.ErrorIs(t, res.Err, context.DeadlineExceeded)
}
