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

func TestTaskSeqMergesTwoStreams(t *testing.T) {
	a := newFakeChild("a")
	b := newFakeChild("b")
	a.deliverMessage("a1")
	b.deliverMessage("b1")

	seq := NewTaskSeq()
	defer seq.Stop()
	seq.Add("a", NewStream(a))
	seq.Add("b", NewStream(b))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		key, res, err := seq.Next(ctx)
		cancel()
		require.NoError(t, err)
		require.NoError(t, res.Err)
		seen[key] = true
	}
	require.True(t, seen["a"])
	require.True(t, seen["b"])
}

func TestTaskSeqRemoveDropsInFlightResult(t *testing.T) {
	a := newFakeChild("a")

	seq := NewTaskSeq()
	defer seq.Stop()
	seq.Add("a", NewStream(a))

	// No message delivered yet: Next for "a" is still in flight.
	seq.Remove("a")
	a.deliverMessage("too-late")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := seq.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTaskSeqDoesNotReArmAfterError(t *testing.T) {
	a := newFakeChild("a")
	a.deliverError(errors.New("conn reset"))

	seq := NewTaskSeq()
	defer seq.Stop()
	seq.Add("a", NewStream(a))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	key, res, err := seq.Next(ctx)
	cancel()
	require.NoError(t, err)
	require.Equal(t, "a", key)
	require.Error(t, res.Err)

	// Not re-armed: a second message sitting in the child's channel should
	// not be pulled until RestartCompleted.
	a.deliverMessage("should-wait")
	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	_, _, err = seq.Next(ctx2)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	seq.RestartCompleted()
	ctx3, cancel3 := context.WithTimeout(context.Background(), time.Second)
	defer cancel3()
	_, res2, err := seq.Next(ctx3)
	require.NoError(t, err)
	require.Equal(t, "should-wait", string(res2.Msg.Payload))
}
