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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pepper-iot/pulsar-client-go/core/msg"
)

func TestUnackedTrackerSignalsTickWithoutMutatingItself(t *testing.T) {
	postCh := make(chan event, 1)
	tr := newUnackedTracker(30*time.Millisecond, 10*time.Millisecond, postCh)
	id := msg.MessageID{TopicName: "t", LedgerID: 1, EntryID: 1}
	tr.Add(id)
	tr.Start()
	defer tr.Stop()

	// The ticker goroutine only ever signals; it must never mutate entries
	// itself. collectExpired is the actor's job in response to the tick.
	select {
	case ev := <-postCh:
		_, ok := ev.(*ackTimeoutTickEvent)
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected ackTimeoutTickEvent before timeout")
	}
	require.Equal(t, 1, tr.Len())

	require.Equal(t, []msg.MessageID{id}, tr.collectExpired(time.Now().Add(time.Hour)))
	require.Equal(t, 0, tr.Len())
}

func TestUnackedTrackerRemoveIsIdempotent(t *testing.T) {
	tr := newUnackedTracker(time.Hour, time.Minute, make(chan event, 1))
	id := msg.MessageID{TopicName: "t", LedgerID: 1, EntryID: 1}
	tr.Add(id)
	require.Equal(t, 1, tr.Len())
	tr.Remove(id)
	require.Equal(t, 0, tr.Len())
	tr.Remove(id) // no panic, no-op
	require.Equal(t, 0, tr.Len())
}

func TestUnackedTrackerRemoveUntilIsCumulative(t *testing.T) {
	tr := newUnackedTracker(time.Hour, time.Minute, make(chan event, 1))
	ids := []msg.MessageID{
		{TopicName: "t", LedgerID: 1, EntryID: 1},
		{TopicName: "t", LedgerID: 1, EntryID: 2},
		{TopicName: "t", LedgerID: 1, EntryID: 3},
	}
	for _, id := range ids {
		tr.Add(id)
	}
	tr.RemoveUntil(ids[1])
	require.Equal(t, 1, tr.Len())
}
