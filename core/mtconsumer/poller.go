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

import "context"

// poller is the cancellable background task that pulls from the merged
// TaskSeq and hands each message to the Core Actor as an event, awaiting
// the reply before pulling again. That await is the backpressure
// mechanism: the Core withholds the reply while the incoming queue is
// above the resume threshold.
//
// The Core owns the Poller's cancellation token (resolving the cyclic
// ownership noted in spec §9): the Poller only ever reads it.
type poller struct {
	seq     *TaskSeq
	mailbox chan<- event
	doneCh  chan struct{}
}

func newPoller(seq *TaskSeq, mailbox chan<- event) *poller {
	return &poller{seq: seq, mailbox: mailbox, doneCh: make(chan struct{})}
}

// run loops until ctx is done. It must never emit messageReceivedEvent
// after ctx is canceled.
func (p *poller) run(ctx context.Context) {
	defer close(p.doneCh)

	for {
		key, res, err := p.seq.Next(ctx)
		if err != nil {
			return // ctx canceled (Close/stopConsumer tripped our token)
		}

		reply := make(chan struct{})
		ev := &messageReceivedEvent{key: key, res: res, reply: reply}

		select {
		case p.mailbox <- ev:
		case <-ctx.Done():
			return
		}

		select {
		case <-reply:
		case <-ctx.Done():
			return
		}
	}
}

// done unblocks once run has returned.
func (p *poller) done() <-chan struct{} { return p.doneCh }
