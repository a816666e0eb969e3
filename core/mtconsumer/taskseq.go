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

// taggedResult pairs a Stream's key with the Result it produced.
type taggedResult struct {
	key string
	res Result
}

type addCmd struct {
	key    string
	stream *Stream
}

type removeCmd struct {
	key  string
	done chan struct{}
}

type nextReq struct {
	ctx   context.Context
	reply chan taggedResult
}

// TaskSeq is a fair merge over a dynamic set of Streams. It keeps at most
// one outstanding Next() per Stream; only the Poller is expected to call
// Next, matching the single-consumer contract in spec §4.2.
//
// It runs its own single goroutine so Add/Remove/RestartCompleted (called
// from the Core Actor) and Next (called from the Poller) never need a
// lock: every operation is just another message into that goroutine.
type TaskSeq struct {
	addCh     chan addCmd
	removeCh  chan removeCmd
	restartCh chan struct{}
	nextCh    chan nextReq
	resultCh  chan taggedResult
	stopCh    chan struct{}
}

type tsEntry struct {
	stream *Stream
	cancel context.CancelFunc
	armed  bool
}

// NewTaskSeq starts the merge goroutine and returns a ready-to-use TaskSeq.
func NewTaskSeq() *TaskSeq {
	ts := &TaskSeq{
		addCh:     make(chan addCmd),
		removeCh:  make(chan removeCmd),
		restartCh: make(chan struct{}),
		nextCh:    make(chan nextReq),
		resultCh:  make(chan taggedResult),
		stopCh:    make(chan struct{}),
	}
	go ts.run()
	return ts
}

// Add introduces a new Stream and immediately starts its outstanding Next.
func (ts *TaskSeq) Add(key string, s *Stream) {
	select {
	case ts.addCh <- addCmd{key: key, stream: s}:
	case <-ts.stopCh:
	}
}

// Remove detaches a Stream. Any in-flight Next for it is canceled and its
// result, if already produced, is dropped rather than delivered.
func (ts *TaskSeq) Remove(key string) {
	done := make(chan struct{})
	select {
	case ts.removeCh <- removeCmd{key: key, done: done}:
		<-done
	case <-ts.stopCh:
	}
}

// RestartCompleted re-arms every Stream that currently has no outstanding
// Next (ie, one whose last Next returned an error and was left un-armed to
// avoid a busy retry loop). Used after global redelivery.
func (ts *TaskSeq) RestartCompleted() {
	select {
	case ts.restartCh <- struct{}{}:
	case <-ts.stopCh:
	}
}

// Next blocks until some Stream produces a Result, or ctx is done.
func (ts *TaskSeq) Next(ctx context.Context) (string, Result, error) {
	reply := make(chan taggedResult, 1)
	select {
	case ts.nextCh <- nextReq{ctx: ctx, reply: reply}:
	case <-ctx.Done():
		return "", Result{}, ctx.Err()
	case <-ts.stopCh:
		return "", Result{}, context.Canceled
	}

	select {
	case tr := <-reply:
		return tr.key, tr.res, nil
	case <-ctx.Done():
		return "", Result{}, ctx.Err()
	}
}

// Stop releases the merge goroutine and cancels every outstanding Next.
func (ts *TaskSeq) Stop() {
	close(ts.stopCh)
}

func (ts *TaskSeq) run() {
	entries := make(map[string]*tsEntry)
	var pending []taggedResult
	var waiting *nextReq

	arm := func(key string, e *tsEntry) {
		ctx, cancel := context.WithCancel(context.Background())
		e.cancel = cancel
		e.armed = true
		stream := e.stream
		go func() {
			res := stream.Next(ctx)
			select {
			case ts.resultCh <- taggedResult{key: key, res: res}:
			case <-ctx.Done():
				// Removed or stopped before delivery: never deliver.
			case <-ts.stopCh:
			}
		}()
	}

	deliver := func() {
		for waiting != nil && len(pending) > 0 {
			if waiting.ctx.Err() != nil {
				waiting = nil
				continue
			}
			tr := pending[0]
			pending = pending[1:]
			waiting.reply <- tr
			waiting = nil
		}
	}

	for {
		select {
		case cmd := <-ts.addCh:
			e := &tsEntry{stream: cmd.stream}
			entries[cmd.key] = e
			arm(cmd.key, e)
			deliver()

		case cmd := <-ts.removeCh:
			if e, ok := entries[cmd.key]; ok {
				e.cancel()
				delete(entries, cmd.key)
			}
			filtered := pending[:0]
			for _, tr := range pending {
				if tr.key != cmd.key {
					filtered = append(filtered, tr)
				}
			}
			pending = filtered
			close(cmd.done)

		case <-ts.restartCh:
			for key, e := range entries {
				if !e.armed {
					arm(key, e)
				}
			}
			deliver()

		case req := <-ts.nextCh:
			waiting = &req
			deliver()

		case tr := <-ts.resultCh:
			e, ok := entries[tr.key]
			if !ok {
				continue // removed since this Next was armed
			}
			e.armed = false
			if tr.res.Err == nil {
				arm(tr.key, e)
			}
			pending = append(pending, tr)
			deliver()

		case <-ts.stopCh:
			for _, e := range entries {
				e.cancel()
			}
			return
		}
	}
}
