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
	"fmt"
	"time"

	"github.com/pepper-iot/pulsar-client-go/core/msg"
	"github.com/pepper-iot/pulsar-client-go/pkg/log"
)

// Core is the single-goroutine actor that owns every piece of mutable
// multi-topic consumer state: the child table, the incoming queue, the
// unacked tracker, and the merged stream. Nothing outside run() ever
// touches these fields, so none of them need a lock (spec §9, "Actor over
// locks").
type Core struct {
	cfg     Config
	kind    MultiConsumerType
	factory ChildFactory
	lookup  BinaryLookupService

	topicName string
	name      string

	children          map[string]ChildConsumer    // CompleteTopicName -> child
	partitionedTopics map[string]ConsumerInitInfo // logical topic -> last known partition count
	allTopics         map[string]bool             // logical topics currently subscribed (MultiTopic/Pattern)

	queue   *incomingQueue
	unacked *unackedTracker
	seq     *TaskSeq

	mailbox chan event
	state   *publishedState

	withheldReply chan struct{} // the one messageReceivedEvent.reply being held for backpressure

	pollerCancel context.CancelFunc

	watcherStop     chan struct{}
	partitionTicker *time.Ticker
	patternTicker   *time.Ticker

	// closeRequested is closed once by Close/Unsubscribe; addOne refuses new
	// children after that. Init runs to completion before the event loop
	// starts, so no Close is processed while Init is running.
	closeRequested chan struct{}

	createdCh chan error
	stoppedCh chan struct{}

	cleanup func()
}

func newCore(topicName, name string, cfg Config, kind MultiConsumerType, factory ChildFactory, lookup BinaryLookupService, cleanup func()) *Core {
	c := &Core{
		cfg:               cfg,
		kind:              kind,
		factory:           factory,
		lookup:            lookup,
		topicName:         topicName,
		name:              name,
		children:          make(map[string]ChildConsumer),
		partitionedTopics: make(map[string]ConsumerInitInfo),
		allTopics:         make(map[string]bool),
		mailbox:           make(chan event, 1),
		state:             &publishedState{},
		closeRequested:    make(chan struct{}),
		createdCh:         make(chan error, 1),
		stoppedCh:         make(chan struct{}),
		cleanup:           cleanup,
	}
	c.queue = newIncomingQueue(cfg)
	c.seq = NewTaskSeq()
	c.unacked = newUnackedTracker(cfg.AckTimeout, cfg.AckTimeoutTickTime, c.mailbox)
	return c
}

func partitionName(topic string, index int) string {
	return fmt.Sprintf("%s-partition-%d", topic, index)
}

// post delivers ev to the actor and is safe to call from any goroutine.
func (c *Core) post(ev event) {
	c.mailbox <- ev
}

// run is the actor's entire lifetime: Init, then the event loop, until a
// Close or Unsubscribe event asks it to stop.
func (c *Core) run(ctx context.Context) {
	err := c.init(ctx)
	c.createdCh <- err
	if err != nil {
		close(c.stoppedCh)
		return
	}

	pollerCtx, cancel := context.WithCancel(context.Background())
	c.pollerCancel = cancel
	p := newPoller(c.seq, c.mailbox)
	go p.run(pollerCtx)

	c.unacked.Start()
	c.startWatchers()

	for {
		ev := <-c.mailbox
		if c.handle(ev) {
			close(c.stoppedCh)
			return
		}
	}
}

// waitCreated blocks until Init completes (or fails).
func (c *Core) waitCreated() error { return <-c.createdCh }

func (c *Core) addOne(ctx context.Context, completeTopic string, qsize int, created *[]ChildConsumer) error {
	select {
	case <-c.closeRequested:
		return ErrAlreadyClosed
	default:
	}
	child, err := c.factory(ctx, completeTopic, qsize)
	if err != nil {
		return err
	}
	*created = append(*created, child)
	c.children[completeTopic] = child
	c.seq.Add(completeTopic, NewStream(child))
	return nil
}

// subscribeLogicalTopic resolves one logical topic name to its partitions
// (if any) and registers a child per partition, or a single child if the
// topic isn't partitioned.
func (c *Core) subscribeLogicalTopic(ctx context.Context, topic string, qsize int, created *[]ChildConsumer) error {
	n, err := c.lookup.GetPartitionedTopicMetadata(ctx, topic)
	if err != nil {
		return err
	}
	if n == 0 {
		return c.addOne(ctx, topic, qsize, created)
	}
	for i := 0; i < n; i++ {
		if err := c.addOne(ctx, partitionName(topic, i), qsize, created); err != nil {
			return err
		}
	}
	c.partitionedTopics[topic] = ConsumerInitInfo{Topic: topic, Partitions: n}
	return nil
}

// init builds the initial child set per the MultiConsumerType. On any
// failure it disposes whatever children it already created and leaves the
// actor in stateFailed without ever reaching Ready.
func (c *Core) init(ctx context.Context) error {
	var created []ChildConsumer
	fail := func(err error) error {
		for _, ch := range created {
			_ = ch.Close(context.Background())
		}
		c.children = make(map[string]ChildConsumer)
		c.state.set(stateFailed)
		return err
	}

	switch {
	case c.kind.isPartitioned():
		if err := c.subscribeLogicalTopic(ctx, c.kind.topic, c.cfg.ReceiverQueueSize, &created); err != nil {
			return fail(err)
		}
	case c.kind.isPattern():
		topics, err := c.lookup.GetTopicsMatchingPattern(ctx, c.kind.pattern)
		if err != nil {
			return fail(err)
		}
		for _, t := range topics {
			if err := c.subscribeLogicalTopic(ctx, t, c.cfg.ReceiverQueueSize, &created); err != nil {
				return fail(err)
			}
			c.allTopics[t] = true
		}
	default: // MultiTopic
		for _, t := range c.kind.topics {
			if err := c.subscribeLogicalTopic(ctx, t, c.cfg.ReceiverQueueSize, &created); err != nil {
				return fail(err)
			}
			c.allTopics[t] = true
		}
	}

	c.state.set(stateReady)
	return nil
}

// releasePollerIfReady hands the withheld poller reply back once the queue
// has drained to at or below the resume threshold. Called after every
// dequeue path.
func (c *Core) releasePollerIfReady() {
	if c.withheldReply != nil && !c.queue.aboveResumeThreshold() {
		reply := c.withheldReply
		c.withheldReply = nil
		reply <- struct{}{}
	}
}

func closeWaiterDone(w *waiter) {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}

func closeBatchDone(b *batchWaiter) {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}

// handle processes one event and reports whether the actor should stop
// after this call (true once a Close or Unsubscribe has run, including an
// Unsubscribe that failed).
func (c *Core) handle(ev event) bool {
	switch e := ev.(type) {
	case *messageReceivedEvent:
		c.onMessageReceived(e)
	case *receiveEvent:
		c.onReceive(e)
	case *batchReceiveEvent:
		c.onBatchReceive(e)
	case *sendBatchByTimeoutEvent:
		c.onSendBatchByTimeout(e)
	case *acknowledgeEvent:
		c.onAcknowledge(e)
	case *redeliverAllEvent:
		c.onRedeliverAll(e)
	case *redeliverUnackedEvent:
		c.onRedeliverUnacked(e)
	case *redeliverTimedOutEvent:
		c.onRedeliverTimedOut(e)
	case *ackTimeoutTickEvent:
		c.onAckTimeoutTick()
	case *seekEvent:
		c.onSeek(e)
	case *partitionTickEvent:
		if c.state.get() == stateReady {
			c.onPartitionTick()
		}
	case *patternTickEvent:
		if c.state.get() == stateReady {
			c.onPatternTick()
		}
	case *hasReachedEndEvent:
		c.onHasReachedEnd(e)
	case *lastDisconnectedEvent:
		c.onLastDisconnected(e)
	case *getStatsEvent:
		c.onGetStats(e)
	case *reconsumeLaterEvent:
		c.onReconsumeLater(e)
	case *hasMessageAvailableEvent:
		c.onHasMessageAvailable(e)
	case *removeWaiterEvent:
		c.onRemoveWaiter(e)
	case *removeBatchWaiterEvent:
		c.onRemoveBatchWaiter(e)
	case *closeEvent:
		return c.onClose(e)
	case *unsubscribeEvent:
		return c.onUnsubscribe(e)
	default:
		log.Warnf("mtconsumer: unknown event %T", ev)
	}
	return false
}

func (c *Core) onMessageReceived(e *messageReceivedEvent) {
	if w, ok := c.queue.popWaiter(); ok {
		var out Result
		if c.queue.len() == 0 {
			out = e.res
		} else {
			c.queue.push(e.res)
			out, _ = c.queue.pop()
		}
		closeWaiterDone(w)
		w.reply <- out
		if out.Err == nil {
			c.unacked.Add(out.Msg.ID)
		}
	} else {
		c.queue.push(e.res)
		if len(c.queue.batchWaiters) > 0 && c.queue.hasEnoughForBatch(c.cfg.BatchReceivePolicy) {
			bw, _ := c.queue.popBatchWaiter()
			c.satisfyBatch(bw)
		}
	}

	if c.queue.aboveResumeThreshold() {
		c.withheldReply = e.reply
		return
	}
	e.reply <- struct{}{}
}

// trackBatch inserts every successfully-received result of a batch into
// the UnackedTracker, matching what onReceive/onMessageReceived already do
// for single receives: every Message handed to a caller is tracked for
// ack-timeout redelivery unless a cumulative ack intervenes.
func (c *Core) trackBatch(out []Result) {
	for _, r := range out {
		if r.Err == nil {
			c.unacked.Add(r.Msg.ID)
		}
	}
}

func (c *Core) satisfyBatch(bw *batchWaiter) {
	bw.timeoutTimer.Stop()
	out := c.queue.drainForBatch(c.cfg.BatchReceivePolicy)
	c.trackBatch(out)
	c.releasePollerIfReady()
	closeBatchDone(bw)
	bw.reply <- batchResult{items: out}
}

func (c *Core) watchCancelForReceive(ctx context.Context, w *waiter) {
	select {
	case <-ctx.Done():
		select {
		case c.mailbox <- &removeWaiterEvent{w: w}:
		case <-w.done:
		}
	case <-w.done:
	}
}

func (c *Core) onReceive(e *receiveEvent) {
	if e.ctx.Err() != nil {
		e.reply <- Result{Err: ErrOperationCanceled}
		return
	}
	if r, ok := c.queue.pop(); ok {
		c.releasePollerIfReady()
		e.reply <- r
		if r.Err == nil {
			c.unacked.Add(r.Msg.ID)
		}
		return
	}
	w := &waiter{reply: e.reply, done: make(chan struct{})}
	c.queue.pushWaiter(w)
	go c.watchCancelForReceive(e.ctx, w)
}

func (c *Core) onRemoveWaiter(e *removeWaiterEvent) {
	c.queue.removeWaiter(e.w)
	closeWaiterDone(e.w)
	select {
	case e.w.reply <- Result{Err: ErrOperationCanceled}:
	default:
	}
}

func (c *Core) watchCancelForBatch(ctx context.Context, bw *batchWaiter) {
	select {
	case <-ctx.Done():
		select {
		case c.mailbox <- &removeBatchWaiterEvent{w: bw}:
		case <-bw.done:
		}
	case <-bw.done:
	}
}

func (c *Core) onBatchReceive(e *batchReceiveEvent) {
	if e.ctx.Err() != nil {
		e.reply <- batchResult{err: ErrOperationCanceled}
		return
	}
	if len(c.queue.batchWaiters) == 0 && c.queue.hasEnoughForBatch(c.cfg.BatchReceivePolicy) {
		out := c.queue.drainForBatch(c.cfg.BatchReceivePolicy)
		c.trackBatch(out)
		c.releasePollerIfReady()
		e.reply <- batchResult{items: out}
		return
	}
	bw := &batchWaiter{reply: e.reply, done: make(chan struct{})}
	bw.timeoutTimer = time.AfterFunc(c.cfg.BatchReceivePolicy.Timeout, func() {
		select {
		case c.mailbox <- &sendBatchByTimeoutEvent{w: bw}:
		case <-bw.done:
		}
	})
	c.queue.pushBatchWaiter(bw)
	go c.watchCancelForBatch(e.ctx, bw)
}

func (c *Core) onSendBatchByTimeout(e *sendBatchByTimeoutEvent) {
	if e.w.canceled {
		return
	}
	select {
	case <-e.w.done:
		return // already satisfied before the timer's event was handled
	default:
	}
	c.queue.removeBatchWaiter(e.w)
	out := c.queue.drainForBatch(c.cfg.BatchReceivePolicy)
	c.trackBatch(out)
	c.releasePollerIfReady()
	closeBatchDone(e.w)
	e.w.reply <- batchResult{items: out}
}

func (c *Core) onRemoveBatchWaiter(e *removeBatchWaiterEvent) {
	e.w.canceled = true
	e.w.timeoutTimer.Stop()
	c.queue.removeBatchWaiter(e.w)
	closeBatchDone(e.w)
	select {
	case e.w.reply <- batchResult{err: ErrOperationCanceled}:
	default:
	}
}

func (c *Core) onAcknowledge(e *acknowledgeEvent) {
	child, ok := c.children[e.id.TopicName]
	if !ok {
		e.reply <- childErr(e.id.TopicName, fmt.Errorf("no such child topic: %s", e.id.TopicName))
		return
	}
	var err error
	switch e.kind {
	case ackSingle:
		err = child.Ack(context.Background(), e.id)
		if err == nil {
			c.unacked.Remove(e.id)
		}
	case ackCumulative:
		err = child.AckCumulative(context.Background(), e.id)
		if err == nil {
			c.unacked.RemoveUntil(e.id)
		}
	case ackNegative:
		child.Nack(e.id)
		c.unacked.Remove(e.id)
	}
	if err != nil {
		e.reply <- childErr(e.id.TopicName, err)
		return
	}
	e.reply <- nil
}

func (c *Core) onRedeliverAll(e *redeliverAllEvent) {
	if c.state.get() != stateReady {
		e.reply <- nil
		return
	}
	var firstErr error
	for topic, child := range c.children {
		if err := child.RedeliverAll(context.Background()); err != nil && firstErr == nil {
			firstErr = childErr(topic, err)
		}
	}
	c.queue.clear()
	c.unacked.Clear()
	c.seq.RestartCompleted()
	c.releasePollerIfReady()
	e.reply <- firstErr
}

func (c *Core) onRedeliverUnacked(e *redeliverUnackedEvent) {
	if c.cfg.SubType != Shared && c.cfg.SubType != KeyShared {
		c.onRedeliverAll(&redeliverAllEvent{reply: e.reply})
		return
	}
	byTopic := make(map[string][]msg.MessageID)
	for _, id := range e.ids {
		byTopic[id.TopicName] = append(byTopic[id.TopicName], id)
	}
	var firstErr error
	for topic, ids := range byTopic {
		child, ok := c.children[topic]
		if !ok {
			continue
		}
		if err := child.RedeliverUnacknowledged(context.Background(), ids); err != nil && firstErr == nil {
			firstErr = childErr(topic, err)
		}
		for _, id := range ids {
			c.unacked.Remove(id)
		}
	}
	e.reply <- firstErr
}

func (c *Core) onRedeliverTimedOut(e *redeliverTimedOutEvent) {
	byTopic := make(map[string][]msg.MessageID)
	for _, id := range e.ids {
		byTopic[id.TopicName] = append(byTopic[id.TopicName], id)
	}
	for topic, ids := range byTopic {
		child, ok := c.children[topic]
		if !ok {
			continue
		}
		if err := child.RedeliverUnacknowledged(context.Background(), ids); err != nil {
			log.Warnf("mtconsumer: ack-timeout redeliver failed for %s: %v", topic, err)
		}
	}
}

// onAckTimeoutTick runs collectExpired on the actor goroutine in response
// to the tracker's ticker, then redelivers whatever it finds exactly like
// a direct redeliverTimedOutEvent would.
func (c *Core) onAckTimeoutTick() {
	expired := c.unacked.collectExpired(time.Now())
	if len(expired) == 0 {
		return
	}
	c.onRedeliverTimedOut(&redeliverTimedOutEvent{ids: expired})
}

func (c *Core) onSeek(e *seekEvent) {
	if e.resolver == nil {
		if id, ok := e.seek.MessageID(); ok && !id.IsEarliestOrLatest() {
			e.reply <- ErrIllegalMessageID
			return
		}
	}
	var firstErr error
	for topic, child := range c.children {
		sd := e.seek
		if e.resolver != nil {
			sd = e.resolver(topic)
		}
		if err := child.Seek(context.Background(), sd); err != nil && firstErr == nil {
			firstErr = childErr(topic, err)
		}
	}
	c.queue.clear()
	c.unacked.Clear()
	c.releasePollerIfReady()
	e.reply <- firstErr
}

func (c *Core) onHasReachedEnd(e *hasReachedEndEvent) {
	if len(c.children) == 0 {
		e.reply <- false
		return
	}
	all := true
	for _, child := range c.children {
		if !child.HasReachedEndOfTopic() {
			all = false
			break
		}
	}
	e.reply <- all
}

func (c *Core) onLastDisconnected(e *lastDisconnectedEvent) {
	var latest time.Time
	for _, child := range c.children {
		if t := child.LastDisconnectedTimestamp(); t.After(latest) {
			latest = t
		}
	}
	e.reply <- latest
}

func (c *Core) onGetStats(e *getStatsEvent) {
	all := make([]ConsumerStats, 0, len(c.children))
	for _, child := range c.children {
		all = append(all, child.Stats())
	}
	e.reply <- reduceStats(all)
}

func (c *Core) onReconsumeLater(e *reconsumeLaterEvent) {
	if !c.cfg.RetryEnable {
		e.reply <- ErrRetryDisabled
		return
	}
	for _, id := range e.ids {
		child, ok := c.children[id.TopicName]
		if !ok {
			e.reply <- childErr(id.TopicName, fmt.Errorf("no such child topic: %s", id.TopicName))
			return
		}
		var err error
		if e.cumulative {
			err = child.AckCumulative(context.Background(), id)
			if err == nil {
				c.unacked.RemoveUntil(id)
			}
		} else {
			err = child.Ack(context.Background(), id)
			if err == nil {
				c.unacked.Remove(id)
			}
		}
		if err != nil {
			e.reply <- childErr(id.TopicName, err)
			return
		}
	}
	e.reply <- nil
}

func (c *Core) onHasMessageAvailable(e *hasMessageAvailableEvent) {
	if c.queue.len() > 0 {
		e.reply <- true
		return
	}
	for _, child := range c.children {
		if !child.HasReachedEndOfTopic() {
			e.reply <- true
			return
		}
	}
	e.reply <- false
}

func (c *Core) onClose(e *closeEvent) bool {
	st := c.state.get()
	if st == stateClosing || st == stateClosed {
		e.reply <- nil
		return st == stateClosed
	}
	close(c.closeRequested)
	c.state.set(stateClosing)
	for _, child := range c.children {
		_ = child.Close(context.Background())
	}
	c.state.set(stateClosed)
	c.stopConsumer()
	e.reply <- nil
	return true
}

func (c *Core) onUnsubscribe(e *unsubscribeEvent) bool {
	st := c.state.get()
	if st == stateClosing || st == stateClosed {
		e.reply <- nil
		return st == stateClosed
	}
	close(c.closeRequested)
	c.state.set(stateClosing)
	var firstErr error
	for topic, child := range c.children {
		if err := child.Unsubscribe(context.Background()); err != nil && firstErr == nil {
			firstErr = childErr(topic, err)
		}
	}
	if firstErr != nil {
		c.state.set(stateFailed)
	} else {
		c.state.set(stateClosed)
	}
	c.stopConsumer()
	e.reply <- firstErr
	return true
}

// stopConsumer tears down every background goroutine and fails out any
// caller still parked on the queue. Called exactly once, from Close or
// Unsubscribe (whether or not the Unsubscribe succeeded).
func (c *Core) stopConsumer() {
	if c.pollerCancel != nil {
		c.pollerCancel()
	}
	c.stopWatchers()
	c.unacked.Stop()
	c.seq.Stop()

	for _, w := range c.queue.waiters {
		closeWaiterDone(w)
		select {
		case w.reply <- Result{Err: ErrAlreadyClosed}:
		default:
		}
	}
	c.queue.waiters = nil

	for _, bw := range c.queue.batchWaiters {
		bw.timeoutTimer.Stop()
		closeBatchDone(bw)
		select {
		case bw.reply <- batchResult{err: ErrAlreadyClosed}:
		default:
		}
	}
	c.queue.batchWaiters = nil

	c.withheldReply = nil

	if c.cleanup != nil {
		c.cleanup()
	}
}
