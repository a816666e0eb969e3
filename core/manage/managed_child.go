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

// Package manage supplies the reconnect-aware ChildConsumer implementation
// the multi-topic consumer drives, and the ClientLifecycle that owns the
// shutdown sequence for every producer and consumer a client has created.
package manage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pepper-iot/pulsar-client-go/core/msg"
	"github.com/pepper-iot/pulsar-client-go/core/mtconsumer"
	"github.com/pepper-iot/pulsar-client-go/pkg/log"
	"github.com/pepper-iot/pulsar-client-go/utils"
)

// SubscriptionMode represents Pulsar's three subscription models.
type SubscriptionMode int

const (
	// SubscriptionModeExclusive: only one consumer can be bound to a
	// subscription. A second subscriber receives an error.
	SubscriptionModeExclusive SubscriptionMode = iota + 1
	// SubscriptionModeShard: multiple consumers share a subscription,
	// round-robin dispatched; unacked messages on disconnect go to a
	// surviving consumer.
	SubscriptionModeShard
	// SubscriptionModeFailover: multiple consumers are bound, lexically
	// ordered; only the first (the master) receives messages until it
	// disconnects.
	SubscriptionModeFailover
)

// ErrorInvalidSubMode is returned when ConsumerConfig.SubMode isn't one of
// the three known modes.
var ErrorInvalidSubMode = errors.New("invalid subscription mode")

// ConsumerConfig configures a ManagedChildConsumer.
type ConsumerConfig struct {
	Topic   string
	Name    string // subscription name
	SubMode SubscriptionMode
	Earliest bool // if true, subscription cursor starts at the beginning

	NewConsumerTimeout    time.Duration // maximum duration to create the underlying consumer
	InitialReconnectDelay time.Duration
	MaxReconnectDelay     time.Duration

	Errs chan<- error
}

// SetDefaults returns a copy of m with zero fields set to their defaults,
// the same value-receiver convention used throughout this module.
func (m ConsumerConfig) SetDefaults() ConsumerConfig {
	if m.NewConsumerTimeout <= 0 {
		m.NewConsumerTimeout = 5 * time.Second
	}
	if m.InitialReconnectDelay <= 0 {
		m.InitialReconnectDelay = 1 * time.Second
	}
	if m.MaxReconnectDelay <= 0 {
		m.MaxReconnectDelay = 5 * time.Minute
	}
	return m
}

// SingleTopicConsumer is the wire-level, single-topic consumer a
// ManagedChildConsumer reconnects around. Its concrete implementation
// (connection handling, flow control, broker lookup) is out of scope here;
// it is consumed only by interface, mirroring how ChildConsumer itself is
// consumed by the multi-topic consumer.
type SingleTopicConsumer interface {
	ConsumerID() uint64

	Receive(ctx context.Context) (msg.Message, error)
	Ack(ctx context.Context, id msg.MessageID) error
	AckCumulative(ctx context.Context, id msg.MessageID) error
	Nack(id msg.MessageID)

	RedeliverAll(ctx context.Context) error
	RedeliverUnacknowledged(ctx context.Context, ids []msg.MessageID) error
	Seek(ctx context.Context, seek msg.SeekData) error

	Stats() mtconsumer.ConsumerStats
	HasReachedEndOfTopic() bool

	Unsubscribe(ctx context.Context) error
	Close(ctx context.Context) error

	// Closed unblocks if the broker or peer ends the subscription.
	Closed() <-chan struct{}
	// ConnClosed unblocks if the underlying connection drops.
	ConnClosed() <-chan struct{}
}

// SingleTopicConsumerFactory creates a SingleTopicConsumer for topic,
// performing whatever lookup and connection setup it needs.
type SingleTopicConsumerFactory func(ctx context.Context, cfg ConsumerConfig) (SingleTopicConsumer, error)

// NewManagedChildConsumer returns a ManagedChildConsumer that creates and
// recreates its underlying SingleTopicConsumer on a background goroutine,
// satisfying mtconsumer.ChildConsumer.
func NewManagedChildConsumer(factory SingleTopicConsumerFactory, cfg ConsumerConfig) *ManagedChildConsumer {
	cfg = cfg.SetDefaults()

	m := &ManagedChildConsumer{
		factory:        factory,
		cfg:            cfg,
		asyncErrs:      utils.AsyncErrors(cfg.Errs),
		waitc:          make(chan struct{}),
		stopManageChan: make(chan struct{}),
		doneChan:       make(chan struct{}),
	}

	go m.manage()

	return m
}

// ManagedChildConsumer wraps a SingleTopicConsumer with reconnect logic,
// presenting the stable mtconsumer.ChildConsumer surface the multi-topic
// consumer depends on regardless of how many times the underlying
// connection has been torn down and rebuilt.
type ManagedChildConsumer struct {
	factory   SingleTopicConsumerFactory
	cfg       ConsumerConfig
	asyncErrs utils.AsyncErrors

	mu             sync.RWMutex  // protects consumer/waitc below
	consumer       SingleTopicConsumer
	waitc          chan struct{} // closed, and replaced by nil, once consumer is set
	stopManageChan chan struct{}
	doneChan       chan struct{}

	lastDisconnected atomic.Value // time.Time
}

func (m *ManagedChildConsumer) Topic() string { return m.cfg.Topic }

// current blocks until a consumer is available, or ctx is done.
func (m *ManagedChildConsumer) current(ctx context.Context) (SingleTopicConsumer, error) {
	for {
		m.mu.RLock()
		consumer := m.consumer
		wait := m.waitc
		m.mu.RUnlock()

		if consumer != nil {
			return consumer, nil
		}

		select {
		case <-wait:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *ManagedChildConsumer) Receive(ctx context.Context) (msg.Message, error) {
	c, err := m.current(ctx)
	if err != nil {
		return msg.Message{}, err
	}
	return c.Receive(ctx)
}

func (m *ManagedChildConsumer) Ack(ctx context.Context, id msg.MessageID) error {
	c, err := m.current(ctx)
	if err != nil {
		return err
	}
	return c.Ack(ctx, id)
}

func (m *ManagedChildConsumer) AckCumulative(ctx context.Context, id msg.MessageID) error {
	c, err := m.current(ctx)
	if err != nil {
		return err
	}
	return c.AckCumulative(ctx, id)
}

func (m *ManagedChildConsumer) Nack(id msg.MessageID) {
	m.mu.RLock()
	consumer := m.consumer
	m.mu.RUnlock()
	if consumer != nil {
		consumer.Nack(id)
	}
}

func (m *ManagedChildConsumer) RedeliverAll(ctx context.Context) error {
	c, err := m.current(ctx)
	if err != nil {
		return err
	}
	return c.RedeliverAll(ctx)
}

func (m *ManagedChildConsumer) RedeliverUnacknowledged(ctx context.Context, ids []msg.MessageID) error {
	c, err := m.current(ctx)
	if err != nil {
		return err
	}
	return c.RedeliverUnacknowledged(ctx, ids)
}

func (m *ManagedChildConsumer) Seek(ctx context.Context, seek msg.SeekData) error {
	c, err := m.current(ctx)
	if err != nil {
		return err
	}
	return c.Seek(ctx, seek)
}

func (m *ManagedChildConsumer) Stats() mtconsumer.ConsumerStats {
	m.mu.RLock()
	consumer := m.consumer
	m.mu.RUnlock()
	if consumer == nil {
		return mtconsumer.ConsumerStats{}
	}
	return consumer.Stats()
}

func (m *ManagedChildConsumer) HasReachedEndOfTopic() bool {
	m.mu.RLock()
	consumer := m.consumer
	m.mu.RUnlock()
	return consumer != nil && consumer.HasReachedEndOfTopic()
}

func (m *ManagedChildConsumer) LastDisconnectedTimestamp() time.Time {
	t, _ := m.lastDisconnected.Load().(time.Time)
	return t
}

func (m *ManagedChildConsumer) Unsubscribe(ctx context.Context) error {
	c, err := m.current(ctx)
	if err != nil {
		return err
	}
	return c.Unsubscribe(ctx)
}

// Close stops reconnect management and closes the current consumer.
func (m *ManagedChildConsumer) Close(ctx context.Context) error {
	c, err := m.current(ctx)
	if err != nil {
		return err
	}
	select {
	case <-m.stopManageChan:
	default:
		close(m.stopManageChan)
	}
	return c.Close(ctx)
}

// Done unblocks once Close has ended the reconnect loop. A broker-initiated
// close or a dropped connection is followed by a reconnect and does not
// unblock it.
func (m *ManagedChildConsumer) Done() <-chan struct{} { return m.doneChan }

// set unblocks the wait channel (if any) and installs consumer under lock.
func (m *ManagedChildConsumer) set(c SingleTopicConsumer) {
	m.mu.Lock()
	m.consumer = c
	if m.waitc != nil {
		close(m.waitc)
		m.waitc = nil
	}
	m.mu.Unlock()
}

// unset records a disconnect timestamp and clears the current consumer.
func (m *ManagedChildConsumer) unset() {
	m.mu.Lock()
	if m.waitc == nil {
		m.waitc = make(chan struct{})
	}
	m.consumer = nil
	m.mu.Unlock()
	m.lastDisconnected.Store(time.Now())
}

// newConsumer attempts to create a SingleTopicConsumer, failing fast on an
// unrecognized subscription mode rather than leaving it to the factory.
func (m *ManagedChildConsumer) newConsumer(ctx context.Context) (SingleTopicConsumer, error) {
	switch m.cfg.SubMode {
	case SubscriptionModeExclusive, SubscriptionModeFailover, SubscriptionModeShard:
		return m.factory(ctx, m.cfg)
	default:
		return nil, ErrorInvalidSubMode
	}
}

// reconnect blocks, retrying with exponential backoff, until a new
// SingleTopicConsumer is created.
func (m *ManagedChildConsumer) reconnect(initial bool) SingleTopicConsumer {
	retryDelay := m.cfg.InitialReconnectDelay

	for attempt := 1; ; attempt++ {
		if initial {
			initial = false
		} else {
			<-time.After(retryDelay)
			if retryDelay < m.cfg.MaxReconnectDelay {
				if retryDelay *= 2; retryDelay > m.cfg.MaxReconnectDelay {
					retryDelay = m.cfg.MaxReconnectDelay
				}
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.NewConsumerTimeout)
		c, err := m.newConsumer(ctx)
		cancel()
		if err != nil {
			m.asyncErrs.Send(err)
			log.Warnf("mtconsumer: reconnect attempt %d failed for %s: %v", attempt, m.cfg.Topic, err)
			continue
		}
		return c
	}
}

// manage owns the reconnect loop for the lifetime of this child.
func (m *ManagedChildConsumer) manage() {
	defer close(m.doneChan)
	defer m.unset()

	consumer := m.reconnect(true)
	m.set(consumer)

	for {
		select {
		case <-consumer.Closed():
		case <-consumer.ConnClosed():
		case <-m.stopManageChan:
			return
		}

		m.unset()
		consumer = m.reconnect(false)
		m.set(consumer)
	}
}
