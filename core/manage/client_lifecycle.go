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

package manage

import (
	"context"
	"errors"
	"sync"
)

// ErrClientClosed is returned by AddProducer/AddConsumer once the owning
// client has started or finished closing.
var ErrClientClosed = errors.New("manage: client already closed")

// Closer is the minimal surface ClientLifecycle needs from a producer or
// consumer to quiesce it. ManagedChildConsumer satisfies it directly;
// mtconsumer.Consumer.DisposeAsync has the same signature under a different
// name, so a Consumer needs a small adapter to be tracked.
type Closer interface {
	Close(ctx context.Context) error
}

// ConnectionPool is the external collaborator torn down once every
// producer and consumer has closed. Consumed only by interface: the
// concrete connection pool (TCP/TLS, broker lookup) is out of scope here.
type ConnectionPool interface {
	Close() error
}

type clientState int32

const (
	clientActive clientState = iota
	clientClosing
	clientClosed
)

// ClientLifecycle tracks every producer and consumer a client has created
// and drives an orderly, all-or-nothing shutdown: Close quiesces every
// tracked member concurrently, and only tears down the connection pool once
// all of them succeed. A partial failure leaves the client Active again so
// the caller can retry.
type ClientLifecycle struct {
	mu    sync.Mutex
	state clientState

	producers map[Closer]struct{}
	consumers map[Closer]struct{}

	pool ConnectionPool
}

// NewClientLifecycle returns a ClientLifecycle that will close pool once
// every tracked producer and consumer has been quiesced.
func NewClientLifecycle(pool ConnectionPool) *ClientLifecycle {
	return &ClientLifecycle{
		producers: make(map[Closer]struct{}),
		consumers: make(map[Closer]struct{}),
		pool:      pool,
	}
}

// AddProducer registers p so Close will quiesce it. Fails once the client
// is no longer Active.
func (cl *ClientLifecycle) AddProducer(p Closer) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.state != clientActive {
		return ErrClientClosed
	}
	cl.producers[p] = struct{}{}
	return nil
}

// RemoveProducer stops tracking p, used once it has closed itself
// independently of a client-wide Close.
func (cl *ClientLifecycle) RemoveProducer(p Closer) {
	cl.mu.Lock()
	delete(cl.producers, p)
	cl.mu.Unlock()
}

// AddConsumer registers c so Close will quiesce it. Fails once the client
// is no longer Active.
func (cl *ClientLifecycle) AddConsumer(c Closer) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.state != clientActive {
		return ErrClientClosed
	}
	cl.consumers[c] = struct{}{}
	return nil
}

// RemoveConsumer stops tracking c.
func (cl *ClientLifecycle) RemoveConsumer(c Closer) {
	cl.mu.Lock()
	delete(cl.consumers, c)
	cl.mu.Unlock()
}

// AlreadyClosed reports whether the client has finished closing, the state
// every operation other than Close should check before proceeding.
func (cl *ClientLifecycle) AlreadyClosed() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.state == clientClosed
}

// Close quiesces every tracked producer and consumer concurrently, waits
// for all of them, and only then closes the connection pool. If any member
// fails to close, the client reverts to Active (so members can still be
// added/removed and a second Close attempted) and the first error
// encountered is returned.
func (cl *ClientLifecycle) Close(ctx context.Context) error {
	cl.mu.Lock()
	if cl.state == clientClosed {
		cl.mu.Unlock()
		return nil
	}
	if cl.state == clientClosing {
		cl.mu.Unlock()
		return ErrClientClosed
	}
	cl.state = clientClosing
	members := make([]Closer, 0, len(cl.producers)+len(cl.consumers))
	for p := range cl.producers {
		members = append(members, p)
	}
	for c := range cl.consumers {
		members = append(members, c)
	}
	cl.mu.Unlock()

	errs := make([]error, len(members))
	var wg sync.WaitGroup
	wg.Add(len(members))
	for i, m := range members {
		go func(i int, m Closer) {
			defer wg.Done()
			errs[i] = m.Close(ctx)
		}(i, m)
	}
	wg.Wait()

	var firstErr error
	for _, err := range errs {
		if err != nil {
			firstErr = err
			break
		}
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if firstErr != nil {
		cl.state = clientActive
		return firstErr
	}

	cl.state = clientClosed
	cl.producers = make(map[Closer]struct{})
	cl.consumers = make(map[Closer]struct{})
	return cl.pool.Close()
}
