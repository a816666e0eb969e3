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
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCloser struct {
	mu       sync.Mutex
	closed   bool
	closeErr error
}

func (f *fakeCloser) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.closeErr
}

type fakePool struct {
	mu     sync.Mutex
	closed bool
}

func (p *fakePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestClientLifecycleCloseQuiescesEveryMember(t *testing.T) {
	pool := &fakePool{}
	cl := NewClientLifecycle(pool)

	p1, p2 := &fakeCloser{}, &fakeCloser{}
	c1 := &fakeCloser{}
	require.NoError(t, cl.AddProducer(p1))
	require.NoError(t, cl.AddProducer(p2))
	require.NoError(t, cl.AddConsumer(c1))

	require.NoError(t, cl.Close(context.Background()))

	require.True(t, p1.closed)
	require.True(t, p2.closed)
	require.True(t, c1.closed)
	require.True(t, pool.closed)
	require.True(t, cl.AlreadyClosed())
}

func TestClientLifecycleCloseRevertsToActiveOnPartialFailure(t *testing.T) {
	pool := &fakePool{}
	cl := NewClientLifecycle(pool)

	ok := &fakeCloser{}
	boom := errors.New("consumer close failed")
	bad := &fakeCloser{closeErr: boom}
	require.NoError(t, cl.AddProducer(ok))
	require.NoError(t, cl.AddConsumer(bad))

	err := cl.Close(context.Background())
	require.ErrorIs(t, err, boom)
	require.False(t, cl.AlreadyClosed())
	require.False(t, pool.closed)

	// Reverted to Active: new members can still be added and a retried
	// Close can still succeed once the failing member is fixed.
	require.NoError(t, cl.AddProducer(&fakeCloser{}))
	bad.closeErr = nil
	require.NoError(t, cl.Close(context.Background()))
	require.True(t, pool.closed)
}

func TestClientLifecycleAddAfterCloseFails(t *testing.T) {
	cl := NewClientLifecycle(&fakePool{})
	require.NoError(t, cl.Close(context.Background()))

	require.ErrorIs(t, cl.AddProducer(&fakeCloser{}), ErrClientClosed)
	require.ErrorIs(t, cl.AddConsumer(&fakeCloser{}), ErrClientClosed)
}

func TestClientLifecycleRemoveProducerExcludesFromClose(t *testing.T) {
	pool := &fakePool{}
	cl := NewClientLifecycle(pool)

	p := &fakeCloser{}
	require.NoError(t, cl.AddProducer(p))
	cl.RemoveProducer(p)

	require.NoError(t, cl.Close(context.Background()))
	require.False(t, p.closed)
}
