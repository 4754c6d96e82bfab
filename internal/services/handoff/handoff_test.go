// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handoff_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-magiclink/internal/kvstore"
	"codeberg.org/oliverandrich/go-magiclink/internal/services/handoff"
	"codeberg.org/oliverandrich/go-magiclink/internal/testutil"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBroker(t *testing.T) (*handoff.Broker, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock()
	store := testutil.NewTestStore(t, clock)
	return handoff.NewBroker(store, kvstore.NewKeyspace("test:"), 120*time.Second), clock
}

func TestStoreAndConsume(t *testing.T) {
	b, _ := newBroker(t)
	ctx := context.Background()

	id, err := b.StoreRequest(ctx, 42, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	userID, ok, err := b.ConsumeRequest(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), userID)
}

func TestConsume_Twice(t *testing.T) {
	b, _ := newBroker(t)
	ctx := context.Background()
	id, err := b.StoreRequest(ctx, 42, 0)
	require.NoError(t, err)

	_, ok, err := b.ConsumeRequest(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.ConsumeRequest(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsume_AfterTTL(t *testing.T) {
	b, clock := newBroker(t)
	ctx := context.Background()
	id, err := b.StoreRequest(ctx, 1, 5*time.Second)
	require.NoError(t, err)

	clock.Advance(6 * time.Second)

	_, ok, err := b.ConsumeRequest(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsume_WithinTTL(t *testing.T) {
	b, clock := newBroker(t)
	ctx := context.Background()
	id, err := b.StoreRequest(ctx, 1, 5*time.Second)
	require.NoError(t, err)

	clock.Advance(4 * time.Second)

	userID, ok, err := b.ConsumeRequest(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), userID)
}

func TestConsume_DefaultTTL(t *testing.T) {
	b, clock := newBroker(t)
	ctx := context.Background()
	id, err := b.StoreRequest(ctx, 1, 0)
	require.NoError(t, err)

	clock.Advance(121 * time.Second)

	_, ok, err := b.ConsumeRequest(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsume_Unknown(t *testing.T) {
	b, _ := newBroker(t)

	_, ok, err := b.ConsumeRequest(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = b.ConsumeRequest(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsume_ConcurrentSingleWinner(t *testing.T) {
	b, _ := newBroker(t)
	ctx := context.Background()
	id, err := b.StoreRequest(ctx, 7, 0)
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := b.ConsumeRequest(ctx, id)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestStoreRequest_UniqueIDs(t *testing.T) {
	b, _ := newBroker(t)
	ctx := context.Background()

	a, err := b.StoreRequest(ctx, 1, 0)
	require.NoError(t, err)
	c, err := b.StoreRequest(ctx, 1, 0)
	require.NoError(t, err)

	assert.NotEqual(t, a, c)
}

type failingStore struct {
	kvstore.Store
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("store down")
}

func TestStoreRequest_WriteRejected(t *testing.T) {
	clock := testutil.NewClock()
	b := handoff.NewBroker(failingStore{Store: testutil.NewTestStore(t, clock)}, kvstore.NewKeyspace(""), time.Minute)

	_, err := b.StoreRequest(context.Background(), 1, 0)

	assert.ErrorIs(t, err, handoff.ErrStoreWrite)
}

func TestStatus(t *testing.T) {
	b, _ := newBroker(t)
	ctx := context.Background()

	state, err := b.GetStatus(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, handoff.StatusUnknown, state.Status)

	id, err := b.StoreRequest(ctx, 1, 0)
	require.NoError(t, err)

	state, err = b.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, handoff.StatusPending, state.Status)
	assert.Empty(t, state.Token)

	require.NoError(t, b.MarkComplete(ctx, id, "access-token"))

	state, err = b.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, handoff.StatusAuthenticated, state.Status)
	assert.Equal(t, "access-token", state.Token)
}

func TestStatus_Expires(t *testing.T) {
	b, clock := newBroker(t)
	ctx := context.Background()
	id, err := b.StoreRequest(ctx, 1, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, b.MarkComplete(ctx, id, "access-token"))

	clock.Advance(6 * time.Second)

	state, err := b.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, handoff.StatusUnknown, state.Status)
}

func TestBroker_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	store := kvstore.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })
	b := handoff.NewBroker(store, kvstore.NewKeyspace("test:"), 120*time.Second)
	ctx := context.Background()

	id, err := b.StoreRequest(ctx, 9, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:qr:"+id))
	assert.True(t, mr.Exists("test:qrstatus:"+id))

	mr.FastForward(6 * time.Second)

	_, ok, err := b.ConsumeRequest(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}
