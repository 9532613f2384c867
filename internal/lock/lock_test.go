package lock

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"testing"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildworker/internal/config"
)

// fakeBucket mimics jetstream KV semantics.
type fakeBucket struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeBucket() *fakeBucket { return &fakeBucket{data: map[string][]byte{}} }

func (b *fakeBucket) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return v, nil
}

func (b *fakeBucket) Create(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.data[key]; ok {
		return jetstream.ErrKeyExists
	}
	b.data[key] = value
	return nil
}

func (b *fakeBucket) Purge(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

func (b *fakeBucket) Keys(context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Collect(maps.Keys(b.data)), nil
}

// fakeConsul mimics Consul KV semantics for the calls ConsulStore makes.
type fakeConsul struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeConsul() *fakeConsul { return &fakeConsul{data: map[string][]byte{}} }

func (c *fakeConsul) Get(key string, _ *consulapi.QueryOptions) (*consulapi.KVPair, *consulapi.QueryMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, &consulapi.QueryMeta{}, nil
	}
	return &consulapi.KVPair{Key: key, Value: v}, &consulapi.QueryMeta{}, nil
}

func (c *fakeConsul) CAS(p *consulapi.KVPair, _ *consulapi.WriteOptions) (bool, *consulapi.WriteMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[p.Key]; ok && p.ModifyIndex == 0 {
		return false, &consulapi.WriteMeta{}, nil
	}
	c.data[p.Key] = p.Value
	return true, &consulapi.WriteMeta{}, nil
}

func (c *fakeConsul) Delete(key string, _ *consulapi.WriteOptions) (*consulapi.WriteMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return &consulapi.WriteMeta{}, nil
}

func (c *fakeConsul) DeleteTree(prefix string, _ *consulapi.WriteOptions) (*consulapi.WriteMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
		}
	}
	return &consulapi.WriteMeta{}, nil
}

func (c *fakeConsul) Keys(prefix, _ string, _ *consulapi.QueryOptions) ([]string, *consulapi.QueryMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, &consulapi.QueryMeta{}, nil
}

func stores() map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"nats":   &NATSStore{kv: newFakeBucket()},
		"consul": &ConsulStore{kv: newFakeConsul(), prefix: "buildworker/locks"},
	}
}

func TestID(t *testing.T) {
	assert.Equal(t, "build.abc123", ID("build", "abc123"))
}

func TestReleaseClearsLock(t *testing.T) {
	for name, store := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := New(store, nil)
			id := ID("build", "svc1")

			assert.False(t, l.Exists(ctx, id))
			require.NoError(t, l.Acquire(ctx, id, []byte(`{"event_id":"e1"}`)))
			assert.True(t, l.Exists(ctx, id))

			require.NoError(t, store.Create(ctx, id+".child1", []byte("x")))
			require.NoError(t, store.Create(ctx, id+".child2", []byte("y")))
			assert.Equal(t, []string{"child1", "child2"}, l.Children(ctx, id))

			l.Release(ctx, id)
			assert.False(t, l.Exists(ctx, id))
			assert.Empty(t, l.Children(ctx, id))
		})
	}
}

func TestSecondAcquireReportsHeld(t *testing.T) {
	for name, store := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := New(store, nil)
			id := ID("build", "svc2")
			require.NoError(t, l.Acquire(ctx, id, []byte("w1")))
			assert.ErrorIs(t, l.Acquire(ctx, id, []byte("w2")), ErrHeld)
		})
	}
}

func TestConcurrentAcquireHasOneWinner(t *testing.T) {
	for name, store := range stores() {
		t.Run(name, func(t *testing.T) {
			l := New(store, nil)
			id := ID("build", "race")
			var wg sync.WaitGroup
			var mu sync.Mutex
			winners := 0
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if l.Acquire(context.Background(), id, nil) == nil {
						mu.Lock()
						winners++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, winners)
		})
	}
}

type brokenStore struct{}

var errDown = errors.New("store down")

func (brokenStore) Exists(context.Context, string) (bool, error)       { return false, errDown }
func (brokenStore) Create(context.Context, string, []byte) error       { return errDown }
func (brokenStore) Delete(context.Context, string, bool) error         { return errDown }
func (brokenStore) Children(context.Context, string) ([]string, error) { return nil, errDown }

func TestStoreErrorsFailOpen(t *testing.T) {
	ctx := context.Background()
	l := New(brokenStore{}, nil)
	assert.False(t, l.Exists(ctx, "build.x"))
	assert.Nil(t, l.Children(ctx, "build.x"))
	assert.ErrorIs(t, l.Acquire(ctx, "build.x", nil), errDown)
	l.Release(ctx, "build.x")
}

func TestNewStoreUnreachableNATS(t *testing.T) {
	_, closeStore, err := NewStore(context.Background(), config.LockConfig{
		Backend: config.LockBackendNATS,
		NATSURL: "nats://127.0.0.1:1",
		Bucket:  "locks",
	})
	require.ErrorIs(t, err, ErrUnavailable)
	require.NotNil(t, closeStore)
	assert.NoError(t, closeStore())
}

func TestUnavailableStoreNeverHoldsLocks(t *testing.T) {
	ctx := context.Background()
	l := New(Unavailable(errDown), nil)
	assert.False(t, l.Exists(ctx, "build.x"))
	err := l.Acquire(ctx, "build.x", []byte("{}"))
	require.ErrorIs(t, err, errDown)
	assert.NotErrorIs(t, err, ErrHeld)
	assert.Empty(t, l.Children(ctx, "build.x"))
}

func TestConsulPathMapping(t *testing.T) {
	s := &ConsulStore{prefix: "bw/locks"}
	assert.Equal(t, "bw/locks/build/svc", s.path("build.svc"))
}
