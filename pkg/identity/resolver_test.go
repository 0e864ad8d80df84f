package identity

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symmetricalboy/bsky-to-gem/pkg/errors"
	"github.com/symmetricalboy/bsky-to-gem/pkg/logger"
)

type fakeHandleResolver struct {
	dids  map[string]string
	err   error
	calls []string
}

func (f *fakeHandleResolver) ResolveHandle(ctx context.Context, handle string) (string, error) {
	f.calls = append(f.calls, handle)
	if f.err != nil {
		return "", f.err
	}
	did, ok := f.dids[handle]
	if !ok {
		return "", errors.New(errors.KindBadRequest, "", "Unable to resolve handle")
	}
	return did, nil
}

type memoryCache struct {
	entries map[string]*Identity
	getErr  error
	puts    int
	purged  []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*Identity)}
}

func (m *memoryCache) GetIdentity(ctx context.Context, handle string, maxAge time.Duration) (*Identity, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	id, ok := m.entries[handle]
	if !ok || (maxAge > 0 && time.Since(id.ResolvedAt) > maxAge) {
		return nil, nil
	}
	copied := *id
	return &copied, nil
}

func (m *memoryCache) PutIdentity(ctx context.Context, id *Identity) error {
	m.puts++
	m.entries[id.Handle] = id
	return nil
}

func (m *memoryCache) PurgeIdentity(ctx context.Context, handle string) error {
	m.purged = append(m.purged, handle)
	delete(m.entries, handle)
	return nil
}

func TestResolve(t *testing.T) {
	client := &fakeHandleResolver{dids: map[string]string{"alice.bsky.social": "did:plc:alice"}}
	r := NewResolver(client, logger.NewTestLogger())

	id, err := r.Resolve(context.Background(), " @Alice.bsky.social ")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", id.DID)
	assert.Equal(t, "alice.bsky.social", id.Handle)
	assert.Equal(t, MethodXRPC, id.Method)
	assert.False(t, id.ResolvedAt.IsZero())
	assert.Equal(t, []string{"alice.bsky.social"}, client.calls)
}

func TestResolveRejectsBadHandlesWithoutNetwork(t *testing.T) {
	for _, handle := range []string{"", "   ", "@", "not a handle", "nodots"} {
		t.Run(handle, func(t *testing.T) {
			client := &fakeHandleResolver{}
			r := NewResolver(client, logger.NewTestLogger())

			_, err := r.ResolveHandle(context.Background(), handle)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrResolution)
			assert.Empty(t, client.calls)
		})
	}
}

func TestResolveFailures(t *testing.T) {
	t.Run("unknown handle", func(t *testing.T) {
		log := logger.NewTestLogger()
		r := NewResolver(&fakeHandleResolver{}, log)

		_, err := r.Resolve(context.Background(), "ghost.bsky.social")
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrResolution)
		assert.Contains(t, err.Error(), "ghost.bsky.social")
		assert.True(t, log.HasMessage("handle resolution failed"))
	})

	t.Run("network failure is not retried", func(t *testing.T) {
		client := &fakeHandleResolver{err: errors.Wrap(errors.KindNetwork, "GET", stderrors.New("no route to host"))}
		r := NewResolver(client, logger.NewTestLogger())

		_, err := r.Resolve(context.Background(), "alice.bsky.social")
		require.Error(t, err)
		assert.Equal(t, errors.KindResolution, errors.KindOf(err))
		assert.Len(t, client.calls, 1)
	})

	t.Run("non did response", func(t *testing.T) {
		client := &fakeHandleResolver{dids: map[string]string{"alice.bsky.social": "garbage"}}
		r := NewResolver(client, logger.NewTestLogger())

		_, err := r.Resolve(context.Background(), "alice.bsky.social")
		assert.ErrorIs(t, err, errors.ErrResolution)
	})
}

func TestResolveCache(t *testing.T) {
	client := &fakeHandleResolver{dids: map[string]string{"alice.bsky.social": "did:plc:alice"}}
	cache := newMemoryCache()
	r := NewResolver(client, logger.NewTestLogger()).WithCache(cache, time.Hour)

	id, err := r.Resolve(context.Background(), "alice.bsky.social")
	require.NoError(t, err)
	id.PDSURL = "https://pds.alice.test"
	r.Remember(context.Background(), id)
	assert.Equal(t, 1, cache.puts)

	cached, err := r.Resolve(context.Background(), "alice.bsky.social")
	require.NoError(t, err)
	assert.Equal(t, MethodCache, cached.Method)
	assert.Equal(t, "https://pds.alice.test", cached.PDSURL)
	assert.Len(t, client.calls, 1)

	r.Remember(context.Background(), cached)
	assert.Equal(t, 1, cache.puts, "cache hits are not written back")

	r.Purge(context.Background(), "Alice.bsky.social")
	assert.Equal(t, []string{"alice.bsky.social"}, cache.purged)

	_, err = r.Resolve(context.Background(), "alice.bsky.social")
	require.NoError(t, err)
	assert.Len(t, client.calls, 2)
}

func TestResolveCacheErrorFallsThrough(t *testing.T) {
	client := &fakeHandleResolver{dids: map[string]string{"alice.bsky.social": "did:plc:alice"}}
	cache := newMemoryCache()
	cache.getErr = stderrors.New("database is locked")
	log := logger.NewTestLogger()
	r := NewResolver(client, log).WithCache(cache, time.Hour)

	id, err := r.Resolve(context.Background(), "alice.bsky.social")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", id.DID)
	assert.NotEmpty(t, log.GetMessagesByLevel("WARN"))
}
