package contentstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestHashOfIsStableAndVerifiable(t *testing.T) {
	data := []byte(`{"projectId":1,"judgeId":2}`)

	first, err := HashOf(data)
	require.NoError(t, err)
	second, err := HashOf(data)
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.NoError(t, Verify(first, data))
	require.ErrorIs(t, Verify(first, []byte(`{"projectId":1,"judgeId":3}`)), ErrHashMismatch)
	require.ErrorIs(t, Verify("not-a-cid", data), ErrInvalidHash)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	hash, err := store.Put(ctx, []byte("score document"))
	require.NoError(t, err)

	data, err := store.Fetch(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, "score document", string(data))

	missing, err := HashOf([]byte("never stored"))
	require.NoError(t, err)
	_, err = store.Fetch(ctx, missing)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Fetch(ctx, "")
	require.ErrorIs(t, err, ErrInvalidHash)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, client := newRedisClient(t)
	store := NewRedis(client, "", 0)
	ctx := context.Background()

	hash, err := store.Put(ctx, []byte("redis document"))
	require.NoError(t, err)
	require.True(t, mr.Exists("content:"+hash))

	data, err := store.Fetch(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, "redis document", string(data))

	require.NoError(t, mr.Set("content:"+hash, "tampered"))
	_, err = store.Fetch(ctx, hash)
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestCachedStoreServesFromCache(t *testing.T) {
	mr, client := newRedisClient(t)
	origin := NewMemory()
	store := NewCached(origin, client, time.Hour, zerolog.Nop())
	ctx := context.Background()

	hash, err := origin.Put(ctx, []byte("cached document"))
	require.NoError(t, err)

	data, err := store.Fetch(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, "cached document", string(data))
	require.True(t, mr.Exists("content-cache:"+hash))

	require.NoError(t, mr.Set("content-cache:"+hash, "poisoned"))
	data, err = store.Fetch(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, "cached document", string(data), "a poisoned cache entry falls back to the origin")
}

func TestGatewayFetch(t *testing.T) {
	good := []byte(`{"totalScore":42}`)
	goodHash, err := HashOf(good)
	require.NoError(t, err)
	tamperedHash, err := HashOf([]byte("original"))
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := strings.TrimPrefix(r.URL.Path, "/ipfs/")
		switch hash {
		case goodHash:
			_, _ = w.Write(good)
		case tamperedHash:
			_, _ = w.Write([]byte("modified"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	gateway := NewGateway(server.URL+"/ipfs/", time.Second)
	ctx := context.Background()

	data, err := gateway.Fetch(ctx, goodHash)
	require.NoError(t, err)
	require.Equal(t, good, data)

	_, err = gateway.Fetch(ctx, tamperedHash)
	require.ErrorIs(t, err, ErrHashMismatch)

	missing, err := HashOf([]byte("missing"))
	require.NoError(t, err)
	_, err = gateway.Fetch(ctx, missing)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFallbackPrefersFirstHit(t *testing.T) {
	ctx := context.Background()
	primary := NewMemory()
	secondary := NewMemory()

	onlySecondary, err := secondary.Put(ctx, []byte(`{"judgeId":2}`))
	require.NoError(t, err)
	shared, err := primary.Put(ctx, []byte(`{"judgeId":1}`))
	require.NoError(t, err)

	fetcher := Fallback{primary, nil, secondary}

	data, err := fetcher.Fetch(ctx, shared)
	require.NoError(t, err)
	require.Equal(t, `{"judgeId":1}`, string(data))

	data, err = fetcher.Fetch(ctx, onlySecondary)
	require.NoError(t, err)
	require.Equal(t, `{"judgeId":2}`, string(data))

	missing, err := HashOf([]byte("nowhere"))
	require.NoError(t, err)
	_, err = fetcher.Fetch(ctx, missing)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = fetcher.Fetch(ctx, "not-a-cid")
	require.ErrorIs(t, err, ErrInvalidHash)
}
