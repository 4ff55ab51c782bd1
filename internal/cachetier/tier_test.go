package cachetier

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisTier(t *testing.T) *RedisTier {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &RedisTier{client: client}
}

func TestTierMemoryOnlyWhenRemoteNil(t *testing.T) {
	tier := NewTier(NewMemoryCache(10, 1<<20), nil, time.Minute, time.Hour)
	ctx := context.Background()

	tier.SetPlaylist(ctx, "https://cdn.example.com/index.m3u8", "", []byte("#EXTM3U\n"))
	data, ok := tier.GetPlaylist(ctx, "https://cdn.example.com/index.m3u8", "")
	require.True(t, ok)
	require.Equal(t, "#EXTM3U\n", string(data))
}

func TestTierPlaylistKeyIsRefererSensitive(t *testing.T) {
	tier := NewTier(NewMemoryCache(10, 1<<20), nil, time.Minute, time.Hour)
	ctx := context.Background()

	tier.SetPlaylist(ctx, "https://cdn.example.com/index.m3u8", "https://watch.example/a", []byte("#A\n"))
	tier.SetPlaylist(ctx, "https://cdn.example.com/index.m3u8", "https://watch.example/b", []byte("#B\n"))

	dataA, ok := tier.GetPlaylist(ctx, "https://cdn.example.com/index.m3u8", "https://watch.example/a")
	require.True(t, ok)
	require.Equal(t, "#A\n", string(dataA))

	dataB, ok := tier.GetPlaylist(ctx, "https://cdn.example.com/index.m3u8", "https://watch.example/b")
	require.True(t, ok)
	require.Equal(t, "#B\n", string(dataB))

	_, ok = tier.GetPlaylist(ctx, "https://cdn.example.com/index.m3u8", "")
	require.False(t, ok, "unscoped lookup must not see referer-scoped entries")
}

func TestTierFallsThroughToRemoteOnMemoryMiss(t *testing.T) {
	remote := newTestRedisTier(t)
	ctx := context.Background()
	require.NoError(t, remote.Set(ctx, namespaceSegment+HashKey("https://cdn.example.com/seg0.ts"), []byte("bytes"), time.Minute))

	tier := NewTier(NewMemoryCache(10, 1<<20), remote, time.Minute, time.Hour)
	data, ok := tier.GetSegment(ctx, "https://cdn.example.com/seg0.ts", "")
	require.True(t, ok)
	require.Equal(t, "bytes", string(data))
}

func TestTierSkipsRemoteForOversizedPayload(t *testing.T) {
	remote := newTestRedisTier(t)
	ctx := context.Background()
	tier := NewTier(NewMemoryCache(10, 100<<20), remote, time.Minute, time.Hour)

	big := make([]byte, maxRemotePayload+1)
	tier.SetSegment(ctx, "https://cdn.example.com/big.ts", "", big)

	_, ok, err := remote.Get(ctx, namespaceSegment+HashKey("https://cdn.example.com/big.ts"))
	require.NoError(t, err)
	require.False(t, ok, "oversized payload must not reach the remote tier")

	data, ok := tier.GetSegment(ctx, "https://cdn.example.com/big.ts", "")
	require.True(t, ok, "oversized payload is still readable from the memory tier")
	require.Len(t, data, maxRemotePayload+1)
}

func TestHashKeyIsStableAndDistinct(t *testing.T) {
	a := HashKey("https://cdn.example.com/a.ts")
	b := HashKey("https://cdn.example.com/b.ts")
	require.NotEqual(t, a, b)
	require.Equal(t, a, HashKey("https://cdn.example.com/a.ts"))
}
