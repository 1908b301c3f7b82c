package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-aggregator/logger"
	"github.com/saiset-co/sai-aggregator/types"
	"github.com/saiset-co/sai-aggregator/utils"
)

func TestFrame_RoundTripRaw(t *testing.T) {
	storedAt := time.Unix(1700000000, 123)
	payload := []byte(`{"items":[]}`)

	frame, err := encodeFrame(storedAt, 5*time.Minute, payload, 1024)
	require.NoError(t, err)
	assert.Equal(t, frameRaw, frame[0])

	gotAt, gotTTL, gotPayload, err := decodeFrame(frame)
	require.NoError(t, err)
	assert.True(t, storedAt.Equal(gotAt))
	assert.Equal(t, 5*time.Minute, gotTTL)
	assert.Equal(t, payload, gotPayload)
}

func TestFrame_CompressesLargePayload(t *testing.T) {
	payload := []byte(strings.Repeat(`{"title":"repeated result","url":"https://example.com"}`, 200))

	frame, err := encodeFrame(time.Unix(0, 0), time.Hour, payload, 256)
	require.NoError(t, err)
	assert.Equal(t, frameBrotli, frame[0])
	assert.Less(t, len(frame), len(payload))

	_, _, decoded, err := decodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestFrame_Corrupt(t *testing.T) {
	_, _, _, err := decodeFrame([]byte{1, 2, 3})
	assert.ErrorIs(t, err, types.ErrCacheEntryCorrupt)

	frame, err := encodeFrame(time.Now(), time.Minute, []byte("x"), 0)
	require.NoError(t, err)
	frame[0] = 9
	_, _, _, err = decodeFrame(frame)
	assert.ErrorIs(t, err, types.ErrCacheEntryCorrupt)
}

func TestJSONCodec(t *testing.T) {
	codec := JSONCodec[types.AggregateResult]{}
	result := types.AggregateResult{
		Items: []types.ResultItem{{Title: "Go", URL: "https://go.dev", Score: 2}},
		Total: 1,
	}

	data, err := codec.Encode(result)
	require.NoError(t, err)

	decoded, err := codec.Decode(data)
	require.NoError(t, err)

	got, ok := decoded.(*types.AggregateResult)
	require.True(t, ok)
	assert.Equal(t, 1, got.Total)
	assert.Equal(t, "https://go.dev", got.Items[0].URL)

	_, err = codec.Encode("not a result")
	assert.Error(t, err)

	_, err = codec.Decode([]byte("{broken"))
	assert.ErrorIs(t, err, types.ErrCacheEntryCorrupt)
}

// Live tests need a reachable redis; set REDIS_ADDR to run them.
func newLiveRedisStore(t *testing.T, maxEntries int) (*RedisStore, *utils.ManualClock) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	clock := utils.NewManualClock(time.Now())
	config := &types.CacheConfig{
		Type:       "redis",
		MaxEntries: maxEntries,
		TTL:        types.TTLConfig{Short: time.Minute, Medium: time.Minute, Long: time.Minute},
		Redis: &types.RedisConfig{
			Addr:      addr,
			KeyPrefix: "sai-aggregator-test-" + t.Name(),
		},
	}

	store, err := NewRedisStore(context.Background(), config, clock, JSONCodec[types.AggregateResult]{}, logger.NewNop())
	require.NoError(t, err)

	store.Clear()
	t.Cleanup(func() {
		store.Clear()
		_ = store.Close()
	})

	return store, clock
}

func TestRedisStore_PutGetExpire(t *testing.T) {
	store, clock := newLiveRedisStore(t, 10)

	store.Put("k", &types.AggregateResult{Total: 3}, 100*time.Millisecond)

	value, found := store.Get("k")
	require.True(t, found)
	assert.Equal(t, 3, value.(*types.AggregateResult).Total)

	clock.Advance(150 * time.Millisecond)
	_, found = store.Get("k")
	assert.False(t, found)

	stats := store.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestRedisStore_Capacity(t *testing.T) {
	store, clock := newLiveRedisStore(t, 5)

	for i := 0; i < 6; i++ {
		store.Put(string(rune('a'+i)), &types.AggregateResult{Total: i}, time.Minute)
		clock.Advance(time.Millisecond)
	}

	stats := store.Stats()
	assert.LessOrEqual(t, stats.Size, 5)

	_, found := store.Get("a")
	assert.False(t, found)
}
