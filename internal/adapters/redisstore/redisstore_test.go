package redisstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/pulse/internal/adapters/redisstore"
	"github.com/opsboard/pulse/internal/domain/draft"
	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/internal/domain/period"
)

// liveClient returns a client for PULSE_TEST_REDIS_ADDR or skips the test.
func liveClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("PULSE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PULSE_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := redisstore.Dial(ctx, addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestKey(t *testing.T) {
	d := redisstore.New(nil)
	id := model.Identity{SubjectKey: "E1", Period: period.MustParse("2024-03")}
	assert.Equal(t, "pulse:draft:E1:2024-03", d.Key(id))

	custom := redisstore.New(nil, redisstore.WithPrefix("test:"))
	assert.Equal(t, "test:draft:E1:2024-03", custom.Key(id))
}

func TestDraftsLive(t *testing.T) {
	client := liveClient(t)
	ctx := context.Background()
	d := redisstore.New(client, redisstore.WithPrefix("pulse-test-"+uuid.NewString()+":"))
	id := model.Identity{SubjectKey: "E1", Period: period.MustParse("2024-03")}
	t.Cleanup(func() { _ = d.Delete(context.Background(), id) })

	_, found, err := d.Fetch(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)

	at := time.Date(2024, 3, 20, 10, 0, 2, 0, time.UTC)
	require.NoError(t, d.Upsert(ctx, draft.Payload{Identity: id, Fields: model.Fields{"fieldA": 1.0}, SavedAt: at, IsDraft: true}))
	require.NoError(t, d.Upsert(ctx, draft.Payload{Identity: id, Fields: model.Fields{"fieldA": 2.0}, SavedAt: at, IsDraft: true}))

	p, found, err := d.Fetch(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2.0, p.Fields["fieldA"])
	assert.True(t, p.SavedAt.Equal(at))

	require.NoError(t, d.Delete(ctx, id))
	require.NoError(t, d.Delete(ctx, id))
	_, found, err = d.Fetch(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := redisstore.Dial(ctx, "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
