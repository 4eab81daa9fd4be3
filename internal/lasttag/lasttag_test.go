package lasttag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-attendance-backend/internal/apperr"
)

func TestMemory_PutTake(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	_, err := m.Take(ctx, false)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.ErrorIs(t, m.Put(ctx, Entry{}), apperr.ErrInvalidArgument)

	at := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)
	require.NoError(t, m.Put(ctx, Entry{Tag: "A1", At: at}))
	require.NoError(t, m.Put(ctx, Entry{Tag: "B2", DeviceID: "gate-1", At: at}))

	e, err := m.Take(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "B2", e.Tag, "single slot keeps the latest tag")

	e, err = m.Take(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "gate-1", e.DeviceID)

	_, err = m.Take(ctx, false)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.True(t, m.Healthy(ctx))
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(20 * time.Millisecond)
	require.NoError(t, m.Put(ctx, Entry{Tag: "A1", At: time.Now()}))

	assert.Eventually(t, func() bool {
		_, err := m.Take(ctx, false)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}

func TestRedis_UnreachableIsUnavailable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client := NewRedisClient("127.0.0.1:1")
	defer client.Close()
	r := NewRedis(client, "gate:last-tag", time.Minute)

	assert.False(t, r.Healthy(ctx))
	assert.ErrorIs(t, r.Put(ctx, Entry{Tag: "A1", At: time.Now()}), apperr.ErrUnavailable)
	_, err := r.Take(ctx, true)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
}
