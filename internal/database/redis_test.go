package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestConnectRedisAppliesOptions(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis(context.Background(), "redis://"+mr.Addr()+"/0", RedisOptions{PoolSize: 3, DialTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.Equal(t, 3, client.Options().PoolSize)
	require.Equal(t, time.Second, client.Options().DialTimeout)
	require.NoError(t, client.Set(context.Background(), "gema:worker:lock:expiry_sweeper", "1", time.Minute).Err())
}

func TestConnectRedisRejectsBadTargets(t *testing.T) {
	_, err := ConnectRedis(context.Background(), "", RedisOptions{})
	require.Error(t, err)

	_, err = ConnectRedis(context.Background(), "mysql://localhost", RedisOptions{})
	require.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err = ConnectRedis(context.Background(), "redis://"+addr, RedisOptions{DialTimeout: 200 * time.Millisecond})
	require.Error(t, err)
}
