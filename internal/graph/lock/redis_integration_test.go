//go:build integration

package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"zahori/internal/graph/lock"
	"zahori/pkg/testutil/containers"
)

type RedisLockSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisLockSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockSuite))
}

func (s *RedisLockSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisLockSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLockSuite) TestExclusive() {
	l := lock.NewRedis(s.redis.Client, 5*time.Second, lock.WithRetryDelay(5*time.Millisecond))
	unlock, err := l.Lock(context.Background(), "case-1")
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "case-1")
	s.ErrorIs(err, lock.ErrNotAcquired)

	unlock()
	again, err := l.Lock(context.Background(), "case-1")
	s.Require().NoError(err)
	again()
}

func (s *RedisLockSuite) TestExpiredHolderDoesNotReleaseNewOwner() {
	ctx := context.Background()
	short := lock.NewRedis(s.redis.Client, 50*time.Millisecond, lock.WithRetryDelay(5*time.Millisecond))
	stale, err := short.Lock(ctx, "case-2")
	s.Require().NoError(err)

	time.Sleep(100 * time.Millisecond)
	l := lock.NewRedis(s.redis.Client, 5*time.Second)
	current, err := l.Lock(ctx, "case-2")
	s.Require().NoError(err)
	defer current()

	stale()
	exists, err := s.redis.Client.Exists(ctx, "zahori:lock:case:case-2").Result()
	s.Require().NoError(err)
	s.Equal(int64(1), exists)
}
