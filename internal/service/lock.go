package service

import (
	"context"
	"engz_backend/pkg/logger"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Locker 基于 Redis SETNX 的短期互斥锁，rdb 为空时总是加锁成功（单实例部署）
type Locker struct {
	rdb *redis.Client
}

func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

// TryLock 返回是否拿到锁以及释放函数
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, func()) {
	noop := func() {}
	if l == nil || l.rdb == nil {
		return true, noop
	}
	ok, err := l.rdb.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		// Redis 不可用时退化为只依赖数据库 CAS
		logger.Log.Warn("redis lock unavailable", zap.String("key", key), zap.Error(err))
		return true, noop
	}
	if !ok {
		return false, noop
	}
	return true, func() {
		if err := l.rdb.Del(context.Background(), key).Err(); err != nil {
			logger.Log.Warn("redis unlock failed", zap.String("key", key), zap.Error(err))
		}
	}
}
