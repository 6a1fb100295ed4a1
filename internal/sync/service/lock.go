package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrOrderBusy 同一订单的同步操作正在进行
var ErrOrderBusy = fmt.Errorf("order sync in progress")

// 释放时校验token，只删自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// OrderLock 订单级互斥锁
// 同一订单的同步操作（派发/审批/编辑重放/删除冲销）必须串行
type OrderLock struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewOrderLock(rdb *redis.Client, ttl time.Duration) *OrderLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &OrderLock{rdb: rdb, ttl: ttl}
}

// Acquire 获取订单锁，返回释放函数
func (l *OrderLock) Acquire(ctx context.Context, orderID string) (func(), error) {
	if l.rdb == nil {
		// 未配置redis时退化为无锁，靠数据库行锁兜底
		return func() {}, nil
	}
	key := "vastra:sync:lock:" + orderID
	token := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire order lock: %w", err)
	}
	if !ok {
		return nil, ErrOrderBusy
	}

	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.rdb, []string{key}, token).Err()
	}
	return release, nil
}
