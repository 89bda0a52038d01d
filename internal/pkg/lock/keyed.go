// Package lock 提供按 key 串行化的互斥锁
// 用于把同一个会话上的读-改-写操作收敛到单个临界区，
// 避免并发请求互相覆盖计数器和元数据
package lock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Keyed 按 key 串行化的锁集合
// 空闲的 key 不占内存，最后一个持有者释放后即回收
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewKeyed 创建锁集合
func NewKeyed() *Keyed {
	return &Keyed{
		entries: make(map[string]*entry),
	}
}

// Acquire 获取 key 对应的锁，会一直等待直到拿到锁或 ctx 取消
func (k *Keyed) Acquire(ctx context.Context, key string) error {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		k.drop(key)
		return err
	}
	return nil
}

// Release 释放 key 对应的锁
// 必须与成功的 Acquire 一一配对
func (k *Keyed) Release(key string) {
	k.mu.Lock()
	e, ok := k.entries[key]
	k.mu.Unlock()
	if !ok {
		return
	}

	e.sem.Release(1)
	k.drop(key)
}

// drop 减少引用计数，无人引用时回收 entry
func (k *Keyed) drop(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(k.entries, key)
	}
}
