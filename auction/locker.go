package auction

import (
	"context"
	"sync"
)

// IMutex 定義單一車輛競標互斥鎖的操作介面
// Lock 回傳的 context 會在鎖失效或釋放時被取消
type IMutex interface {
	Lock(ctx context.Context) (context.Context, error)
	Unlock() (bool, error)
}

// LockProvider 依照 key 建立互斥鎖
// 引擎對每一輛車的出價與結標都會先取得對應的鎖，
// 確保 read-validate-write 流程以車輛為單位序列化
type LockProvider func(key string) IMutex

// KeyedMutex 提供以 key 區分的行程內互斥鎖
// 單一節點部署與測試使用；多節點部署改用 Redis 分散式鎖
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

// Get 回傳對應 key 的互斥鎖實例
func (k *KeyedMutex) Get(key string) IMutex {
	return &keyedMutex{owner: k, key: key}
}

type keyedMutex struct {
	owner  *KeyedMutex
	key    string
	entry  *keyedEntry
	cancel context.CancelFunc
}

func (m *keyedMutex) Lock(ctx context.Context) (context.Context, error) {
	m.owner.mu.Lock()
	e, ok := m.owner.entries[m.key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		m.owner.entries[m.key] = e
	}
	e.refs++
	m.owner.mu.Unlock()

	select {
	case <-ctx.Done():
		m.release(e)
		return nil, ctx.Err()
	case e.ch <- struct{}{}:
		m.entry = e
		lockCtx, cancel := context.WithCancel(ctx)
		m.cancel = cancel
		return lockCtx, nil
	}
}

func (m *keyedMutex) Unlock() (bool, error) {
	if m.entry == nil {
		return false, ErrNotLocked
	}
	m.cancel()
	<-m.entry.ch
	m.release(m.entry)
	m.entry = nil
	return true, nil
}

// release 歸還 entry 的引用，沒有等待者時移除以免 map 無限成長
func (m *keyedMutex) release(e *keyedEntry) {
	m.owner.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.owner.entries, m.key)
	}
	m.owner.mu.Unlock()
}
