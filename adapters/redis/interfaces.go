package redis

import (
	"context"
)

// IAutoRenewMutex 定義了 AutoRenewMutex 的操作介面
// 競標引擎在多節點部署時以此作為車輛出價鎖
type IAutoRenewMutex interface {
	Lock(ctx context.Context) (context.Context, error)
	Unlock() (bool, error)
	Valid() bool
}

// IStore 定義了以名稱為單位的 hash 儲存介面
// 冪等性中介層用來保存已處理請求的回應快照
type IStore interface {
	Load(ctx context.Context, name string) (map[string]string, error)
	Save(ctx context.Context, name string, data map[string]string) error
}
