// internal/inventory/port/ports.go
package port

import (
	"context"

	"lager/internal/inventory/domain"
)

// EventPublisher 是台账事件的出站端口。
// 发布发生在事务提交之后，尽力而为，失败不回滚业务操作。
type EventPublisher interface {
	PublishLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error
}

// AvailabilityView 是可用性检查快路径使用的只读投影。
type AvailabilityView struct {
	Available     int64 `json:"available"`
	MinStockLevel int64 `json:"min_stock_level"`
}

// AvailabilityCache 是可用库存的快路径读缓存。
// 它是写后失效的派生视图，绝不能作为守卫内预占判定的依据。
type AvailabilityCache interface {
	// GetView 命中时返回视图，未命中返回 (nil, nil)。
	GetView(ctx context.Context, productID string) (*AvailabilityView, error)
	SetView(ctx context.Context, productID string, view AvailabilityView) error
	// Invalidate 在每次提交的库存变更后调用。
	Invalidate(ctx context.Context, productID string) error
}

// ContentionTracker 记录每个商品的预占尝试频次，自适应策略据此分流。
type ContentionTracker interface {
	// RecordAttempt 记录一次尝试并返回当前窗口内的累计次数。
	RecordAttempt(ctx context.Context, productID string) (int64, error)
}
