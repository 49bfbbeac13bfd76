// internal/inventory/domain/repository.go
package domain

import (
	"context"
	"time"
)

// Repository 定义了库存聚合的持久化接口。
// 它位于领域层，由基础设施层实现（GORM/MySQL 或内存实现）。
//
// Transact 是所有写操作的事务边界：fn 内对 tx 的全部修改要么一起可见，
// 要么全部回滚，且不会与同一 Stock 上的并发事务交错出部分效果。
type Repository interface {
	// Transact 在一个原子事务里执行 fn。fn 返回错误时整个事务回滚。
	Transact(ctx context.Context, fn func(tx Repository) error) error

	// CreateStock 为新商品建立库存记录，已存在时返回 ErrStockExists。
	CreateStock(ctx context.Context, stock *Stock) error

	// GetStock 普通读取，不加守卫。
	GetStock(ctx context.Context, productID string) (*Stock, error)

	// LockStock 以排它行级守卫读取，阻塞同一商品上的并发修改者直到事务结束。
	// 只能在 Transact 内调用。
	LockStock(ctx context.Context, productID string) (*Stock, error)

	// AdjustStock 以相对增量原子地修改计数器：
	// physicalDelta 作用于 Physical，reservedDelta 作用于 Reserved，
	// Available 始终按 Physical - Reserved 同步维护，Version 自增。
	// 增量导致不变量被破坏时返回 ErrInsufficientStock。
	AdjustStock(ctx context.Context, productID string, physicalDelta, reservedDelta int64) error

	// AdjustStockVersioned 是乐观策略的条件写：仅当 Version 仍等于
	// expectedVersion 且 Available >= reservedDelta 时才应用增量并把
	// Version 加一。返回是否命中（false 表示检测到并发修改）。
	AdjustStockVersioned(ctx context.Context, productID string, expectedVersion, reservedDelta int64) (bool, error)

	CreateReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, id string) (*Reservation, error)

	// LockReservation 以排它守卫读取预占，保护 pending -> 终态的唯一一次流转。
	LockReservation(ctx context.Context, id string) (*Reservation, error)

	// SaveReservation 持久化状态流转后的预占。
	SaveReservation(ctx context.Context, r *Reservation) error

	// PendingByOrderRef 查找同一商品下携带相同订单引用的 pending 预占，
	// 用于幂等去重；不存在时返回 (nil, nil)。
	PendingByOrderRef(ctx context.Context, productID, orderRef string) (*Reservation, error)

	// ExpiredPending 返回已过期但仍为 pending 的预占 ID，供清理器分批处理。
	ExpiredPending(ctx context.Context, now time.Time, limit int) ([]string, error)

	// PendingQuantitySum 统计某商品全部 pending 预占的数量之和，
	// 用于维护任务核对 Reserved 计数。
	PendingQuantitySum(ctx context.Context, productID string) (int64, error)

	// CountRecentPending 统计 since 之后创建的 pending 预占数，自适应策略
	// 以此估计竞争程度。
	CountRecentPending(ctx context.Context, productID string, since time.Time) (int64, error)

	// AppendLedger 追加一条台账记录。台账永不更新或删除。
	AppendLedger(ctx context.Context, entry *LedgerEntry) error

	// LedgerByProduct 按时间倒序返回某商品最近的台账记录。
	LedgerByProduct(ctx context.Context, productID string, limit int) ([]LedgerEntry, error)
}
