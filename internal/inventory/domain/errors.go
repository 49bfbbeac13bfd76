// internal/inventory/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// 领域错误是纯粹的，不携带任何基础设施依赖。
// 调用方用 errors.Is 判定类别，决定是否可以重试。
var (
	// ErrProductNotFound 目标商品没有库存记录
	ErrProductNotFound = errors.New("product stock not found")
	// ErrReservationNotFound 预占不存在
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrInvalidQuantity 数量必须是正整数，在任何事务开始前就被拒绝
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	// ErrInsufficientStock 可用库存不足，无副作用，调用方可调整数量后重试
	ErrInsufficientStock = errors.New("insufficient available stock")
	// ErrInvalidState 预占状态不允许该操作，终态错误，不应盲目重试
	ErrInvalidState = errors.New("operation not allowed in current reservation status")
	// ErrReservationExpired 预占已过期，确认操作的终态错误
	ErrReservationExpired = errors.New("reservation has expired")
	// ErrNotExpired 清理器试图释放一个尚未到期的预占
	ErrNotExpired = errors.New("reservation has not expired yet")
	// ErrConcurrencyConflict 乐观重试耗尽，整个操作可在退避后从头重试
	ErrConcurrencyConflict = errors.New("concurrent update conflict, retries exhausted")
	// ErrStockExists 商品的库存记录已存在
	ErrStockExists = errors.New("product stock already exists")
)

// InsufficientStockError 在 ErrInsufficientStock 之上附带观测到的数量，
// 让调用方有足够的信息决定下一步（比如降量重试）。
type InsufficientStockError struct {
	ProductID string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient available stock for product %s: available=%d requested=%d",
		e.ProductID, e.Available, e.Requested)
}

// Is 让 errors.Is(err, ErrInsufficientStock) 成立。
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
