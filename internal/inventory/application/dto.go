// internal/inventory/application/dto.go
package application

import (
	"time"

	"lager/internal/inventory/domain"
)

// ReserveRequest 是一次预占请求的全部输入。
type ReserveRequest struct {
	ProductID string
	Quantity  int64
	Holder    string
	// OrderRef 幂等键，可为空；非空时同一商品下重复提交返回已有预占
	OrderRef string
	// TTL 为零时使用引擎默认值
	TTL time.Duration
}

// ReserveResult 是预占操作的输出。
type ReserveResult struct {
	Reservation *domain.Reservation
	// Entry 本次写入的台账记录；幂等复用已有预占时为 nil
	Entry *domain.LedgerEntry
	// Attempts 实际执行的尝试次数（悲观路径恒为 1）
	Attempts int
	// Reused 幂等命中，未产生新的预占
	Reused bool
	// StrategyUsed 实际执行的策略名
	StrategyUsed string
}

// AvailabilityResult 是可用性检查的结果。
// 这个检查是建议性的：检查与预占之间存在竞态，预占操作必须在
// 自己的守卫下重新校验。
type AvailabilityResult struct {
	Satisfiable     bool  `json:"satisfiable"`
	Available       int64 `json:"available"`
	Requested       int64 `json:"requested"`
	LowStockWarning bool  `json:"low_stock_warning"`
}

// SweepResult 是一次过期清理的结果。
type SweepResult struct {
	ReleasedCount int `json:"released_count"`
}
