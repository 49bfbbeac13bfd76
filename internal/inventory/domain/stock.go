// internal/inventory/domain/stock.go
package domain

import "time"

// Stock 是一个商品的库存主记录，是预占引擎里唯一被高频争用的共享资源。
// 三个计数器之间恒有 Available = Physical - Reserved，且 0 <= Reserved <= Physical。
// 计数器只能通过引擎的事务性操作修改，修改永远以相对增量的形式由存储层原子地应用。
type Stock struct {
	ProductID string
	Physical  int64 // 实际持有的总件数
	Reserved  int64 // 被 pending 预占持有的件数
	Available int64 // 可以对外承诺的件数 (= Physical - Reserved)

	// 告警阈值，只做提示不做硬性限制
	MinStockLevel int64
	ReorderPoint  int64

	// Version 是乐观策略使用的并发令牌，每次写入自增
	Version       int64
	WarehouseCode string
	UpdatedAt     time.Time
}

// IsLowStock 可用库存是否已低于最低水位。
func (s *Stock) IsLowStock() bool {
	return s.Available <= s.MinStockLevel
}

// NeedsReorder 是否触达补货点。
func (s *Stock) NeedsReorder() bool {
	return s.Available <= s.ReorderPoint
}

// InvariantViolated 校验计数器不变量，存储实现可在提交前用它兜底。
func (s *Stock) InvariantViolated() bool {
	return s.Reserved < 0 || s.Reserved > s.Physical || s.Available != s.Physical-s.Reserved
}
