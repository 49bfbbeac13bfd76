// internal/inventory/domain/ledger.go
package domain

import "time"

// LedgerType 是台账条目的业务类型。
type LedgerType string

const (
	LedgerInbound    LedgerType = "inbound"    // 入库，Quantity 为正
	LedgerReserve    LedgerType = "reserve"    // 预占，Quantity 为正（占用量）
	LedgerConfirm    LedgerType = "confirm"    // 确认出库，Quantity 为负（实际库存减少）
	LedgerCancel     LedgerType = "cancel"     // 取消预占，Quantity 为负（占用量归还）
	LedgerExpire     LedgerType = "expire"     // 过期释放，Quantity 为负（占用量归还）
	LedgerAdjustment LedgerType = "adjustment" // 人工/维护修正，Quantity 带符号
)

// LedgerEntry 是库存台账里的一条记录。
// 台账只追加，永不更新或删除；每个改变库存状态的操作在同一个事务里写入恰好一条。
type LedgerEntry struct {
	ID        string
	ProductID string
	Type      LedgerType
	Quantity  int64 // 带符号，方向由 Type 决定
	Reason    string
	Actor     string
	// Reference 指向引起这条记录的实体（预占 ID、入库单号等）
	Reference string
	CreatedAt time.Time
}
