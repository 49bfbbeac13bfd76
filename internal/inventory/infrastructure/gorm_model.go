// internal/inventory/infrastructure/gorm_model.go
package infrastructure

import (
	"time"
)

// StockModel 对应数据库中的 product_stock 表。
// 计数器列只通过相对增量表达式更新，version 列是乐观策略的并发令牌。
type StockModel struct {
	ProductID     string `gorm:"primaryKey;size:64"`
	PhysicalStock int64  `gorm:"not null;default:0"`
	ReservedStock int64  `gorm:"not null;default:0"`
	// available_stock 冗余维护，带索引支撑可用性查询
	AvailableStock int64     `gorm:"not null;default:0;index"`
	MinStockLevel  int64     `gorm:"not null;default:0"`
	ReorderPoint   int64     `gorm:"not null;default:0"`
	Version        int64     `gorm:"not null;default:0"`
	WarehouseCode  string    `gorm:"size:64;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName 指定 GORM 应该使用的表名
func (StockModel) TableName() string {
	return "product_stock"
}

// ReservationModel 对应数据库中的 stock_reservation 表。
// 复合索引 (product_id, status, expires_at) 服务清理器的扫描查询。
type ReservationModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	ProductID string `gorm:"size:64;index:idx_resv_sweep,priority:1;index:idx_resv_order,priority:1"`
	Quantity  int64  `gorm:"not null"`
	Holder    string `gorm:"size:128"`
	OrderRef  string `gorm:"size:128;index:idx_resv_order,priority:2"`
	Status    string `gorm:"size:16;index:idx_resv_sweep,priority:2"`

	ExpiresAt    time.Time  `gorm:"index:idx_resv_sweep,priority:3"`
	CreatedAt    time.Time
	ConfirmedAt  *time.Time
	CancelledAt  *time.Time
	CancelReason string     `gorm:"type:text"`
}

// TableName 指定 GORM 应该使用的表名
func (ReservationModel) TableName() string {
	return "stock_reservation"
}

// LedgerModel 对应数据库中的 stock_ledger 表，只追加。
type LedgerModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	ProductID string    `gorm:"size:64;index:idx_ledger_product,priority:1"`
	Type      string    `gorm:"size:16"`
	Quantity  int64     `gorm:"not null"`
	Reason    string    `gorm:"type:text"`
	Actor     string    `gorm:"size:128"`
	Reference string    `gorm:"size:128"`
	CreatedAt time.Time `gorm:"index:idx_ledger_product,priority:2"`
}

// TableName 指定 GORM 应该使用的表名
func (LedgerModel) TableName() string {
	return "stock_ledger"
}
