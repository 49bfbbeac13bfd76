// internal/inventory/infrastructure/mapper.go
package infrastructure

import (
	"time"

	"lager/internal/inventory/domain"
)

// 数据库模型与领域模型之间的转换。
// 领域层不感知 GORM 标签和可空列这类存储细节。

func toDomainStock(m *StockModel) *domain.Stock {
	return &domain.Stock{
		ProductID:     m.ProductID,
		Physical:      m.PhysicalStock,
		Reserved:      m.ReservedStock,
		Available:     m.AvailableStock,
		MinStockLevel: m.MinStockLevel,
		ReorderPoint:  m.ReorderPoint,
		Version:       m.Version,
		WarehouseCode: m.WarehouseCode,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toStockModel(s *domain.Stock) *StockModel {
	return &StockModel{
		ProductID:      s.ProductID,
		PhysicalStock:  s.Physical,
		ReservedStock:  s.Reserved,
		AvailableStock: s.Available,
		MinStockLevel:  s.MinStockLevel,
		ReorderPoint:   s.ReorderPoint,
		Version:        s.Version,
		WarehouseCode:  s.WarehouseCode,
		UpdatedAt:      s.UpdatedAt,
	}
}

func toDomainReservation(m *ReservationModel) *domain.Reservation {
	r := &domain.Reservation{
		ID:           m.ID,
		ProductID:    m.ProductID,
		Quantity:     m.Quantity,
		Holder:       m.Holder,
		OrderRef:     m.OrderRef,
		Status:       domain.ReservationStatus(m.Status),
		ExpiresAt:    m.ExpiresAt,
		CreatedAt:    m.CreatedAt,
		CancelReason: m.CancelReason,
	}
	if m.ConfirmedAt != nil {
		r.ConfirmedAt = *m.ConfirmedAt
	}
	if m.CancelledAt != nil {
		r.CancelledAt = *m.CancelledAt
	}
	return r
}

func toReservationModel(r *domain.Reservation) *ReservationModel {
	m := &ReservationModel{
		ID:           r.ID,
		ProductID:    r.ProductID,
		Quantity:     r.Quantity,
		Holder:       r.Holder,
		OrderRef:     r.OrderRef,
		Status:       string(r.Status),
		ExpiresAt:    r.ExpiresAt,
		CreatedAt:    r.CreatedAt,
		CancelReason: r.CancelReason,
	}
	if !r.ConfirmedAt.IsZero() {
		t := r.ConfirmedAt
		m.ConfirmedAt = &t
	}
	if !r.CancelledAt.IsZero() {
		t := r.CancelledAt
		m.CancelledAt = &t
	}
	return m
}

func toDomainLedgerEntry(m *LedgerModel) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:        m.ID,
		ProductID: m.ProductID,
		Type:      domain.LedgerType(m.Type),
		Quantity:  m.Quantity,
		Reason:    m.Reason,
		Actor:     m.Actor,
		Reference: m.Reference,
		CreatedAt: m.CreatedAt,
	}
}

func toLedgerModel(e *domain.LedgerEntry) *LedgerModel {
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return &LedgerModel{
		ID:        e.ID,
		ProductID: e.ProductID,
		Type:      string(e.Type),
		Quantity:  e.Quantity,
		Reason:    e.Reason,
		Actor:     e.Actor,
		Reference: e.Reference,
		CreatedAt: created,
	}
}
