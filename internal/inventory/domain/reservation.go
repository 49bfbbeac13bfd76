// internal/inventory/domain/reservation.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReservationStatus 定义了预占的生命周期状态。
// 状态流转是单向的：pending 是唯一的非终态，进入终态后不可再变更。
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"   // 等待确认或取消
	StatusConfirmed ReservationStatus = "confirmed" // 已出库（终态）
	StatusCancelled ReservationStatus = "cancelled" // 已取消，额度已归还（终态）
	StatusExpired   ReservationStatus = "expired"   // 超时被清理器释放（终态）
)

// Reservation 是对某个商品可用库存的限时占用。
// Quantity 创建后不可变，引用 Stock 但不拥有它。
type Reservation struct {
	ID        string
	ProductID string
	Quantity  int64
	Holder    string // 预占人（用户/会话标识）
	OrderRef  string // 幂等/关联键，可为空
	Status    ReservationStatus

	ExpiresAt   time.Time
	CreatedAt   time.Time
	ConfirmedAt time.Time
	CancelledAt time.Time
	// CancelReason 取消或过期的原因说明
	CancelReason string
}

// NewReservation 工厂函数：创建一个 pending 状态的预占。
func NewReservation(productID string, quantity int64, holder, orderRef string, ttl time.Duration, now time.Time) *Reservation {
	return &Reservation{
		ID:        uuid.New().String(),
		ProductID: productID,
		Quantity:  quantity,
		Holder:    holder,
		OrderRef:  orderRef,
		Status:    StatusPending,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// IsExpired 判断预占是否已过有效期。
// 过期的 pending 预占是"惰性"的：确认必须拒绝它，但额度要等清理器或显式取消才归还。
func (r *Reservation) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Confirm 把预占流转到 confirmed。
// 只有 pending 且未过期的预占可以确认。
func (r *Reservation) Confirm(now time.Time) error {
	if r.Status != StatusPending {
		return ErrInvalidState
	}
	if r.IsExpired(now) {
		return ErrReservationExpired
	}
	r.Status = StatusConfirmed
	r.ConfirmedAt = now
	return nil
}

// Cancel 把预占流转到 cancelled。
func (r *Reservation) Cancel(now time.Time, reason string) error {
	if r.Status != StatusPending {
		return ErrInvalidState
	}
	r.Status = StatusCancelled
	r.CancelledAt = now
	r.CancelReason = reason
	return nil
}

// Expire 把预占流转到 expired，只对已过期的 pending 预占生效。
// 取消和过期争用同一个预占时，状态检查保证只有一方成功。
func (r *Reservation) Expire(now time.Time) error {
	if r.Status != StatusPending {
		return ErrInvalidState
	}
	if !r.IsExpired(now) {
		return ErrNotExpired
	}
	r.Status = StatusExpired
	r.CancelledAt = now
	r.CancelReason = "reservation ttl exceeded"
	return nil
}
