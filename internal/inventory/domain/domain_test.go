package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReservationLifecycle(t *testing.T) {
	now := time.Now()
	r := NewReservation("p1", 5, "alice", "order-1", 30*time.Minute, now)

	require.Equal(t, StatusPending, r.Status)
	require.Equal(t, int64(5), r.Quantity)
	require.False(t, r.IsExpired(now))
	require.True(t, r.IsExpired(now.Add(31*time.Minute)))

	require.NoError(t, r.Confirm(now.Add(time.Minute)))
	require.Equal(t, StatusConfirmed, r.Status)
	require.False(t, r.ConfirmedAt.IsZero())

	// 终态后任何流转都被拒绝
	require.ErrorIs(t, r.Cancel(now, "changed my mind"), ErrInvalidState)
	require.ErrorIs(t, r.Confirm(now), ErrInvalidState)
	require.ErrorIs(t, r.Expire(now.Add(time.Hour)), ErrInvalidState)
}

func TestReservationConfirmExpired(t *testing.T) {
	now := time.Now()
	r := NewReservation("p1", 5, "alice", "", time.Minute, now)

	err := r.Confirm(now.Add(2 * time.Minute))
	require.ErrorIs(t, err, ErrReservationExpired)
	// 确认被拒绝后状态保持 pending，额度归还交给清理器
	require.Equal(t, StatusPending, r.Status)
}

func TestReservationCancel(t *testing.T) {
	now := time.Now()
	r := NewReservation("p1", 3, "bob", "", time.Minute, now)

	require.NoError(t, r.Cancel(now, "customer abandoned cart"))
	require.Equal(t, StatusCancelled, r.Status)
	require.Equal(t, "customer abandoned cart", r.CancelReason)
	require.False(t, r.CancelledAt.IsZero())
}

func TestReservationExpire(t *testing.T) {
	now := time.Now()
	r := NewReservation("p1", 3, "bob", "", time.Minute, now)

	// 未到期的预占不能被清理器释放
	require.ErrorIs(t, r.Expire(now.Add(30*time.Second)), ErrNotExpired)
	require.Equal(t, StatusPending, r.Status)

	require.NoError(t, r.Expire(now.Add(2*time.Minute)))
	require.Equal(t, StatusExpired, r.Status)
}

func TestStockHelpers(t *testing.T) {
	s := &Stock{ProductID: "p1", Physical: 100, Reserved: 30, Available: 70, MinStockLevel: 80, ReorderPoint: 75}

	require.True(t, s.IsLowStock())
	require.True(t, s.NeedsReorder())
	require.False(t, s.InvariantViolated())

	s.Available = 60
	require.True(t, s.InvariantViolated())

	s = &Stock{Physical: 10, Reserved: 12, Available: -2}
	require.True(t, s.InvariantViolated())
}

func TestInsufficientStockError(t *testing.T) {
	err := &InsufficientStockError{ProductID: "p1", Available: 3, Requested: 10}

	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Contains(t, err.Error(), "p1")
	require.Contains(t, err.Error(), "available=3")

	var detailed *InsufficientStockError
	require.True(t, errors.As(error(err), &detailed))
	require.Equal(t, int64(3), detailed.Available)
}
