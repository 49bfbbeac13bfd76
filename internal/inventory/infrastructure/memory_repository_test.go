package infrastructure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lager/internal/inventory/domain"
)

func seedRepo(t *testing.T, physical int64) *MemoryRepository {
	t.Helper()
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateStock(ctx, &domain.Stock{ProductID: "p1", UpdatedAt: time.Now()}))
	if physical > 0 {
		require.NoError(t, repo.AdjustStock(ctx, "p1", physical, 0))
	}
	return repo
}

func TestMemoryTransactRollback(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo(t, 100)
	boom := errors.New("boom")

	err := repo.Transact(ctx, func(tx domain.Repository) error {
		if err := tx.AdjustStock(ctx, "p1", 0, 40); err != nil {
			return err
		}
		if err := tx.CreateReservation(ctx, domain.NewReservation("p1", 40, "alice", "", time.Hour, time.Now())); err != nil {
			return err
		}
		if err := tx.AppendLedger(ctx, &domain.LedgerEntry{ID: "l1", ProductID: "p1", Type: domain.LedgerReserve, Quantity: 40}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// 事务内的全部修改都被回滚
	stock, err := repo.GetStock(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int64(0), stock.Reserved)
	require.Equal(t, int64(100), stock.Available)

	sum, err := repo.PendingQuantitySum(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int64(0), sum)

	entries, err := repo.LedgerByProduct(ctx, "p1", 0)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestMemoryAdjustStockInvariant(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo(t, 10)

	err := repo.AdjustStock(ctx, "p1", 0, 11)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	var detailed *domain.InsufficientStockError
	require.True(t, errors.As(err, &detailed))
	require.Equal(t, int64(10), detailed.Available)

	err = repo.AdjustStock(ctx, "p1", -11, 0)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	require.ErrorIs(t, repo.AdjustStock(ctx, "nope", 1, 0), domain.ErrProductNotFound)

	// 失败的调整不会动版本号
	stock, err := repo.GetStock(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int64(1), stock.Version)
}

func TestMemoryAdjustStockVersioned(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo(t, 10)

	stock, err := repo.GetStock(ctx, "p1")
	require.NoError(t, err)

	// 陈旧版本的条件写不命中
	matched, err := repo.AdjustStockVersioned(ctx, "p1", stock.Version-1, 5)
	require.NoError(t, err)
	require.False(t, matched)

	// 库存不足同样不命中，调用方无法区分两者，重读即可
	matched, err = repo.AdjustStockVersioned(ctx, "p1", stock.Version, 11)
	require.NoError(t, err)
	require.False(t, matched)

	matched, err = repo.AdjustStockVersioned(ctx, "p1", stock.Version, 5)
	require.NoError(t, err)
	require.True(t, matched)

	updated, err := repo.GetStock(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int64(5), updated.Reserved)
	require.Equal(t, int64(5), updated.Available)
	require.Equal(t, stock.Version+1, updated.Version)
}

func TestMemoryExpiredPending(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo(t, 100)
	now := time.Now()

	oldest := domain.NewReservation("p1", 1, "a", "", -2*time.Hour, now)
	middle := domain.NewReservation("p1", 1, "b", "", -time.Hour, now)
	live := domain.NewReservation("p1", 1, "c", "", time.Hour, now)
	done := domain.NewReservation("p1", 1, "d", "", -time.Hour, now)
	done.Status = domain.StatusCancelled
	for _, r := range []*domain.Reservation{middle, live, done, oldest} {
		require.NoError(t, repo.CreateReservation(ctx, r))
	}

	// 只返回过期的 pending，按过期时间从旧到新
	ids, err := repo.ExpiredPending(ctx, now, 10)
	require.NoError(t, err)
	require.Equal(t, []string{oldest.ID, middle.ID}, ids)

	ids, err = repo.ExpiredPending(ctx, now, 1)
	require.NoError(t, err)
	require.Equal(t, []string{oldest.ID}, ids)
}

func TestMemoryPendingByOrderRef(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo(t, 100)

	found, err := repo.PendingByOrderRef(ctx, "p1", "order-1")
	require.NoError(t, err)
	require.Nil(t, found)

	r := domain.NewReservation("p1", 2, "alice", "order-1", time.Hour, time.Now())
	require.NoError(t, repo.CreateReservation(ctx, r))

	found, err = repo.PendingByOrderRef(ctx, "p1", "order-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, r.ID, found.ID)

	// 进入终态后不再参与幂等去重
	r.Status = domain.StatusCancelled
	require.NoError(t, repo.SaveReservation(ctx, r))
	found, err = repo.PendingByOrderRef(ctx, "p1", "order-1")
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestMemoryCreateStockDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo(t, 0)
	err := repo.CreateStock(ctx, &domain.Stock{ProductID: "p1"})
	require.ErrorIs(t, err, domain.ErrStockExists)
}
