package application

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"lager/internal/inventory/domain"
	"lager/internal/inventory/infrastructure"
)

// conflictRepo 在前 failures 次条件写上强制返回版本不匹配，
// 用来确定性地驱动乐观策略的重试路径。
type conflictRepo struct {
	domain.Repository
	failures *atomic.Int32
}

func (r *conflictRepo) Transact(ctx context.Context, fn func(tx domain.Repository) error) error {
	return r.Repository.Transact(ctx, func(tx domain.Repository) error {
		return fn(&conflictRepo{Repository: tx, failures: r.failures})
	})
}

func (r *conflictRepo) AdjustStockVersioned(ctx context.Context, productID string, expectedVersion, reservedDelta int64) (bool, error) {
	if r.failures.Load() > 0 {
		r.failures.Add(-1)
		return false, nil
	}
	return r.Repository.AdjustStockVersioned(ctx, productID, expectedVersion, reservedDelta)
}

func newConflictRepo(t *testing.T, failures int32) *conflictRepo {
	t.Helper()
	mem := infrastructure.NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, mem.CreateStock(ctx, &domain.Stock{ProductID: "p1", UpdatedAt: time.Now()}))
	require.NoError(t, mem.AdjustStock(ctx, "p1", 100, 0))

	var n atomic.Int32
	n.Store(failures)
	return &conflictRepo{Repository: mem, failures: &n}
}

func TestOptimisticRetriesThenSucceeds(t *testing.T) {
	repo := newConflictRepo(t, 2)
	strategy := NewOptimisticStrategy(repo, 3, time.Millisecond)

	result, err := strategy.Reserve(context.Background(), ReserveRequest{
		ProductID: "p1", Quantity: 10, Holder: "alice", TTL: time.Hour,
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.Attempts)
	require.Equal(t, StrategyOptimistic, result.StrategyUsed)

	stock, err := repo.GetStock(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, int64(10), stock.Reserved)

	// 失败的尝试不留任何痕迹：只有成功那次写了台账
	entries, err := repo.LedgerByProduct(context.Background(), "p1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, domain.LedgerReserve, entries[0].Type)
}

func TestOptimisticRetriesExhausted(t *testing.T) {
	repo := newConflictRepo(t, 100)
	strategy := NewOptimisticStrategy(repo, 2, time.Millisecond)

	_, err := strategy.Reserve(context.Background(), ReserveRequest{
		ProductID: "p1", Quantity: 10, Holder: "alice", TTL: time.Hour,
	})
	require.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	// 整个操作无副作用，调用方可以安全地从头重试
	stock, err := repo.GetStock(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, int64(0), stock.Reserved)
}

func TestOptimisticFallsBackToPessimistic(t *testing.T) {
	repo := newConflictRepo(t, 100)
	svc := NewStockService(repo, Config{
		Strategy:            StrategyOptimistic,
		FallbackPessimistic: true,
		MaxRetries:          1,
		BackoffBase:         time.Millisecond,
	}, otel.Tracer("test"), nil, nil, nil)

	result, err := svc.Reserve(context.Background(), ReserveRequest{
		ProductID: "p1", Quantity: 10, Holder: "alice",
	})
	require.NoError(t, err)
	require.Equal(t, StrategyPessimistic+"-fallback", result.StrategyUsed)

	stock, err := repo.GetStock(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, int64(10), stock.Reserved)
}

func TestOptimisticFallbackDisabled(t *testing.T) {
	repo := newConflictRepo(t, 100)
	svc := NewStockService(repo, Config{
		Strategy:            StrategyOptimistic,
		FallbackPessimistic: false,
		MaxRetries:          1,
		BackoffBase:         time.Millisecond,
	}, otel.Tracer("test"), nil, nil, nil)

	_, err := svc.Reserve(context.Background(), ReserveRequest{
		ProductID: "p1", Quantity: 10, Holder: "alice",
	})
	require.ErrorIs(t, err, domain.ErrConcurrencyConflict)
}
