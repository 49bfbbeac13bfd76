package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lager/internal/inventory/domain"
	"lager/internal/inventory/infrastructure"
)

// sequenceRepo 记录事务内关键调用的先后顺序。
type sequenceRepo struct {
	domain.Repository
	calls *[]string
}

func (r *sequenceRepo) Transact(ctx context.Context, fn func(tx domain.Repository) error) error {
	return r.Repository.Transact(ctx, func(tx domain.Repository) error {
		return fn(&sequenceRepo{Repository: tx, calls: r.calls})
	})
}

func (r *sequenceRepo) LockStock(ctx context.Context, productID string) (*domain.Stock, error) {
	*r.calls = append(*r.calls, "lock_stock")
	return r.Repository.LockStock(ctx, productID)
}

func (r *sequenceRepo) PendingByOrderRef(ctx context.Context, productID, orderRef string) (*domain.Reservation, error) {
	*r.calls = append(*r.calls, "pending_by_order_ref")
	return r.Repository.PendingByOrderRef(ctx, productID, orderRef)
}

// 幂等检查必须发生在排它守卫之后。守卫之前的读在 MySQL 的可重复读
// 隔离级别下用的是早于对方提交的快照，两个携带同一订单引用的并发
// 预占会互相看不见，各自创建一条 pending 记录；守卫之后的读则建立
// 在先到者提交之后的快照上，能看到并复用对方的预占。
func TestPessimisticDedupRunsUnderGuard(t *testing.T) {
	ctx := context.Background()
	mem := infrastructure.NewMemoryRepository()
	require.NoError(t, mem.CreateStock(ctx, &domain.Stock{ProductID: "p1", UpdatedAt: time.Now()}))
	require.NoError(t, mem.AdjustStock(ctx, "p1", 100, 0))

	var calls []string
	repo := &sequenceRepo{Repository: mem, calls: &calls}
	strategy := NewPessimisticStrategy(repo)

	result, err := strategy.Reserve(ctx, ReserveRequest{
		ProductID: "p1", Quantity: 10, Holder: "alice", OrderRef: "order-1", TTL: time.Hour,
	})
	require.NoError(t, err)
	require.False(t, result.Reused)
	require.Equal(t, []string{"lock_stock", "pending_by_order_ref"}, calls)

	// 第二次提交同一引用：守卫下的检查看到已有预占并复用
	calls = calls[:0]
	result, err = strategy.Reserve(ctx, ReserveRequest{
		ProductID: "p1", Quantity: 10, Holder: "alice", OrderRef: "order-1", TTL: time.Hour,
	})
	require.NoError(t, err)
	require.True(t, result.Reused)
	require.Equal(t, []string{"lock_stock", "pending_by_order_ref"}, calls)

	stock, err := mem.GetStock(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int64(10), stock.Reserved)
}
