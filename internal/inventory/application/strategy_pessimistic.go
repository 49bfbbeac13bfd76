// internal/inventory/application/strategy_pessimistic.go
package application

import (
	"context"
	"time"

	"lager/internal/inventory/domain"
)

// PessimisticStrategy 用排它行级守卫串行化同一商品上的全部预占。
// 正确性最直接：守卫内重读、判定、写入，一气呵成；吞吐上限是
// 每个商品每次锁持有时长一单，锁持有时长由事务内的三次写 I/O 决定。
type PessimisticStrategy struct {
	repo domain.Repository
}

func NewPessimisticStrategy(repo domain.Repository) *PessimisticStrategy {
	return &PessimisticStrategy{repo: repo}
}

func (s *PessimisticStrategy) Name() string { return StrategyPessimistic }

func (s *PessimisticStrategy) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	result := &ReserveResult{Attempts: 1, StrategyUsed: s.Name()}

	err := s.repo.Transact(ctx, func(tx domain.Repository) error {
		// 先获取排它守卫并在守卫下重读可用库存
		stock, err := tx.LockStock(ctx, req.ProductID)
		if err != nil {
			return err
		}

		// 幂等检查：同一订单引用下已有 pending 预占时直接复用。
		// 检查必须在守卫之后：并发的重复提交在守卫上串行化，后到者
		// 的读建立在先到者提交之后，才能看到对方刚创建的预占
		if req.OrderRef != "" {
			existing, err := tx.PendingByOrderRef(ctx, req.ProductID, req.OrderRef)
			if err != nil {
				return err
			}
			if existing != nil {
				result.Reservation = existing
				result.Reused = true
				return nil
			}
		}
		if stock.Available < req.Quantity {
			return &domain.InsufficientStockError{
				ProductID: req.ProductID,
				Available: stock.Available,
				Requested: req.Quantity,
			}
		}

		now := time.Now()
		reservation := domain.NewReservation(req.ProductID, req.Quantity, req.Holder, req.OrderRef, req.TTL, now)
		if err := tx.CreateReservation(ctx, reservation); err != nil {
			return err
		}
		if err := tx.AdjustStock(ctx, req.ProductID, 0, req.Quantity); err != nil {
			return err
		}

		entry := newLedgerEntry(domain.LedgerReserve, req.ProductID, req.Quantity, req.Holder, reservation.ID, "stock reserved")
		if err := tx.AppendLedger(ctx, entry); err != nil {
			return err
		}

		result.Reservation = reservation
		result.Entry = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
