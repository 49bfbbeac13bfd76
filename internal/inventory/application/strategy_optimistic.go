// internal/inventory/application/strategy_optimistic.go
package application

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"lager/internal/inventory/domain"
	"lager/internal/pkg/logger"
)

// errVersionConflict 单次尝试里版本不匹配的内部信号，触发重试。
var errVersionConflict = errors.New("stock version conflict")

// OptimisticStrategy 不阻塞并发预占者：无守卫读取版本号，内存中计算
// 新值，然后做一次条件写（compare-and-swap 语义在存储层完成）。
// 版本不匹配说明有人并发修改了记录，从读阶段开始重试，最多
// maxRetries 次，每次之间指数退避并加抖动。耗尽后以
// ErrConcurrencyConflict 失败——高竞争下重试放大本身会拖垮吞吐，
// 这是已知的取舍而非缺陷。
type OptimisticStrategy struct {
	repo        domain.Repository
	maxRetries  int
	backoffBase time.Duration
}

func NewOptimisticStrategy(repo domain.Repository, maxRetries int, backoffBase time.Duration) *OptimisticStrategy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoffBase <= 0 {
		backoffBase = 100 * time.Millisecond
	}
	return &OptimisticStrategy{repo: repo, maxRetries: maxRetries, backoffBase: backoffBase}
}

func (s *OptimisticStrategy) Name() string { return StrategyOptimistic }

func (s *OptimisticStrategy) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	for attempt := 0; ; attempt++ {
		result, err := s.attempt(ctx, req)
		if err == nil {
			result.Attempts = attempt + 1
			result.StrategyUsed = s.Name()
			return result, nil
		}
		if !errors.Is(err, errVersionConflict) {
			return nil, err
		}

		optimisticConflicts.Inc()
		if attempt >= s.maxRetries {
			logger.Ctx(ctx).Warn().
				Str("product_id", req.ProductID).
				Int("attempts", attempt+1).
				Msg("optimistic retries exhausted")
			return nil, domain.ErrConcurrencyConflict
		}

		if err := s.backoff(ctx, attempt); err != nil {
			return nil, err
		}
		logger.Ctx(ctx).Debug().
			Str("product_id", req.ProductID).
			Int("retry", attempt+1).
			Msg("stock version conflict detected, retrying")
	}
}

// attempt 执行一次完整的 读取 -> 计算 -> 条件写 循环。
// 每次成功的预占恰好产生一条预占记录和一条台账记录；失败的尝试两者皆无。
func (s *OptimisticStrategy) attempt(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	// 读阶段：无守卫读取当前计数器和并发令牌
	stock, err := s.repo.GetStock(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if stock.Available < req.Quantity {
		return nil, &domain.InsufficientStockError{
			ProductID: req.ProductID,
			Available: stock.Available,
			Requested: req.Quantity,
		}
	}

	now := time.Now()
	reservation := domain.NewReservation(req.ProductID, req.Quantity, req.Holder, req.OrderRef, req.TTL, now)
	entry := newLedgerEntry(domain.LedgerReserve, req.ProductID, req.Quantity, req.Holder, reservation.ID, "stock reserved")

	result := &ReserveResult{}
	err = s.repo.Transact(ctx, func(tx domain.Repository) error {
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

		// 条件写：只有版本号未被他人推进且库存仍然充足时才生效
		matched, err := tx.AdjustStockVersioned(ctx, req.ProductID, stock.Version, req.Quantity)
		if err != nil {
			return err
		}
		if !matched {
			return errVersionConflict
		}

		if err := tx.CreateReservation(ctx, reservation); err != nil {
			return err
		}
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

// backoff 指数退避加抖动，打散重试风暴。
func (s *OptimisticStrategy) backoff(ctx context.Context, attempt int) error {
	delay := s.backoffBase << uint(attempt+1)
	delay += time.Duration(rand.Int63n(int64(s.backoffBase)))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
