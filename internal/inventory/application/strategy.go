// internal/inventory/application/strategy.go
package application

import (
	"context"
	"time"

	"lager/internal/inventory/domain"
	"lager/internal/inventory/port"
	"lager/internal/pkg/logger"
)

const (
	StrategyPessimistic = "pessimistic"
	StrategyOptimistic  = "optimistic"
	StrategyAdaptive    = "adaptive"
)

// ReservationStrategy 是预占并发控制策略的统一接口。
// 悲观与乐观实现的调用约定完全一致，运行时可按配置互换。
type ReservationStrategy interface {
	Name() string
	Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error)
}

// contentionWindow 自适应策略统计竞争时回看的时间窗口
const contentionWindow = 5 * time.Minute

// StrategySelector 按配置（或按商品的竞争状况）为每个请求挑选策略。
type StrategySelector struct {
	mode        string
	pessimistic ReservationStrategy
	optimistic  ReservationStrategy

	repo    domain.Repository
	tracker port.ContentionTracker // 可为 nil，回退到数据库统计

	highContentionThreshold int64
	criticalStockThreshold  int64
}

func NewStrategySelector(mode string, pess, opt ReservationStrategy, repo domain.Repository,
	tracker port.ContentionTracker, highContention, criticalStock int64) *StrategySelector {
	return &StrategySelector{
		mode:                    mode,
		pessimistic:             pess,
		optimistic:              opt,
		repo:                    repo,
		tracker:                 tracker,
		highContentionThreshold: highContention,
		criticalStockThreshold:  criticalStock,
	}
}

// Pick 返回服务本次请求的策略。
// adaptive 模式下的启发式：高竞争且库存临界走悲观锁，其余走乐观路径，
// 乐观耗尽后的悲观回退由引擎统一处理。
func (s *StrategySelector) Pick(ctx context.Context, productID string, quantity int64) ReservationStrategy {
	switch s.mode {
	case StrategyPessimistic:
		return s.pessimistic
	case StrategyOptimistic:
		return s.optimistic
	}

	attempts := s.recentAttempts(ctx, productID)
	available := int64(-1)
	if stock, err := s.repo.GetStock(ctx, productID); err == nil {
		available = stock.Available
	}

	if attempts >= s.highContentionThreshold && available >= 0 && available <= s.criticalStockThreshold {
		return s.pessimistic
	}
	return s.optimistic
}

// recentAttempts 估算当前窗口内该商品的预占尝试数。
// 优先用 Redis 滑动窗口计数，不可用时退回数据库的 pending 统计。
func (s *StrategySelector) recentAttempts(ctx context.Context, productID string) int64 {
	if s.tracker != nil {
		if n, err := s.tracker.RecordAttempt(ctx, productID); err == nil {
			return n
		} else {
			logger.Ctx(ctx).Warn().Err(err).Str("product_id", productID).Msg("contention tracker unavailable, falling back to db count")
		}
	}
	n, err := s.repo.CountRecentPending(ctx, productID, time.Now().Add(-contentionWindow))
	if err != nil {
		return 0
	}
	return n
}
