// internal/inventory/application/service.go
package application

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"lager/internal/inventory/domain"
	"lager/internal/inventory/port"
	"lager/internal/pkg/logger"
)

// sweepConcurrency 清理器同时处理的预占数上限
const sweepConcurrency = 8

// Config 是引擎的业务参数。数值默认值是可调配置，不是契约。
type Config struct {
	Strategy            string        // pessimistic / optimistic / adaptive
	FallbackPessimistic bool          // 乐观耗尽后回退悲观再试一次
	DefaultTTL          time.Duration // 预占默认有效期
	MaxRetries          int           // 乐观最大重试次数
	BackoffBase         time.Duration // 乐观退避基数
	SweepBatchSize      int           // 单次清理批量上限

	HighContentionThreshold int64
	CriticalStockThreshold  int64
}

// StockService 是预占引擎：编排可用性检查、预占、确认、取消、
// 过期清理和入库，并把具体的并发控制委托给可插拔的策略实现。
// 所有状态变更都发生在仓储的事务边界内；缓存失效和事件发布在
// 提交之后进行，尽力而为。
type StockService struct {
	repo     domain.Repository
	selector *StrategySelector
	fallback ReservationStrategy // 悲观路径，供乐观失败后回退

	cache     port.AvailabilityCache // 可为 nil
	publisher port.EventPublisher    // 可为 nil
	tracer    trace.Tracer
	cfg       Config
}

func NewStockService(repo domain.Repository, cfg Config, tracer trace.Tracer,
	cache port.AvailabilityCache, publisher port.EventPublisher, tracker port.ContentionTracker) *StockService {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 30 * time.Minute
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 200
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyPessimistic
	}

	pess := NewPessimisticStrategy(repo)
	opt := NewOptimisticStrategy(repo, cfg.MaxRetries, cfg.BackoffBase)
	selector := NewStrategySelector(cfg.Strategy, pess, opt, repo, tracker,
		cfg.HighContentionThreshold, cfg.CriticalStockThreshold)

	return &StockService{
		repo:      repo,
		selector:  selector,
		fallback:  pess,
		cache:     cache,
		publisher: publisher,
		tracer:    tracer,
		cfg:       cfg,
	}
}

// CheckAvailability 检查给定数量当前是否可满足。
// 这是建议性的快路径：优先走缓存视图，未命中再读库并回填。
// 它不预占任何东西，预占操作会在自己的守卫下重新校验。
func (s *StockService) CheckAvailability(ctx context.Context, productID string, quantity int64) (*AvailabilityResult, error) {
	ctx, span := s.tracer.Start(ctx, "engine.CheckAvailability")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int64("quantity", quantity))

	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	view := s.cachedView(ctx, productID)
	if view == nil {
		stock, err := s.repo.GetStock(ctx, productID)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				// 与旧接口保持一致：未知商品按"不可满足"返回
				return &AvailabilityResult{Satisfiable: false, Available: 0, Requested: quantity}, nil
			}
			span.RecordError(err)
			return nil, err
		}
		view = &port.AvailabilityView{Available: stock.Available, MinStockLevel: stock.MinStockLevel}
		if s.cache != nil {
			if err := s.cache.SetView(ctx, productID, *view); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("failed to populate availability cache")
			}
		}
	}

	return &AvailabilityResult{
		Satisfiable:     view.Available >= quantity,
		Available:       view.Available,
		Requested:       quantity,
		LowStockWarning: view.Available <= view.MinStockLevel,
	}, nil
}

func (s *StockService) cachedView(ctx context.Context, productID string) *port.AvailabilityView {
	if s.cache == nil {
		return nil
	}
	view, err := s.cache.GetView(ctx, productID)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("availability cache read failed")
		return nil
	}
	return view
}

// Reserve 按选定的并发策略为 holder 预占库存。
// order_ref 非空时幂等：已有同引用的 pending 预占会被直接返回。
func (s *StockService) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	ctx, span := s.tracer.Start(ctx, "engine.Reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", req.ProductID),
		attribute.Int64("quantity", req.Quantity),
	)

	if req.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if req.ProductID == "" {
		return nil, domain.ErrProductNotFound
	}
	if req.TTL <= 0 {
		req.TTL = s.cfg.DefaultTTL
	}

	strategy := s.selector.Pick(ctx, req.ProductID, req.Quantity)
	span.SetAttributes(attribute.String("strategy", strategy.Name()))

	start := time.Now()
	result, err := strategy.Reserve(ctx, req)

	// 文档化的回退：乐观重试耗尽后经悲观路径再试一次，而不是立刻把失败抛给调用方
	if err != nil && errors.Is(err, domain.ErrConcurrencyConflict) && s.cfg.FallbackPessimistic && strategy.Name() != StrategyPessimistic {
		logger.Ctx(ctx).Info().Str("product_id", req.ProductID).Msg("optimistic path exhausted, falling back to pessimistic")
		span.AddEvent("falling back to pessimistic strategy")
		result, err = s.fallback.Reserve(ctx, req)
		if result != nil {
			result.StrategyUsed = StrategyPessimistic + "-fallback"
		}
	}

	reserveDuration.WithLabelValues(strategy.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		reserveTotal.WithLabelValues(strategy.Name(), "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "reserve failed")
		return nil, err
	}
	reserveTotal.WithLabelValues(result.StrategyUsed, "ok").Inc()

	if !result.Reused {
		s.afterCommit(ctx, req.ProductID, result.Entry)
	}
	logger.Ctx(ctx).Info().
		Str("reservation_id", result.Reservation.ID).
		Str("product_id", req.ProductID).
		Int64("quantity", req.Quantity).
		Str("strategy", result.StrategyUsed).
		Bool("reused", result.Reused).
		Msg("stock reserved")
	return result, nil
}

// Confirm 确认预占并实际出库。这是唯一会减少实际库存的操作。
// 过期的 pending 预占在这里被拒绝，其额度要等清理器或显式取消归还。
func (s *StockService) Confirm(ctx context.Context, reservationID, actor string) (*domain.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "engine.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("reservation.id", reservationID))

	var (
		reservation *domain.Reservation
		entry       *domain.LedgerEntry
	)
	err := s.repo.Transact(ctx, func(tx domain.Repository) error {
		r, err := tx.LockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if err := r.Confirm(time.Now()); err != nil {
			return err
		}
		if _, err := tx.LockStock(ctx, r.ProductID); err != nil {
			return err
		}
		// 出库：实际库存和预占额度同时减少
		if err := tx.AdjustStock(ctx, r.ProductID, -r.Quantity, -r.Quantity); err != nil {
			return err
		}
		if err := tx.SaveReservation(ctx, r); err != nil {
			return err
		}
		entry = newLedgerEntry(domain.LedgerConfirm, r.ProductID, -r.Quantity, actor, r.ID, "reservation confirmed")
		if err := tx.AppendLedger(ctx, entry); err != nil {
			return err
		}
		reservation = r
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm failed")
		return nil, err
	}

	s.afterCommit(ctx, reservation.ProductID, entry)
	logger.Ctx(ctx).Info().
		Str("reservation_id", reservationID).
		Str("product_id", reservation.ProductID).
		Int64("quantity", reservation.Quantity).
		Msg("reservation confirmed")
	return reservation, nil
}

// Cancel 取消一个 pending 预占，把额度归还到可用库存。
// 与清理器争用同一预占时，守卫内的状态检查保证恰好一方成功。
func (s *StockService) Cancel(ctx context.Context, reservationID, actor, reason string) (*domain.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "engine.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("reservation.id", reservationID))

	reservation, entry, err := s.release(ctx, reservationID, actor, reason, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancel failed")
		return nil, err
	}

	s.afterCommit(ctx, reservation.ProductID, entry)
	logger.Ctx(ctx).Info().
		Str("reservation_id", reservationID).
		Str("product_id", reservation.ProductID).
		Str("reason", reason).
		Msg("reservation cancelled")
	return reservation, nil
}

// release 是取消和过期共用的状态流转原语。
// expire=true 时只对已过期的 pending 预占生效，台账类型记为 expire。
func (s *StockService) release(ctx context.Context, reservationID, actor, reason string, expire bool) (*domain.Reservation, *domain.LedgerEntry, error) {
	var (
		reservation *domain.Reservation
		entry       *domain.LedgerEntry
	)
	err := s.repo.Transact(ctx, func(tx domain.Repository) error {
		r, err := tx.LockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		now := time.Now()
		if expire {
			if err := r.Expire(now); err != nil {
				return err
			}
		} else {
			if err := r.Cancel(now, reason); err != nil {
				return err
			}
		}
		if _, err := tx.LockStock(ctx, r.ProductID); err != nil {
			return err
		}
		// 归还额度：预占减少，可用增加，实际库存不变
		if err := tx.AdjustStock(ctx, r.ProductID, 0, -r.Quantity); err != nil {
			return err
		}
		if err := tx.SaveReservation(ctx, r); err != nil {
			return err
		}
		ledgerType := domain.LedgerCancel
		if expire {
			ledgerType = domain.LedgerExpire
		}
		entry = newLedgerEntry(ledgerType, r.ProductID, -r.Quantity, actor, r.ID, reason)
		if err := tx.AppendLedger(ctx, entry); err != nil {
			return err
		}
		reservation = r
		return nil
	})
	return reservation, entry, err
}

// ReceiveInbound 入库：实际库存与可用库存同量增加，不触碰任何预占。
func (s *StockService) ReceiveInbound(ctx context.Context, productID string, quantity int64, actor, reason string) (*domain.Stock, error) {
	ctx, span := s.tracer.Start(ctx, "engine.ReceiveInbound")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int64("quantity", quantity))

	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	var (
		stock *domain.Stock
		entry *domain.LedgerEntry
	)
	err := s.repo.Transact(ctx, func(tx domain.Repository) error {
		if _, err := tx.LockStock(ctx, productID); err != nil {
			return err
		}
		if err := tx.AdjustStock(ctx, productID, quantity, 0); err != nil {
			return err
		}
		entry = newLedgerEntry(domain.LedgerInbound, productID, quantity, actor, "", reason)
		if err := tx.AppendLedger(ctx, entry); err != nil {
			return err
		}
		updated, err := tx.GetStock(ctx, productID)
		if err != nil {
			return err
		}
		stock = updated
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inbound failed")
		return nil, err
	}

	s.afterCommit(ctx, productID, entry)
	logger.Ctx(ctx).Info().
		Str("product_id", productID).
		Int64("quantity", quantity).
		Int64("physical", stock.Physical).
		Msg("inbound stock received")
	return stock, nil
}

// IntroduceStock 为新商品建立库存记录。计数器从零开始，之后的
// 数量变化全部经由入库和预占操作。
func (s *StockService) IntroduceStock(ctx context.Context, productID, warehouseCode string, minStockLevel, reorderPoint int64) (*domain.Stock, error) {
	ctx, span := s.tracer.Start(ctx, "engine.IntroduceStock")
	defer span.End()

	stock := &domain.Stock{
		ProductID:     productID,
		WarehouseCode: warehouseCode,
		MinStockLevel: minStockLevel,
		ReorderPoint:  reorderPoint,
		UpdatedAt:     time.Now(),
	}
	err := s.repo.Transact(ctx, func(tx domain.Repository) error {
		return tx.CreateStock(ctx, stock)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("product_id", productID).Msg("product stock introduced")
	return stock, nil
}

// SweepExpired 扫描过期而仍为 pending 的预占并释放其额度。
// 每个预占在独立事务里处理：个别失败（比如并发的确认赢了）不会
// 中断整轮清理。重复执行是幂等的，守卫内的 pending 检查保证额度
// 不会被二次归还。由外部调度器（定时器/cron）触发，引擎不自调度。
func (s *StockService) SweepExpired(ctx context.Context) (*SweepResult, error) {
	ctx, span := s.tracer.Start(ctx, "engine.SweepExpired")
	defer span.End()

	ids, err := s.repo.ExpiredPending(ctx, time.Now(), s.cfg.SweepBatchSize)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// 每个预占独立事务、并行释放；g.Go 的闭包永远返回 nil，
	// 个别失败只记录，不允许中断整轮清理
	var released atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			reservation, entry, err := s.release(gctx, id, "sweeper", "reservation ttl exceeded", true)
			if err != nil {
				// 被并发的确认/取消抢先是正常情况，跳过即可
				if !errors.Is(err, domain.ErrInvalidState) && !errors.Is(err, domain.ErrNotExpired) && !errors.Is(err, domain.ErrReservationNotFound) {
					logger.Ctx(gctx).Error().Err(err).Str("reservation_id", id).Msg("failed to expire reservation")
				}
				return nil
			}
			released.Add(1)
			sweepReleased.Inc()
			s.afterCommit(gctx, reservation.ProductID, entry)
			return nil
		})
	}
	_ = g.Wait()

	count := int(released.Load())
	span.SetAttributes(attribute.Int("released", count), attribute.Int("scanned", len(ids)))
	if count > 0 {
		logger.Ctx(ctx).Info().Int("released", count).Int("scanned", len(ids)).Msg("expired reservations swept")
	}
	return &SweepResult{ReleasedCount: count}, nil
}

// RecalculateAvailability 核对并修正 Reserved 计数与 pending 预占
// 总量之间的漂移，修正时追加一条 adjustment 台账。维护用途。
func (s *StockService) RecalculateAvailability(ctx context.Context, productID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "engine.RecalculateAvailability")
	defer span.End()

	corrected := false
	var entry *domain.LedgerEntry
	err := s.repo.Transact(ctx, func(tx domain.Repository) error {
		stock, err := tx.LockStock(ctx, productID)
		if err != nil {
			return err
		}
		sum, err := tx.PendingQuantitySum(ctx, productID)
		if err != nil {
			return err
		}
		if sum == stock.Reserved {
			return nil
		}
		delta := sum - stock.Reserved
		if err := tx.AdjustStock(ctx, productID, 0, delta); err != nil {
			return err
		}
		entry = newLedgerEntry(domain.LedgerAdjustment, productID, delta, "maintenance", "", "reserved counter drift correction")
		if err := tx.AppendLedger(ctx, entry); err != nil {
			return err
		}
		corrected = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if corrected {
		s.afterCommit(ctx, productID, entry)
		logger.Ctx(ctx).Warn().Str("product_id", productID).Msg("reserved counter drift corrected")
	}
	return corrected, nil
}

// GetStock 读取库存记录，供接口层查询使用。
func (s *StockService) GetStock(ctx context.Context, productID string) (*domain.Stock, error) {
	return s.repo.GetStock(ctx, productID)
}

// Ledger 返回商品最近的台账记录。
func (s *StockService) Ledger(ctx context.Context, productID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.LedgerByProduct(ctx, productID, limit)
}

// afterCommit 处理提交后的副作用：缓存失效和事件发布。
// 两者都是尽力而为，失败只记日志，不影响已提交的业务结果。
func (s *StockService) afterCommit(ctx context.Context, productID string, entry *domain.LedgerEntry) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, productID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("product_id", productID).Msg("availability cache invalidation failed")
		}
	}
	if s.publisher != nil && entry != nil {
		if err := s.publisher.PublishLedgerEntry(ctx, entry); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("product_id", productID).Msg("ledger event publish failed")
		}
	}
}

// newLedgerEntry 构造一条台账记录，各操作共用。
func newLedgerEntry(t domain.LedgerType, productID string, quantity int64, actor, reference, reason string) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:        uuid.New().String(),
		ProductID: productID,
		Type:      t,
		Quantity:  quantity,
		Actor:     actor,
		Reference: reference,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
}
