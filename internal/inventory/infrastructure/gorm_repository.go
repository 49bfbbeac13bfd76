// internal/inventory/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lager/internal/inventory/domain"
)

// GormRepository 是 domain.Repository 的 GORM/MySQL 实现。
// 悲观守卫映射为 SELECT ... FOR UPDATE，乐观条件写映射为带版本
// 谓词的单条 UPDATE；计数器修改一律用 SQL 表达式表达相对增量，
// 进程内存里不做 read-modify-write。
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository 创建一个新的 GORM 仓储实例
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Transact 在一个数据库事务里执行 fn，fn 返回错误时回滚。
func (r *GormRepository) Transact(ctx context.Context, fn func(tx domain.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx})
	})
}

func (r *GormRepository) CreateStock(ctx context.Context, stock *domain.Stock) error {
	m := toStockModel(stock)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrStockExists
		}
		return err
	}
	return nil
}

func (r *GormRepository) GetStock(ctx context.Context, productID string) (*domain.Stock, error) {
	var m StockModel
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return toDomainStock(&m), nil
}

// LockStock 以 SELECT ... FOR UPDATE 读取库存行。
// 同一商品上的并发修改者会在这里排队，直到持锁事务提交。
func (r *GormRepository) LockStock(ctx context.Context, productID string) (*domain.Stock, error) {
	var m StockModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return toDomainStock(&m), nil
}

// AdjustStock 以相对增量原子地更新计数器。
// WHERE 里的三个谓词是不变量的最后一道防线：任何会把计数器推成
// 负数的增量都不会命中任何行。
func (r *GormRepository) AdjustStock(ctx context.Context, productID string, physicalDelta, reservedDelta int64) error {
	availableDelta := physicalDelta - reservedDelta
	res := r.db.WithContext(ctx).Model(&StockModel{}).
		Where("product_id = ?", productID).
		Where("physical_stock + ? >= 0", physicalDelta).
		Where("reserved_stock + ? >= 0", reservedDelta).
		Where("available_stock + ? >= 0", availableDelta).
		Updates(map[string]interface{}{
			"physical_stock":  gorm.Expr("physical_stock + ?", physicalDelta),
			"reserved_stock":  gorm.Expr("reserved_stock + ?", reservedDelta),
			"available_stock": gorm.Expr("available_stock + ?", availableDelta),
			"version":         gorm.Expr("version + 1"),
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// 区分记录缺失与不变量违例
		stock, err := r.GetStock(ctx, productID)
		if err != nil {
			return err
		}
		return &domain.InsufficientStockError{
			ProductID: productID,
			Available: stock.Available,
			Requested: reservedDelta,
		}
	}
	return nil
}

// AdjustStockVersioned 乐观策略的条件写。
// 版本不匹配或库存不足时不命中任何行，由调用方决定重试。
func (r *GormRepository) AdjustStockVersioned(ctx context.Context, productID string, expectedVersion, reservedDelta int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&StockModel{}).
		Where("product_id = ? AND version = ? AND available_stock >= ?", productID, expectedVersion, reservedDelta).
		Updates(map[string]interface{}{
			"reserved_stock":  gorm.Expr("reserved_stock + ?", reservedDelta),
			"available_stock": gorm.Expr("available_stock - ?", reservedDelta),
			"version":         gorm.Expr("version + 1"),
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepository) CreateReservation(ctx context.Context, reservation *domain.Reservation) error {
	return r.db.WithContext(ctx).Create(toReservationModel(reservation)).Error
}

func (r *GormRepository) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	return r.findReservation(ctx, id, false)
}

func (r *GormRepository) LockReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	return r.findReservation(ctx, id, true)
}

func (r *GormRepository) findReservation(ctx context.Context, id string, forUpdate bool) (*domain.Reservation, error) {
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var m ReservationModel
	if err := q.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, err
	}
	return toDomainReservation(&m), nil
}

// SaveReservation 只回写状态流转涉及的列，数量等创建时字段不可变。
func (r *GormRepository) SaveReservation(ctx context.Context, reservation *domain.Reservation) error {
	m := toReservationModel(reservation)
	res := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("id = ?", reservation.ID).
		Updates(map[string]interface{}{
			"status":        m.Status,
			"confirmed_at":  m.ConfirmedAt,
			"cancelled_at":  m.CancelledAt,
			"cancel_reason": m.CancelReason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

func (r *GormRepository) PendingByOrderRef(ctx context.Context, productID, orderRef string) (*domain.Reservation, error) {
	var m ReservationModel
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND order_ref = ? AND status = ?", productID, orderRef, string(domain.StatusPending)).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toDomainReservation(&m), nil
}

func (r *GormRepository) ExpiredPending(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("status = ? AND expires_at < ?", string(domain.StatusPending), now).
		Order("expires_at").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *GormRepository) PendingQuantitySum(ctx context.Context, productID string) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("product_id = ? AND status = ?", productID, string(domain.StatusPending)).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *GormRepository) CountRecentPending(ctx context.Context, productID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("product_id = ? AND status = ? AND created_at >= ?", productID, string(domain.StatusPending), since).
		Count(&count).Error
	return count, err
}

func (r *GormRepository) AppendLedger(ctx context.Context, entry *domain.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(toLedgerModel(entry)).Error
}

func (r *GormRepository) LedgerByProduct(ctx context.Context, productID string, limit int) ([]domain.LedgerEntry, error) {
	var models []LedgerModel
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LedgerEntry, 0, len(models))
	for i := range models {
		entries = append(entries, toDomainLedgerEntry(&models[i]))
	}
	return entries, nil
}
