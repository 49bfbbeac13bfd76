// internal/inventory/infrastructure/memory_repository.go
package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"lager/internal/inventory/domain"
)

// memState 是内存仓储的全部可变数据，事务回滚靠整体快照恢复。
type memState struct {
	stocks       map[string]*domain.Stock
	reservations map[string]*domain.Reservation
	ledger       []domain.LedgerEntry
}

func newMemState() *memState {
	return &memState{
		stocks:       make(map[string]*domain.Stock),
		reservations: make(map[string]*domain.Reservation),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.stocks {
		cp := *v
		c.stocks[k] = &cp
	}
	for k, v := range s.reservations {
		cp := *v
		c.reservations[k] = &cp
	}
	c.ledger = make([]domain.LedgerEntry, len(s.ledger))
	copy(c.ledger, s.ledger)
	return c
}

// MemoryRepository 是 domain.Repository 的进程内实现，
// 语义与 GORM 实现对齐：Transact 持独占锁串行执行并支持回滚，
// AdjustStockVersioned 是同样的版本条件写。测试与单机模式使用它。
type MemoryRepository struct {
	mu    *sync.RWMutex
	state *memState
	inTx  bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		mu:    &sync.RWMutex{},
		state: newMemState(),
	}
}

// Transact 全局独占执行 fn。事务内的仓储句柄复用同一份状态但不再取锁，
// fn 报错时用进入事务前的快照整体恢复。
func (r *MemoryRepository) Transact(ctx context.Context, fn func(tx domain.Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.state.clone()
	tx := &MemoryRepository{mu: r.mu, state: r.state, inTx: true}
	if err := fn(tx); err != nil {
		r.state.stocks = snapshot.stocks
		r.state.reservations = snapshot.reservations
		r.state.ledger = snapshot.ledger
		return err
	}
	return nil
}

func (r *MemoryRepository) rlock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.RLock()
	return r.mu.RUnlock
}

func (r *MemoryRepository) wlock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *MemoryRepository) CreateStock(ctx context.Context, stock *domain.Stock) error {
	defer r.wlock()()
	if _, ok := r.state.stocks[stock.ProductID]; ok {
		return domain.ErrStockExists
	}
	cp := *stock
	r.state.stocks[stock.ProductID] = &cp
	return nil
}

func (r *MemoryRepository) GetStock(ctx context.Context, productID string) (*domain.Stock, error) {
	defer r.rlock()()
	s, ok := r.state.stocks[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	cp := *s
	return &cp, nil
}

// LockStock 在内存实现里与 GetStock 等价：事务本身已经全局独占。
func (r *MemoryRepository) LockStock(ctx context.Context, productID string) (*domain.Stock, error) {
	return r.GetStock(ctx, productID)
}

func (r *MemoryRepository) AdjustStock(ctx context.Context, productID string, physicalDelta, reservedDelta int64) error {
	defer r.wlock()()
	s, ok := r.state.stocks[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	physical := s.Physical + physicalDelta
	reserved := s.Reserved + reservedDelta
	available := physical - reserved
	if physical < 0 || reserved < 0 || available < 0 {
		return &domain.InsufficientStockError{
			ProductID: productID,
			Available: s.Available,
			Requested: reservedDelta,
		}
	}
	s.Physical = physical
	s.Reserved = reserved
	s.Available = available
	s.Version++
	s.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) AdjustStockVersioned(ctx context.Context, productID string, expectedVersion, reservedDelta int64) (bool, error) {
	defer r.wlock()()
	s, ok := r.state.stocks[productID]
	if !ok {
		return false, domain.ErrProductNotFound
	}
	if s.Version != expectedVersion || s.Available < reservedDelta {
		return false, nil
	}
	s.Reserved += reservedDelta
	s.Available -= reservedDelta
	s.Version++
	s.UpdatedAt = time.Now()
	return true, nil
}

func (r *MemoryRepository) CreateReservation(ctx context.Context, reservation *domain.Reservation) error {
	defer r.wlock()()
	cp := *reservation
	r.state.reservations[reservation.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	defer r.rlock()()
	res, ok := r.state.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	cp := *res
	return &cp, nil
}

func (r *MemoryRepository) LockReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	return r.GetReservation(ctx, id)
}

func (r *MemoryRepository) SaveReservation(ctx context.Context, reservation *domain.Reservation) error {
	defer r.wlock()()
	if _, ok := r.state.reservations[reservation.ID]; !ok {
		return domain.ErrReservationNotFound
	}
	cp := *reservation
	r.state.reservations[reservation.ID] = &cp
	return nil
}

func (r *MemoryRepository) PendingByOrderRef(ctx context.Context, productID, orderRef string) (*domain.Reservation, error) {
	defer r.rlock()()
	for _, res := range r.state.reservations {
		if res.ProductID == productID && res.OrderRef == orderRef && res.Status == domain.StatusPending {
			cp := *res
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ExpiredPending(ctx context.Context, now time.Time, limit int) ([]string, error) {
	defer r.rlock()()
	type candidate struct {
		id        string
		expiresAt time.Time
	}
	var found []candidate
	for _, res := range r.state.reservations {
		if res.Status == domain.StatusPending && res.ExpiresAt.Before(now) {
			found = append(found, candidate{id: res.ID, expiresAt: res.ExpiresAt})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].expiresAt.Before(found[j].expiresAt) })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	ids := make([]string, 0, len(found))
	for _, c := range found {
		ids = append(ids, c.id)
	}
	return ids, nil
}

func (r *MemoryRepository) PendingQuantitySum(ctx context.Context, productID string) (int64, error) {
	defer r.rlock()()
	var sum int64
	for _, res := range r.state.reservations {
		if res.ProductID == productID && res.Status == domain.StatusPending {
			sum += res.Quantity
		}
	}
	return sum, nil
}

func (r *MemoryRepository) CountRecentPending(ctx context.Context, productID string, since time.Time) (int64, error) {
	defer r.rlock()()
	var count int64
	for _, res := range r.state.reservations {
		if res.ProductID == productID && res.Status == domain.StatusPending && !res.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) AppendLedger(ctx context.Context, entry *domain.LedgerEntry) error {
	defer r.wlock()()
	r.state.ledger = append(r.state.ledger, *entry)
	return nil
}

func (r *MemoryRepository) LedgerByProduct(ctx context.Context, productID string, limit int) ([]domain.LedgerEntry, error) {
	defer r.rlock()()
	var out []domain.LedgerEntry
	for i := len(r.state.ledger) - 1; i >= 0; i-- {
		if r.state.ledger[i].ProductID == productID {
			out = append(out, r.state.ledger[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
