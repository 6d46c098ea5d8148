package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/traderisk/trade-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
//
// Transactions are serialized: RunInTransaction takes a snapshot of all
// state and restores it when fn fails, so a failed trade leaves nothing
// behind, same as the SQL implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	users       map[string]*model.User
	instruments map[string]*model.Instrument
	portfolios  map[string]*model.Portfolio
	positions   map[string]*model.Position
	trades      []model.Trade
	riskMetrics []model.RiskMetric
	auditLogs   []model.AuditLog
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*model.User),
		instruments: make(map[string]*model.Instrument),
		portfolios:  make(map[string]*model.Portfolio),
		positions:   make(map[string]*model.Position),
	}
}

// --- Users ---

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) CountUsers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

// --- Instruments ---

func (s *MemoryStore) CreateInstrument(_ context.Context, in *model.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.instruments {
		if strings.EqualFold(existing.Symbol, in.Symbol) {
			return ErrDuplicate
		}
	}
	s.instruments[in.ID] = copyInstrument(in)
	return nil
}

func (s *MemoryStore) GetInstrument(_ context.Context, id string) (*model.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, ok := s.instruments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyInstrument(in), nil
}

func (s *MemoryStore) InstrumentExistsBySymbol(_ context.Context, symbol string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, in := range s.instruments {
		if strings.EqualFold(in.Symbol, symbol) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ListInstruments(_ context.Context, limit, offset int) ([]model.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]model.Instrument, 0, len(s.instruments))
	for _, in := range s.instruments {
		all = append(all, *copyInstrument(in))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Symbol < all[j].Symbol })
	return page(all, limit, offset), nil
}

// --- Portfolios ---

func (s *MemoryStore) CreatePortfolio(_ context.Context, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.portfolios {
		if existing.UserID == p.UserID {
			return ErrDuplicate
		}
	}
	cp := *p
	s.portfolios[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPortfolio(_ context.Context, id string) (*model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.portfolios[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetPortfolioByUser(_ context.Context, userID string) (*model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.portfolios {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListPortfolios(_ context.Context, limit, offset int) ([]model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]model.Portfolio, 0, len(s.portfolios))
	for _, p := range s.portfolios {
		all = append(all, *p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, limit, offset), nil
}

func (s *MemoryStore) UpdatePortfolioValue(_ context.Context, id string, total decimal.Decimal, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.portfolios[id]
	if !ok {
		return ErrNotFound
	}
	if p.Version != expectedVersion {
		return ErrVersionConflict
	}
	p.TotalValue = total
	p.Version++
	return nil
}

// --- Positions ---

func (s *MemoryStore) GetPosition(_ context.Context, portfolioID, instrumentID string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findPosition(portfolioID, instrumentID)
}

// GetPositionForUpdate matches GetPosition here; the exclusive section is
// provided by the caller's keyed lock for the in-memory deployment.
func (s *MemoryStore) GetPositionForUpdate(ctx context.Context, portfolioID, instrumentID string) (*model.Position, error) {
	return s.GetPosition(ctx, portfolioID, instrumentID)
}

func (s *MemoryStore) findPosition(portfolioID, instrumentID string) (*model.Position, error) {
	for _, p := range s.positions {
		if p.PortfolioID == portfolioID && p.InstrumentID == instrumentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreatePosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.findPosition(p.PortfolioID, p.InstrumentID); err == nil {
		return ErrDuplicate
	}
	cp := *p
	s.positions[p.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdatePosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.positions[p.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Quantity = p.Quantity
	existing.AvgPrice = p.AvgPrice
	existing.Version++
	p.Version = existing.Version
	return nil
}

func (s *MemoryStore) DeletePosition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[id]; !ok {
		return ErrNotFound
	}
	delete(s.positions, id)
	return nil
}

func (s *MemoryStore) ListHoldings(_ context.Context, portfolioID string) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var holdings []model.Holding
	for _, p := range s.positions {
		if p.PortfolioID != portfolioID {
			continue
		}
		h := model.Holding{Position: *p}
		if in, ok := s.instruments[p.InstrumentID]; ok {
			h.Symbol = in.Symbol
			if in.CurrentPrice != nil {
				cp := *in.CurrentPrice
				h.CurrentPrice = &cp
			}
		}
		holdings = append(holdings, h)
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Symbol < holdings[j].Symbol })
	return holdings, nil
}

// --- Trades ---

func (s *MemoryStore) InsertTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *t)
	return nil
}

func (s *MemoryStore) UpdateTradeStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.trades {
		if s.trades[i].ID == id {
			s.trades[i].Status = status
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) ListTrades(_ context.Context, f TradeFilter) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []model.Trade
	for _, t := range s.trades {
		if f.InstrumentID != "" && t.InstrumentID != f.InstrumentID {
			continue
		}
		if !f.Start.IsZero() && t.Timestamp.Before(f.Start) {
			continue
		}
		if !f.End.IsZero() && t.Timestamp.After(f.End) {
			continue
		}
		matched = append(matched, t)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	return page(matched, f.Limit, f.Offset), nil
}

// --- Risk metrics ---

func (s *MemoryStore) InsertRiskMetric(_ context.Context, m *model.RiskMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.riskMetrics = append(s.riskMetrics, *m)
	return nil
}

func (s *MemoryStore) ListRiskMetrics(_ context.Context, portfolioID string, f RiskFilter) ([]model.RiskMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []model.RiskMetric
	for _, m := range s.riskMetrics {
		if m.PortfolioID != portfolioID {
			continue
		}
		if !f.Start.IsZero() && m.Timestamp.Before(f.Start) {
			continue
		}
		if !f.End.IsZero() && m.Timestamp.After(f.End) {
			continue
		}
		matched = append(matched, m)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	return page(matched, f.Limit, f.Offset), nil
}

// --- Audit ---

func (s *MemoryStore) InsertAuditLog(_ context.Context, a *model.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, *a)
	return nil
}

// AuditLogs returns all recorded audit entries. Test hook, not part of Store.
func (s *MemoryStore) AuditLogs() []model.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.AuditLog, len(s.auditLogs))
	copy(out, s.auditLogs)
	return out
}

// --- Transactions ---

func (s *MemoryStore) RunInTransaction(_ context.Context, fn func(Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	users       map[string]*model.User
	instruments map[string]*model.Instrument
	portfolios  map[string]*model.Portfolio
	positions   map[string]*model.Position
	trades      []model.Trade
	riskMetrics []model.RiskMetric
	auditLogs   []model.AuditLog
}

func (s *MemoryStore) snapshot() memorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := memorySnapshot{
		users:       make(map[string]*model.User, len(s.users)),
		instruments: make(map[string]*model.Instrument, len(s.instruments)),
		portfolios:  make(map[string]*model.Portfolio, len(s.portfolios)),
		positions:   make(map[string]*model.Position, len(s.positions)),
		trades:      append([]model.Trade(nil), s.trades...),
		riskMetrics: append([]model.RiskMetric(nil), s.riskMetrics...),
		auditLogs:   append([]model.AuditLog(nil), s.auditLogs...),
	}
	for id, u := range s.users {
		cp := *u
		snap.users[id] = &cp
	}
	for id, in := range s.instruments {
		snap.instruments[id] = copyInstrument(in)
	}
	for id, p := range s.portfolios {
		cp := *p
		snap.portfolios[id] = &cp
	}
	for id, p := range s.positions {
		cp := *p
		snap.positions[id] = &cp
	}
	return snap
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = snap.users
	s.instruments = snap.instruments
	s.portfolios = snap.portfolios
	s.positions = snap.positions
	s.trades = snap.trades
	s.riskMetrics = snap.riskMetrics
	s.auditLogs = snap.auditLogs
}

// --- Helpers ---

func copyInstrument(in *model.Instrument) *model.Instrument {
	cp := *in
	if in.CurrentPrice != nil {
		price := *in.CurrentPrice
		cp.CurrentPrice = &price
	}
	return &cp
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
