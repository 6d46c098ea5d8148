// Package store defines the persistence interface for the trade engine.
// Implementations include PostgreSQL (source of truth) and in-memory (for
// testing and development).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/traderisk/trade-engine/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned when a uniqueness constraint would be
	// violated (symbol, one portfolio per user, position per holding).
	ErrDuplicate = errors.New("store: duplicate resource")

	// ErrVersionConflict is returned when an optimistic write loses to a
	// concurrent update of the same row.
	ErrVersionConflict = errors.New("store: version conflict")
)

// TradeFilter selects trades for listing. Zero times mean unbounded;
// empty InstrumentID means all instruments.
type TradeFilter struct {
	InstrumentID string
	Start, End   time.Time
	Limit        int
	Offset       int
}

// RiskFilter selects risk snapshots for listing. Zero times mean unbounded.
type RiskFilter struct {
	Start, End time.Time
	Limit      int
	Offset     int
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// the engine requires atomic multi-row transactions, exclusive locking on
// Position rows by (portfolio, instrument), and version-checked writes on
// Portfolio.
type Store interface {
	// --- Users ---

	// CreateUser persists a new user.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// CountUsers returns the total number of users (seed guard).
	CountUsers(ctx context.Context) (int64, error)

	// --- Instruments ---

	// CreateInstrument persists a new instrument; ErrDuplicate on symbol reuse.
	CreateInstrument(ctx context.Context, in *model.Instrument) error

	// GetInstrument retrieves an instrument by ID.
	GetInstrument(ctx context.Context, id string) (*model.Instrument, error)

	// InstrumentExistsBySymbol reports whether a symbol is already taken.
	InstrumentExistsBySymbol(ctx context.Context, symbol string) (bool, error)

	// ListInstruments returns instruments ordered by symbol.
	ListInstruments(ctx context.Context, limit, offset int) ([]model.Instrument, error)

	// --- Portfolios ---

	// CreatePortfolio persists a new portfolio; ErrDuplicate if the user
	// already has one.
	CreatePortfolio(ctx context.Context, p *model.Portfolio) error

	// GetPortfolio retrieves a portfolio by ID.
	GetPortfolio(ctx context.Context, id string) (*model.Portfolio, error)

	// GetPortfolioByUser retrieves the portfolio owned by a user.
	GetPortfolioByUser(ctx context.Context, userID string) (*model.Portfolio, error)

	// ListPortfolios returns portfolios ordered by creation.
	ListPortfolios(ctx context.Context, limit, offset int) ([]model.Portfolio, error)

	// UpdatePortfolioValue writes a recomputed total value if and only if
	// the stored version still equals expectedVersion, bumping the version.
	// Returns ErrVersionConflict when a concurrent write got there first.
	UpdatePortfolioValue(ctx context.Context, id string, total decimal.Decimal, expectedVersion int64) error

	// --- Positions ---

	// GetPosition retrieves the position for one (portfolio, instrument)
	// holding; ErrNotFound when the trader holds none.
	GetPosition(ctx context.Context, portfolioID, instrumentID string) (*model.Position, error)

	// GetPositionForUpdate is GetPosition with an exclusive row lock for
	// the rest of the surrounding transaction.
	GetPositionForUpdate(ctx context.Context, portfolioID, instrumentID string) (*model.Position, error)

	// CreatePosition inserts a new position row.
	CreatePosition(ctx context.Context, p *model.Position) error

	// UpdatePosition writes quantity and average price, bumping the
	// position's version.
	UpdatePosition(ctx context.Context, p *model.Position) error

	// DeletePosition removes a position row (quantity reached zero).
	DeletePosition(ctx context.Context, id string) error

	// ListHoldings returns all positions for a portfolio joined with their
	// instruments, as one consistent snapshot.
	ListHoldings(ctx context.Context, portfolioID string) ([]model.Holding, error)

	// --- Trades ---

	// InsertTrade appends a trade record.
	InsertTrade(ctx context.Context, t *model.Trade) error

	// UpdateTradeStatus transitions a trade's status.
	UpdateTradeStatus(ctx context.Context, id, status string) error

	// ListTrades returns trades matching the filter, newest first.
	ListTrades(ctx context.Context, f TradeFilter) ([]model.Trade, error)

	// --- Risk metrics ---

	// InsertRiskMetric appends an immutable risk snapshot.
	InsertRiskMetric(ctx context.Context, m *model.RiskMetric) error

	// ListRiskMetrics returns snapshots for a portfolio, newest first.
	ListRiskMetrics(ctx context.Context, portfolioID string, f RiskFilter) ([]model.RiskMetric, error)

	// --- Audit ---

	// InsertAuditLog appends an audit record.
	InsertAuditLog(ctx context.Context, a *model.AuditLog) error

	// --- Transactions ---

	// RunInTransaction executes fn against a transactional view of the
	// store. If fn returns an error, every write made through that view is
	// rolled back — nothing partially applied is kept.
	RunInTransaction(ctx context.Context, fn func(Store) error) error
}
