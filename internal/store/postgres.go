package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/traderisk/trade-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Position rows are locked FOR UPDATE inside trade transactions; portfolio
// writes are version-checked.
type PostgresStore struct {
	db   querier
	pool *pgxpool.Pool
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same query
// methods serve pooled and transactional execution.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool, pool: pool}
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, username, email, role, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.Email, u.Role, u.CreatedAt,
	)
	return mapPgError(err)
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(ctx,
		`SELECT id, username, email, role, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	return &u, nil
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// --- Instruments ---

func (s *PostgresStore) CreateInstrument(ctx context.Context, in *model.Instrument) error {
	var price *string
	if in.CurrentPrice != nil {
		v := in.CurrentPrice.String()
		price = &v
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO instruments (id, symbol, name, current_price)
		 VALUES ($1, $2, $3, $4::NUMERIC)`,
		in.ID, in.Symbol, in.Name, price,
	)
	return mapPgError(err)
}

func (s *PostgresStore) GetInstrument(ctx context.Context, id string) (*model.Instrument, error) {
	var in model.Instrument
	var price *string
	err := s.db.QueryRow(ctx,
		`SELECT id, symbol, name, current_price::TEXT FROM instruments WHERE id = $1`, id).
		Scan(&in.ID, &in.Symbol, &in.Name, &price)
	if err != nil {
		return nil, mapPgError(err)
	}
	if price != nil {
		p, _ := decimal.NewFromString(*price)
		in.CurrentPrice = &p
	}
	return &in, nil
}

func (s *PostgresStore) InstrumentExistsBySymbol(ctx context.Context, symbol string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM instruments WHERE UPPER(symbol) = UPPER($1))`, symbol).
		Scan(&exists)
	return exists, err
}

func (s *PostgresStore) ListInstruments(ctx context.Context, limit, offset int) ([]model.Instrument, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, symbol, name, current_price::TEXT
		 FROM instruments ORDER BY symbol LIMIT $1 OFFSET $2`,
		nullableLimit(limit), offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	instruments := []model.Instrument{}
	for rows.Next() {
		var in model.Instrument
		var price *string
		if err := rows.Scan(&in.ID, &in.Symbol, &in.Name, &price); err != nil {
			return nil, err
		}
		if price != nil {
			p, _ := decimal.NewFromString(*price)
			in.CurrentPrice = &p
		}
		instruments = append(instruments, in)
	}
	return instruments, rows.Err()
}

// --- Portfolios ---

func (s *PostgresStore) CreatePortfolio(ctx context.Context, p *model.Portfolio) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO portfolios (id, user_id, total_value, version)
		 VALUES ($1, $2, $3::NUMERIC, $4)`,
		p.ID, p.UserID, p.TotalValue.String(), p.Version,
	)
	return mapPgError(err)
}

func (s *PostgresStore) GetPortfolio(ctx context.Context, id string) (*model.Portfolio, error) {
	return s.scanPortfolio(s.db.QueryRow(ctx,
		`SELECT id, user_id, total_value::TEXT, version FROM portfolios WHERE id = $1`, id))
}

func (s *PostgresStore) GetPortfolioByUser(ctx context.Context, userID string) (*model.Portfolio, error) {
	return s.scanPortfolio(s.db.QueryRow(ctx,
		`SELECT id, user_id, total_value::TEXT, version FROM portfolios WHERE user_id = $1`, userID))
}

func (s *PostgresStore) scanPortfolio(row pgx.Row) (*model.Portfolio, error) {
	var p model.Portfolio
	var total string
	if err := row.Scan(&p.ID, &p.UserID, &total, &p.Version); err != nil {
		return nil, mapPgError(err)
	}
	p.TotalValue, _ = decimal.NewFromString(total)
	return &p, nil
}

func (s *PostgresStore) ListPortfolios(ctx context.Context, limit, offset int) ([]model.Portfolio, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, total_value::TEXT, version
		 FROM portfolios ORDER BY id LIMIT $1 OFFSET $2`,
		nullableLimit(limit), offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	portfolios := []model.Portfolio{}
	for rows.Next() {
		var p model.Portfolio
		var total string
		if err := rows.Scan(&p.ID, &p.UserID, &total, &p.Version); err != nil {
			return nil, err
		}
		p.TotalValue, _ = decimal.NewFromString(total)
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

func (s *PostgresStore) UpdatePortfolioValue(ctx context.Context, id string, total decimal.Decimal, expectedVersion int64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE portfolios SET total_value = $2::NUMERIC, version = version + 1
		 WHERE id = $1 AND version = $3`,
		id, total.String(), expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// --- Positions ---

func (s *PostgresStore) GetPosition(ctx context.Context, portfolioID, instrumentID string) (*model.Position, error) {
	return s.scanPosition(s.db.QueryRow(ctx,
		`SELECT id, portfolio_id, instrument_id, quantity, avg_price::TEXT, version
		 FROM positions WHERE portfolio_id = $1 AND instrument_id = $2`,
		portfolioID, instrumentID))
}

func (s *PostgresStore) GetPositionForUpdate(ctx context.Context, portfolioID, instrumentID string) (*model.Position, error) {
	return s.scanPosition(s.db.QueryRow(ctx,
		`SELECT id, portfolio_id, instrument_id, quantity, avg_price::TEXT, version
		 FROM positions WHERE portfolio_id = $1 AND instrument_id = $2 FOR UPDATE`,
		portfolioID, instrumentID))
}

func (s *PostgresStore) scanPosition(row pgx.Row) (*model.Position, error) {
	var p model.Position
	var avg string
	if err := row.Scan(&p.ID, &p.PortfolioID, &p.InstrumentID, &p.Quantity, &avg, &p.Version); err != nil {
		return nil, mapPgError(err)
	}
	p.AvgPrice, _ = decimal.NewFromString(avg)
	return &p, nil
}

func (s *PostgresStore) CreatePosition(ctx context.Context, p *model.Position) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO positions (id, portfolio_id, instrument_id, quantity, avg_price, version)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
		p.ID, p.PortfolioID, p.InstrumentID, p.Quantity, p.AvgPrice.String(), p.Version,
	)
	return mapPgError(err)
}

func (s *PostgresStore) UpdatePosition(ctx context.Context, p *model.Position) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE positions SET quantity = $2, avg_price = $3::NUMERIC, version = version + 1
		 WHERE id = $1`,
		p.ID, p.Quantity, p.AvgPrice.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeletePosition(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListHoldings(ctx context.Context, portfolioID string) ([]model.Holding, error) {
	rows, err := s.db.Query(ctx,
		`SELECT p.id, p.portfolio_id, p.instrument_id, p.quantity, p.avg_price::TEXT, p.version,
		        i.symbol, i.current_price::TEXT
		 FROM positions p
		 JOIN instruments i ON i.id = p.instrument_id
		 WHERE p.portfolio_id = $1
		 ORDER BY i.symbol`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		var h model.Holding
		var avg string
		var price *string
		if err := rows.Scan(&h.ID, &h.PortfolioID, &h.InstrumentID, &h.Quantity, &avg, &h.Version,
			&h.Symbol, &price); err != nil {
			return nil, err
		}
		h.AvgPrice, _ = decimal.NewFromString(avg)
		if price != nil {
			p, _ := decimal.NewFromString(*price)
			h.CurrentPrice = &p
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// --- Trades ---

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO trades (id, user_id, instrument_id, quantity, price, side, status, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8)`,
		t.ID, t.UserID, t.InstrumentID, t.Quantity, t.Price.String(), t.Side, t.Status, t.Timestamp,
	)
	return mapPgError(err)
}

func (s *PostgresStore) UpdateTradeStatus(ctx context.Context, id, status string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE trades SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListTrades(ctx context.Context, f TradeFilter) ([]model.Trade, error) {
	query := `SELECT id, user_id, instrument_id, quantity, price::TEXT, side, status, timestamp
	          FROM trades WHERE 1=1`
	args := []any{}
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if f.InstrumentID != "" {
		query += ` AND instrument_id = ` + arg(f.InstrumentID)
	}
	if !f.Start.IsZero() {
		query += ` AND timestamp >= ` + arg(f.Start)
	}
	if !f.End.IsZero() {
		query += ` AND timestamp <= ` + arg(f.End)
	}
	query += ` ORDER BY timestamp DESC LIMIT ` + arg(nullableLimit(f.Limit)) + ` OFFSET ` + arg(f.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := []model.Trade{}
	for rows.Next() {
		var t model.Trade
		var price string
		if err := rows.Scan(&t.ID, &t.UserID, &t.InstrumentID, &t.Quantity, &price,
			&t.Side, &t.Status, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Price, _ = decimal.NewFromString(price)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// --- Risk metrics ---

func (s *PostgresStore) InsertRiskMetric(ctx context.Context, m *model.RiskMetric) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO risk_metrics (id, portfolio_id, total_exposure, concentration_risk, risk_score, timestamp)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)`,
		m.ID, m.PortfolioID, m.TotalExposure.String(), m.ConcentrationRisk.String(),
		m.RiskScore.String(), m.Timestamp,
	)
	return mapPgError(err)
}

func (s *PostgresStore) ListRiskMetrics(ctx context.Context, portfolioID string, f RiskFilter) ([]model.RiskMetric, error) {
	query := `SELECT id, portfolio_id, total_exposure::TEXT, concentration_risk::TEXT, risk_score::TEXT, timestamp
	          FROM risk_metrics WHERE portfolio_id = $1`
	args := []any{portfolioID}
	n := 1
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if !f.Start.IsZero() {
		query += ` AND timestamp >= ` + arg(f.Start)
	}
	if !f.End.IsZero() {
		query += ` AND timestamp <= ` + arg(f.End)
	}
	query += ` ORDER BY timestamp DESC LIMIT ` + arg(nullableLimit(f.Limit)) + ` OFFSET ` + arg(f.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metrics := []model.RiskMetric{}
	for rows.Next() {
		var m model.RiskMetric
		var exposure, concentration, score string
		if err := rows.Scan(&m.ID, &m.PortfolioID, &exposure, &concentration, &score, &m.Timestamp); err != nil {
			return nil, err
		}
		m.TotalExposure, _ = decimal.NewFromString(exposure)
		m.ConcentrationRisk, _ = decimal.NewFromString(concentration)
		m.RiskScore, _ = decimal.NewFromString(score)
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// --- Audit ---

func (s *PostgresStore) InsertAuditLog(ctx context.Context, a *model.AuditLog) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO audit_logs (id, user_id, action, timestamp)
		 VALUES ($1, $2, $3, $4)`,
		a.ID, a.UserID, a.Action, a.Timestamp,
	)
	return mapPgError(err)
}

// --- Transactions ---

// RunInTransaction runs fn inside a single database transaction. The fn
// receives a store bound to the transaction, so row locks taken by
// GetPositionForUpdate hold until commit or rollback.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		// Already inside a transaction; run against the same one.
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PostgresStore{db: tx})
	})
}

// nullableLimit converts limit<=0 into SQL NULL (LIMIT ALL).
func nullableLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
