package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

// BookStore implements domain.BookStore using PostgreSQL. Numeric columns are
// transferred as text and parsed into decimals to avoid float round-trips.
type BookStore struct {
	pool *pgxpool.Pool
}

// NewBookStore creates a BookStore backed by the given connection pool.
func NewBookStore(pool *pgxpool.Pool) *BookStore {
	return &BookStore{pool: pool}
}

// UpsertPosition writes the current state of a position, keyed by market.
func (s *BookStore) UpsertPosition(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (market, side, size, avg_price, realized_pnl, last_price, opened_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7, $8)
		ON CONFLICT (market) DO UPDATE SET
			side = EXCLUDED.side,
			size = EXCLUDED.size,
			avg_price = EXCLUDED.avg_price,
			realized_pnl = EXCLUDED.realized_pnl,
			last_price = EXCLUDED.last_price,
			opened_at = EXCLUDED.opened_at,
			updated_at = EXCLUDED.updated_at`

	var openedAt *time.Time
	if !p.OpenedAt.IsZero() {
		openedAt = &p.OpenedAt
	}

	_, err := s.pool.Exec(ctx, query,
		p.Market, string(p.Side),
		p.Size.String(), p.AvgPrice.String(), p.RealizedPnL.String(), p.LastPrice.String(),
		openedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.Market, err)
	}
	return nil
}

// LoadPositions returns every persisted position, flat records included.
func (s *BookStore) LoadPositions(ctx context.Context) ([]domain.Position, error) {
	const query = `
		SELECT market, side, size::text, avg_price::text, realized_pnl::text, last_price::text,
			opened_at, updated_at
		FROM positions`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: load positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load positions: %w", err)
	}
	return positions, nil
}

// AppendClosedTrade inserts one close-history entry. Re-inserting the same ID
// is a no-op, so a crash between apply and persist cannot double-count.
func (s *BookStore) AppendClosedTrade(ctx context.Context, ct domain.ClosedTrade) error {
	const query = `
		INSERT INTO closed_trades (id, market, side, size, entry_price, exit_price, pnl, reason, closed_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		ct.ID, ct.Market, string(ct.Side),
		ct.Size.String(), ct.EntryPrice.String(), ct.ExitPrice.String(), ct.PnL.String(),
		string(ct.Reason), ct.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append closed trade %s: %w", ct.ID, err)
	}
	return nil
}

// ListClosedTrades returns the most recent limit entries, oldest first. A
// non-positive limit returns everything.
func (s *BookStore) ListClosedTrades(ctx context.Context, limit int) ([]domain.ClosedTrade, error) {
	query := `
		SELECT id, market, side, size::text, entry_price::text, exit_price::text, pnl::text, reason, closed_at
		FROM closed_trades
		ORDER BY closed_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.ClosedTrade
	for rows.Next() {
		ct, err := scanClosedTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan closed trade: %w", err)
		}
		trades = append(trades, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list closed trades: %w", err)
	}

	// Query returns newest first; callers expect insertion order.
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades, nil
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p        domain.Position
		side     string
		size     string
		avg      string
		realized string
		last     string
		openedAt *time.Time
	)
	if err := row.Scan(&p.Market, &side, &size, &avg, &realized, &last, &openedAt, &p.UpdatedAt); err != nil {
		return domain.Position{}, err
	}

	p.Side = domain.Side(side)
	if openedAt != nil {
		p.OpenedAt = *openedAt
	}

	var err error
	if p.Size, err = decimal.NewFromString(size); err != nil {
		return domain.Position{}, err
	}
	if p.AvgPrice, err = decimal.NewFromString(avg); err != nil {
		return domain.Position{}, err
	}
	if p.RealizedPnL, err = decimal.NewFromString(realized); err != nil {
		return domain.Position{}, err
	}
	if p.LastPrice, err = decimal.NewFromString(last); err != nil {
		return domain.Position{}, err
	}
	return p, nil
}

func scanClosedTrade(row pgx.Row) (domain.ClosedTrade, error) {
	var (
		ct     domain.ClosedTrade
		side   string
		size   string
		entry  string
		exit   string
		pnl    string
		reason string
	)
	if err := row.Scan(&ct.ID, &ct.Market, &side, &size, &entry, &exit, &pnl, &reason, &ct.ClosedAt); err != nil {
		return domain.ClosedTrade{}, err
	}

	ct.Side = domain.Side(side)
	ct.Reason = domain.CloseReason(reason)

	var err error
	if ct.Size, err = decimal.NewFromString(size); err != nil {
		return domain.ClosedTrade{}, err
	}
	if ct.EntryPrice, err = decimal.NewFromString(entry); err != nil {
		return domain.ClosedTrade{}, err
	}
	if ct.ExitPrice, err = decimal.NewFromString(exit); err != nil {
		return domain.ClosedTrade{}, err
	}
	if ct.PnL, err = decimal.NewFromString(pnl); err != nil {
		return domain.ClosedTrade{}, err
	}
	return ct, nil
}
