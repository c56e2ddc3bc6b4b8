package lending

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists positions in PostgreSQL. Amounts are stored as
// NUMERIC(78,0) so full 256-bit values round-trip without loss.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed position store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the positions table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS positions (
        address      TEXT PRIMARY KEY,
        collateral   NUMERIC(78,0) NOT NULL DEFAULT 0,
        debt         NUMERIC(78,0) NOT NULL DEFAULT 0,
        last_accrual TIMESTAMPTZ NOT NULL DEFAULT 'epoch'
    )`)
	return err
}

// Position fetches the stored position, or the zero-valued position when the
// account has never been touched.
func (s *PostgresStore) Position(ctx context.Context, address string) (Position, error) {
	row := s.db.QueryRow(ctx, `SELECT collateral::text, debt::text, last_accrual
        FROM positions WHERE address = $1`, address)
	pos, err := scanPosition(row, address)
	if errors.Is(err, pgx.ErrNoRows) {
		return Position{Address: address}.Clone(), nil
	}
	return pos, err
}

// Update locks the account row, applies fn and writes the result back inside
// one transaction. The row is created on first write.
func (s *PostgresStore) Update(ctx context.Context, address string, fn func(*Position) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// Insert-then-lock so concurrent first touches serialize on the row.
	if _, err := tx.Exec(ctx, `INSERT INTO positions (address) VALUES ($1)
        ON CONFLICT (address) DO NOTHING`, address); err != nil {
		return err
	}

	row := tx.QueryRow(ctx, `SELECT collateral::text, debt::text, last_accrual
        FROM positions WHERE address = $1 FOR UPDATE`, address)
	pos, err := scanPosition(row, address)
	if err != nil {
		return err
	}

	if err := fn(&pos); err != nil {
		return err
	}

	lastAccrual := pos.LastAccrual
	if lastAccrual.IsZero() {
		lastAccrual = time.Unix(0, 0).UTC()
	}
	if _, err := tx.Exec(ctx, `UPDATE positions
        SET collateral = $2::numeric, debt = $3::numeric, last_accrual = $4
        WHERE address = $1`,
		address, cloneInt(pos.Collateral).String(), cloneInt(pos.Debt).String(), lastAccrual.UTC()); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func scanPosition(row pgx.Row, address string) (Position, error) {
	var (
		collateral  string
		debt        string
		lastAccrual time.Time
	)
	if err := row.Scan(&collateral, &debt, &lastAccrual); err != nil {
		return Position{}, err
	}

	pos := Position{Address: address, LastAccrual: lastAccrual.UTC()}
	var ok bool
	if pos.Collateral, ok = new(big.Int).SetString(collateral, 10); !ok {
		return Position{}, fmt.Errorf("invalid collateral value %q for %s", collateral, address)
	}
	if pos.Debt, ok = new(big.Int).SetString(debt, 10); !ok {
		return Position{}, fmt.Errorf("invalid debt value %q for %s", debt, address)
	}
	if pos.LastAccrual.Unix() == 0 {
		pos.LastAccrual = time.Time{}
	}
	return pos, nil
}
