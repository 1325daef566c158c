package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptopaylink/cryptopaylink/pkg/core"
)

const uniqueViolation = "23505"

// PostgresStore is the production IntentStore. The exactly-once confirmation
// guarantee rests on two database facts: the UPDATE is restricted to rows
// still in 'pending', and transaction_hash carries a unique index.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// EnsureSchema creates the tables and the unique transaction-hash index.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			chain TEXT NOT NULL,
			currency TEXT NOT NULL,
			recipient_wallet TEXT NOT NULL,
			price_usd DOUBLE PRECISION NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		);
		CREATE TABLE IF NOT EXISTS payments (
			id UUID PRIMARY KEY,
			product_id UUID NOT NULL REFERENCES products(id),
			buyer_email TEXT NOT NULL,
			buyer_wallet TEXT,
			amount_usd DOUBLE PRECISION NOT NULL,
			amount_crypto DOUBLE PRECISION NOT NULL,
			currency TEXT NOT NULL,
			chain TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			transaction_hash TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			confirmed_at TIMESTAMPTZ
		);
		CREATE UNIQUE INDEX IF NOT EXISTS payments_transaction_hash_key
			ON payments (transaction_hash) WHERE transaction_hash IS NOT NULL;
	`)
	return err
}

func (s *PostgresStore) CreateIntent(ctx context.Context, intent core.PaymentIntent) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO payments (id, product_id, buyer_email, buyer_wallet, amount_usd, amount_crypto, currency, chain, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		intent.ID, intent.ProductID, intent.BuyerEmail, intent.BuyerWallet,
		intent.AmountUSD, intent.AmountCrypto, intent.Currency, intent.Chain,
		intent.Status, intent.CreatedAt)
	return err
}

func (s *PostgresStore) GetIntent(ctx context.Context, id uuid.UUID) (core.PaymentIntent, error) {
	var intent core.PaymentIntent
	var buyerWallet, txHash *string
	var confirmedAt *time.Time
	err := s.db.QueryRow(ctx, `
		SELECT id, product_id, buyer_email, buyer_wallet, amount_usd, amount_crypto, currency, chain, status, transaction_hash, created_at, confirmed_at
		FROM payments WHERE id = $1`, id).Scan(
		&intent.ID, &intent.ProductID, &intent.BuyerEmail, &buyerWallet,
		&intent.AmountUSD, &intent.AmountCrypto, &intent.Currency, &intent.Chain,
		&intent.Status, &txHash, &intent.CreatedAt, &confirmedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.PaymentIntent{}, core.ErrIntentNotFound
	}
	if err != nil {
		return core.PaymentIntent{}, err
	}
	if buyerWallet != nil {
		intent.BuyerWallet = *buyerWallet
	}
	if txHash != nil {
		intent.TxHash = *txHash
	}
	if confirmedAt != nil {
		intent.ConfirmedAt = *confirmedAt
	}
	return intent, nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, id uuid.UUID) (core.Product, error) {
	var product core.Product
	err := s.db.QueryRow(ctx, `
		SELECT id, name, chain, currency, recipient_wallet, price_usd, is_active
		FROM products WHERE id = $1`, id).Scan(
		&product.ID, &product.Name, &product.Chain, &product.Currency,
		&product.RecipientWallet, &product.PriceUSD, &product.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Product{}, core.ErrProductNotFound
	}
	if err != nil {
		return core.Product{}, err
	}
	return product, nil
}

func (s *PostgresStore) ConfirmIntent(ctx context.Context, id uuid.UUID, txHash string, confirmedAt time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE payments
		SET status = 'confirmed', transaction_hash = $2, confirmed_at = $3
		WHERE id = $1 AND status = 'pending'`,
		id, txHash, confirmedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.ErrDuplicateTransaction
		}
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	// no row updated: the intent is gone or a racing call got there first
	intent, getErr := s.GetIntent(ctx, id)
	if getErr != nil {
		return getErr
	}
	switch intent.Status {
	case core.StatusConfirmed:
		return ErrAlreadyConfirmed
	case core.StatusFailed:
		return ErrAlreadyFailed
	}
	return fmt.Errorf("intent %v not transitioned and still %v", id, intent.Status)
}

func (s *PostgresStore) FailIntent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE payments SET status = 'failed' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	intent, getErr := s.GetIntent(ctx, id)
	if getErr != nil {
		return getErr
	}
	switch intent.Status {
	case core.StatusConfirmed:
		return ErrAlreadyConfirmed
	case core.StatusFailed:
		return ErrAlreadyFailed
	}
	return fmt.Errorf("intent %v not transitioned and still %v", id, intent.Status)
}
