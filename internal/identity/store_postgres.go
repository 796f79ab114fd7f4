package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "parley").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("identity: empty schema")
		}
		if !identRE.MatchString(schema) {
			return errors.New("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed identity store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "parley",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	return st, nil
}

// FindByDisplayName looks up an identity by its reconciliation key.
func (s *PostgresStore) FindByDisplayName(ctx context.Context, displayName string) (Identity, error) {
	if s == nil || s.pool == nil {
		return Identity{}, errors.New("identity: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	users := pgx.Identifier{s.schema, "users"}.Sanitize()

	var id Identity
	err := s.pool.QueryRow(ctx,
		`SELECT id, uuid, name, created_at FROM `+users+` WHERE name = $1 LIMIT 1`,
		displayName,
	).Scan(&id.ID, &id.PublicID, &id.DisplayName, &id.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, fmt.Errorf("identity %q: %w", displayName, ErrNotFound)
	}
	if err != nil {
		return Identity{}, err
	}
	return id, nil
}

// FindByPublicID looks up an identity by its stable public token.
func (s *PostgresStore) FindByPublicID(ctx context.Context, publicID string) (Identity, error) {
	if s == nil || s.pool == nil {
		return Identity{}, errors.New("identity: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	users := pgx.Identifier{s.schema, "users"}.Sanitize()

	var id Identity
	err := s.pool.QueryRow(ctx,
		`SELECT id, uuid, name, created_at FROM `+users+` WHERE uuid = $1 LIMIT 1`,
		publicID,
	).Scan(&id.ID, &id.PublicID, &id.DisplayName, &id.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, fmt.Errorf("identity %q: %w", publicID, ErrNotFound)
	}
	if err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Create inserts a new identity record.
func (s *PostgresStore) Create(ctx context.Context, in CreateIdentityInput) (Identity, error) {
	if s == nil || s.pool == nil {
		return Identity{}, errors.New("identity: nil store")
	}
	if in.PublicID == "" || in.DisplayName == "" {
		return Identity{}, fmt.Errorf("create identity: %w", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	users := pgx.Identifier{s.schema, "users"}.Sanitize()

	var id Identity
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+users+` (uuid, name, created_at)
		 VALUES ($1, $2, $3)
		 RETURNING id, uuid, name, created_at`,
		in.PublicID, in.DisplayName, now,
	).Scan(&id.ID, &id.PublicID, &id.DisplayName, &id.CreatedAt)
	if err != nil {
		return Identity{}, fmt.Errorf("insert identity: %w", err)
	}
	return id, nil
}

var identRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
