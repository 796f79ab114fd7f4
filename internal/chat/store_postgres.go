package chat

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

// PostgresStore implements ChannelStore and MessageStore over PostgreSQL.
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
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chat: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("chat: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed channel + message store.
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
		return nil, errors.New("chat: nil pool")
	}
	return st, nil
}

// CreateChannel inserts a channel row and returns it.
func (s *PostgresStore) CreateChannel(ctx context.Context, name string, now time.Time) (Channel, error) {
	if s == nil || s.pool == nil {
		return Channel{}, errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Channel{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	channels := pgIdent(s.schema, "channels")

	var ch Channel
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+channels+` (name, created_at)
		 VALUES ($1, $2)
		 RETURNING id, name, created_at`,
		name, now,
	).Scan(&ch.ID, &ch.Name, &ch.CreatedAt)
	if err != nil {
		return Channel{}, fmt.Errorf("insert channel: %w", err)
	}
	return ch, nil
}

// AddMember inserts one membership row.
func (s *PostgresStore) AddMember(ctx context.Context, userID, channelID int64) error {
	if s == nil || s.pool == nil {
		return errors.New("chat: nil store")
	}
	if userID <= 0 || channelID <= 0 {
		return fmt.Errorf("add member: %w", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	members := pgIdent(s.schema, "channel_members")

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+members+` (user_id, channel_id) VALUES ($1, $2)`,
		userID, channelID,
	); err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// FindShared self-joins the membership table for a channel containing both
// users. Returns ErrNotFound when no such channel exists.
func (s *PostgresStore) FindShared(ctx context.Context, userA, userB int64) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	members := pgIdent(s.schema, "channel_members")

	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT cm1.channel_id
		   FROM `+members+` cm1
		   JOIN `+members+` cm2 ON cm1.channel_id = cm2.channel_id
		  WHERE cm1.user_id = $1 AND cm2.user_id = $2
		  ORDER BY cm1.channel_id ASC
		  LIMIT 1`,
		userA, userB,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("shared channel (%d, %d): %w", userA, userB, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AppendMessage persists one immutable message.
func (s *PostgresStore) AppendMessage(ctx context.Context, in AppendMessageInput) error {
	if s == nil || s.pool == nil {
		return errors.New("chat: nil store")
	}
	if in.ChannelID <= 0 || in.SenderID <= 0 || in.Content == "" {
		return fmt.Errorf("append message: %w", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	messages := pgIdent(s.schema, "messages")

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+messages+` (channel_id, user_id, content, created_at)
		 VALUES ($1, $2, $3, $4)`,
		in.ChannelID, in.SenderID, in.Content, now,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListByChannel returns all channel messages joined with sender name and
// public id, ordered by created_at ascending (id breaks ties so order stays
// stable within one timestamp).
func (s *PostgresStore) ListByChannel(ctx context.Context, channelID int64) ([]Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := pgIdent(s.schema, "messages")
	users := pgIdent(s.schema, "users")

	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.channel_id, m.user_id, u.uuid, u.name, m.content, m.created_at
		   FROM `+messages+` m
		   JOIN `+users+` u ON m.user_id = u.id
		  WHERE m.channel_id = $1
		  ORDER BY m.created_at ASC, m.id ASC`,
		channelID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID,
			&m.ChannelID,
			&m.SenderID,
			&m.SenderPublicID,
			&m.SenderName,
			&m.Content,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
