// Package postgres provides a PostgreSQL implementation of
// storage.SessionStore. It uses pgx/v5 for connection pooling and JSONB
// for turn payloads. Appends take a row lock on the session so sequence
// numbers stay contiguous under concurrent writers.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/storage"
)

// Store is a PostgreSQL-backed SessionStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.SessionStore at compile time.
var _ storage.SessionStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// CreateSession persists a new session.
func (s *Store) CreateSession(ctx context.Context, session *api.Session) error {
	tenantID := storage.GetTenant(ctx)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, tenant_id, goal, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		session.ID, tenantID, session.Goal, string(session.Status), session.Reason,
		session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetSession retrieves a session with its full turn history.
func (s *Store) GetSession(ctx context.Context, id string) (*api.Session, error) {
	sess, err := s.getSessionRow(ctx, id)
	if err != nil {
		return nil, err
	}

	turns, err := s.History(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Turns = turns
	return sess, nil
}

func (s *Store) getSessionRow(ctx context.Context, id string) (*api.Session, error) {
	tenantID := storage.GetTenant(ctx)

	query := `
		SELECT id, goal, status, reason, created_at, updated_at
		FROM sessions
		WHERE id = $1
	`
	args := []any{id}
	if tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	var sess api.Session
	var status string
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&sess.ID, &sess.Goal, &status, &sess.Reason, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	sess.Status = api.SessionStatus(status)
	return &sess, nil
}

// AppendTurn appends a turn inside a transaction. The session row is
// locked so concurrent appenders serialize and sequence numbers come out
// contiguous.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, turn api.Turn) (api.Turn, error) {
	tenantID := storage.GetTenant(ctx)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return api.Turn{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := "SELECT status FROM sessions WHERE id = $1"
	args := []any{sessionID}
	if tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}
	query += " FOR UPDATE"

	var status string
	err = tx.QueryRow(ctx, query, args...).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return api.Turn{}, storage.ErrNotFound
	}
	if err != nil {
		return api.Turn{}, fmt.Errorf("locking session: %w", err)
	}
	if api.SessionStatus(status).Terminal() {
		return api.Turn{}, storage.ErrTerminal
	}

	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO turns (session_id, seq, role, payload, created_at)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4 FROM turns WHERE session_id = $1
		RETURNING seq
	`,
		sessionID, string(turn.Role), []byte(turn.Payload), turn.CreatedAt,
	).Scan(&turn.Seq)
	if err != nil {
		return api.Turn{}, fmt.Errorf("inserting turn: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE sessions SET updated_at = $1 WHERE id = $2",
		time.Now().UTC(), sessionID,
	); err != nil {
		return api.Turn{}, fmt.Errorf("updating session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return api.Turn{}, fmt.Errorf("committing turn: %w", err)
	}
	return turn, nil
}

// History returns the session's turns in sequence order.
func (s *Store) History(ctx context.Context, sessionID string) ([]api.Turn, error) {
	// Existence check applies tenant scoping.
	if _, err := s.getSessionRow(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT seq, role, payload, created_at
		FROM turns
		WHERE session_id = $1
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []api.Turn
	for rows.Next() {
		var turn api.Turn
		var role string
		var payload []byte
		if err := rows.Scan(&turn.Seq, &role, &payload, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turn.Role = api.TurnRole(role)
		turn.Payload = json.RawMessage(payload)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}
	return turns, nil
}

// SetStatus moves a session to a terminal status. The guard on the
// current status makes the transition first-writer-wins.
func (s *Store) SetStatus(ctx context.Context, sessionID string, status api.SessionStatus, reason string) error {
	if verr := api.ValidateSessionTransition(api.SessionStatusActive, status); verr != nil {
		return verr
	}

	tenantID := storage.GetTenant(ctx)

	query := `
		UPDATE sessions SET status = $1, reason = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	args := []any{string(status), reason, time.Now().UTC(), sessionID, string(api.SessionStatusActive)}
	if tenantID != "" {
		query += " AND tenant_id = $6"
		args = append(args, tenantID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating session status: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Either the session is unknown or it already went terminal.
		if _, err := s.getSessionRow(ctx, sessionID); err != nil {
			return err
		}
		return storage.ErrTerminal
	}
	return nil
}

// ListSessions returns a paginated list of sessions without turns,
// scoped by tenant when present in the context.
func (s *Store) ListSessions(ctx context.Context, opts storage.ListOptions) (*storage.SessionList, error) {
	tenantID := storage.GetTenant(ctx)

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if tenantID != "" {
		conds = append(conds, "tenant_id = "+arg(tenantID))
	}
	if opts.Status != "" {
		conds = append(conds, "status = "+arg(string(opts.Status)))
	}

	order := "DESC"
	if opts.Order == "asc" {
		order = "ASC"
	}

	if opts.After != "" {
		cmp := "<"
		if order == "ASC" {
			cmp = ">"
		}
		conds = append(conds, fmt.Sprintf(
			"created_at %s (SELECT created_at FROM sessions WHERE id = %s)", cmp, arg(opts.After)))
	}

	query := "SELECT id, goal, status, reason, created_at, updated_at FROM sessions"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	// One extra row decides has_more.
	query += fmt.Sprintf(" ORDER BY created_at %s LIMIT %s", order, arg(limit+1))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*api.Session
	for rows.Next() {
		var sess api.Session
		var status string
		if err := rows.Scan(&sess.ID, &sess.Goal, &status, &sess.Reason, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sess.Status = api.SessionStatus(status)
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	hasMore := len(sessions) > limit
	if hasMore {
		sessions = sessions[:limit]
	}

	result := &storage.SessionList{
		Object:  "list",
		Data:    sessions,
		HasMore: hasMore,
	}
	if len(sessions) > 0 {
		result.FirstID = sessions[0].ID
		result.LastID = sessions[len(sessions)-1].ID
	}
	return result, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
