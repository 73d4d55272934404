package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
	"github.com/manthysbr/incidentdesk/internal/core/ports"
)

// Repository persists conversation history in DuckDB. An empty path opens
// an in-memory database.
type Repository struct {
	db *sql.DB
}

// Ensure Repository implements MessageRepository interface
var _ ports.MessageRepository = (*Repository)(nil)

func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	r := &Repository{db: db}
	if err := r.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id         VARCHAR PRIMARY KEY,
			session_id VARCHAR NOT NULL,
			seq        INTEGER NOT NULL,
			role       VARCHAR NOT NULL,
			content    VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create messages table: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// AppendMessage inserts one message. Re-appending the same id is a no-op.
func (r *Repository) AppendMessage(ctx context.Context, msg domain.Message) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, seq, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		msg.ID,
		string(msg.SessionID),
		msg.Seq,
		string(msg.Role),
		msg.Content,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", msg.ID, err)
	}
	return nil
}

// ListMessages returns the session's messages ordered by seq; limit > 0
// keeps only the latest limit messages.
func (r *Repository) ListMessages(ctx context.Context, session domain.SessionID, limit int) ([]domain.Message, error) {
	query := `
		SELECT id, session_id, seq, role, content, created_at
		FROM messages WHERE session_id = ? ORDER BY seq`
	args := []any{string(session)}
	if limit > 0 {
		query = `
			SELECT * FROM (
				SELECT id, session_id, seq, role, content, created_at
				FROM messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?
			) ORDER BY seq`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var (
			m       domain.Message
			session string
			role    string
		)
		if err := rows.Scan(&m.ID, &session, &m.Seq, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.SessionID = domain.SessionID(session)
		m.Role = domain.MessageRole(role)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ListSessions returns the distinct session ids, oldest activity first.
func (r *Repository) ListSessions(ctx context.Context) ([]domain.SessionID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id FROM messages
		GROUP BY session_id ORDER BY MIN(created_at)`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, domain.SessionID(id))
	}
	return out, rows.Err()
}
