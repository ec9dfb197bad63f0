package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhaxinji/recagent/internal/models"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrNotAuthorized = errors.New("session not owned by user")
)

const sessionColumns = `id, owner_id, title, session_type, context, paper_id, is_active,
	result, created_at, updated_at, last_message_at`

// Service is the durable record of generator invocations: sessions, their
// role-tagged messages, and the final structured result.
type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

type CreateInput struct {
	OwnerID     uuid.UUID
	Title       string
	SessionType string
	Context     any
	PaperID     *uuid.UUID
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Session, error) {
	contextJSON, err := json.Marshal(in.Context)
	if err != nil {
		return nil, fmt.Errorf("marshal session context: %w", err)
	}

	sess := &models.Session{
		ID:          uuid.New(),
		OwnerID:     in.OwnerID,
		Title:       in.Title,
		SessionType: in.SessionType,
		Context:     contextJSON,
		PaperID:     in.PaperID,
		IsActive:    true,
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO sessions (id, owner_id, title, session_type, context, paper_id, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, true)
		 RETURNING created_at, updated_at, last_message_at`,
		sess.ID, sess.OwnerID, sess.Title, sess.SessionType, contextJSON, sess.PaperID,
	).Scan(&sess.CreatedAt, &sess.UpdatedAt, &sess.LastMessageAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// AppendMessage adds the next turn to a session. The dense sequence and the
// session's last_message_at are maintained in one transaction.
func (s *Service) AppendMessage(ctx context.Context, sessionID uuid.UUID, role, content string, metadata any) (*models.Message, error) {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal message metadata: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	msg := &models.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  metaJSON,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO messages (id, session_id, role, content, message_metadata, sequence)
		 VALUES ($1, $2, $3, $4, $5,
		         (SELECT COALESCE(MAX(sequence), 0) + 1 FROM messages WHERE session_id = $2))
		 RETURNING sequence, created_at`,
		msg.ID, sessionID, role, content, metaJSON,
	).Scan(&msg.Sequence, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE sessions SET last_message_at = $2, updated_at = now() WHERE id = $1`,
		sessionID, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("update session timestamps: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit message: %w", err)
	}
	return msg, nil
}

// SetResult stores the final normalized artifact of a generator run.
func (s *Service) SetResult(ctx context.Context, sessionID uuid.UUID, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal session result: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`UPDATE sessions SET result = $2, updated_at = now() WHERE id = $1`,
		sessionID, data)
	if err != nil {
		return fmt.Errorf("set session result: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id, ownerID uuid.UUID) (*models.Session, error) {
	row := s.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.OwnerID != ownerID {
		return nil, ErrNotAuthorized
	}
	return sess, nil
}

func (s *Service) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Session, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE owner_id = $1 AND is_active
		 ORDER BY last_message_at DESC LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// GetWithMessages loads a session plus its ordered messages.
func (s *Service) GetWithMessages(ctx context.Context, id, ownerID uuid.UUID) (*models.Session, error) {
	sess, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.Messages(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs
	return sess, nil
}

func (s *Service) Messages(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, role, content, message_metadata, sequence, created_at
		 FROM messages WHERE session_id = $1 ORDER BY sequence`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Metadata, &m.Sequence, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Service) UpdateTitle(ctx context.Context, id, ownerID uuid.UUID, title string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE sessions SET title = $3, updated_at = now() WHERE id = $1 AND owner_id = $2`,
		id, ownerID, title)
	if err != nil {
		return fmt.Errorf("update session title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete soft-deletes: the session drops out of listings but stays auditable.
func (s *Service) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE sessions SET is_active = false, updated_at = now() WHERE id = $1 AND owner_id = $2`,
		id, ownerID)
	if err != nil {
		return fmt.Errorf("soft delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// HardDelete removes the session and, via FK cascade, all its messages.
func (s *Service) HardDelete(ctx context.Context, id, ownerID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM sessions WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("hard delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var sess models.Session
	err := row.Scan(
		&sess.ID, &sess.OwnerID, &sess.Title, &sess.SessionType, &sess.Context,
		&sess.PaperID, &sess.IsActive, &sess.Result,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.LastMessageAt,
	)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
