package chatbot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardiorisk/cardiorisk/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PGStore keeps conversations in the conversation and conversation_message
// tables. Calls made inside db.WithTx join that transaction.
type PGStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool, now: time.Now}
}

func (s *PGStore) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

const msgCols = `id, pair_id, role, content, timestamp`

func scanMessages(rows pgx.Rows) ([]Message, error) {
	defer rows.Close()
	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.PairID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *PGStore) Find(ctx context.Context, patientID string) (*Conversation, error) {
	c := &Conversation{PatientID: patientID}
	err := s.conn(ctx).QueryRow(ctx, `
		SELECT last_active_at, created_at, updated_at FROM conversation WHERE patient_id = $1`,
		patientID).Scan(&c.LastActiveAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	rows, err := s.conn(ctx).Query(ctx, `SELECT `+msgCols+` FROM conversation_message
		WHERE patient_id = $1 ORDER BY seq`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if c.Messages, err = scanMessages(rows); err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	return c, nil
}

func (s *PGStore) Recent(ctx context.Context, patientID string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT `+msgCols+` FROM (
			SELECT seq, `+msgCols+` FROM conversation_message
			WHERE patient_id = $1 ORDER BY seq DESC LIMIT $2
		) recent ORDER BY seq`, patientID, n)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return scanMessages(rows)
}

func (s *PGStore) upsert(ctx context.Context, patientID string, at time.Time) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO conversation (patient_id, last_active_at, created_at, updated_at)
		VALUES ($1, $2, $2, $2)
		ON CONFLICT (patient_id) DO UPDATE SET last_active_at = $2, updated_at = $2`,
		patientID, at)
	return err
}

func (s *PGStore) AppendPair(ctx context.Context, patientID string, user, assistant Message) error {
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.upsert(ctx, patientID, assistant.Timestamp); err != nil {
			return fmt.Errorf("upsert conversation: %w", err)
		}
		for _, m := range []Message{user, assistant} {
			_, err := s.conn(ctx).Exec(ctx, `
				INSERT INTO conversation_message (id, patient_id, pair_id, role, content, timestamp)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				m.ID, patientID, m.PairID, string(m.Role), m.Content, m.Timestamp)
			if err != nil {
				return fmt.Errorf("insert %s message: %w", m.Role, err)
			}
		}
		return nil
	})
}

func (s *PGStore) Clear(ctx context.Context, patientID string) error {
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.upsert(ctx, patientID, s.now().UTC()); err != nil {
			return fmt.Errorf("upsert conversation: %w", err)
		}
		if _, err := s.conn(ctx).Exec(ctx, `DELETE FROM conversation_message WHERE patient_id = $1`, patientID); err != nil {
			return fmt.Errorf("clear messages: %w", err)
		}
		return nil
	})
}

// DeleteConversation removes the record; messages go with it via ON DELETE
// CASCADE.
func (s *PGStore) DeleteConversation(ctx context.Context, patientID string) error {
	_, err := s.conn(ctx).Exec(ctx, `DELETE FROM conversation WHERE patient_id = $1`, patientID)
	return err
}
