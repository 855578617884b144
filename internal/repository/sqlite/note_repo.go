package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/and161185/zknotes/internal/model"
	"github.com/gofrs/uuid/v5"
)

// NoteRepo implements NoteRepository using SQLite.
type NoteRepo struct{ db *DB }

// NewNoteRepo constructs a note repository.
func NewNoteRepo(db *DB) *NoteRepo { return &NoteRepo{db: db} }

// Create inserts a note row.
func (r *NoteRepo) Create(ctx context.Context, n *model.Note) error {
	const q = `
INSERT INTO notes (id, user_id, encrypted_title, encrypted_content, updated_at)
VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.SQL.ExecContext(ctx, q,
		n.ID, n.OwnerID, []byte(n.EncryptedTitle), []byte(n.EncryptedContent), toMicros(n.Timestamp))
	return err
}

// PageByOwner returns one page and the owner's total count.
func (r *NoteRepo) PageByOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]model.Note, int, error) {
	var total int
	if err := r.db.SQL.QueryRowContext(ctx, `SELECT count(*) FROM notes WHERE user_id=?`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 || offset >= total {
		return []model.Note{}, total, nil
	}

	const q = `
SELECT id, user_id, encrypted_title, encrypted_content, updated_at
FROM notes WHERE user_id=?
ORDER BY updated_at DESC, id DESC
LIMIT ? OFFSET ?`
	rows, err := r.db.SQL.QueryContext(ctx, q, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	notes, err := scanNotes(rows)
	if err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}

// PageByOwnerBefore returns notes after the (before, beforeID) key. The nil id is the
// smallest text id, so it turns the tie branch off.
func (r *NoteRepo) PageByOwnerBefore(ctx context.Context, ownerID uuid.UUID, before time.Time, beforeID uuid.UUID, limit int) ([]model.Note, error) {
	const q = `
SELECT id, user_id, encrypted_title, encrypted_content, updated_at
FROM notes WHERE user_id=? AND (updated_at < ? OR (updated_at = ? AND id < ?))
ORDER BY updated_at DESC, id DESC
LIMIT ?`
	us := toMicros(before)
	rows, err := r.db.SQL.QueryContext(ctx, q, ownerID, us, us, beforeID, limit)
	if err != nil {
		return nil, err
	}
	return scanNotes(rows)
}

// UpdateForOwner rewrites the note only when id and owner both match.
func (r *NoteRepo) UpdateForOwner(ctx context.Context, ownerID uuid.UUID, n *model.Note) (bool, error) {
	const q = `
UPDATE notes
SET encrypted_title=?, encrypted_content=?, updated_at=?
WHERE id=? AND user_id=?`
	res, err := r.db.SQL.ExecContext(ctx, q,
		[]byte(n.EncryptedTitle), []byte(n.EncryptedContent), toMicros(n.Timestamp), n.ID, ownerID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// DeleteForOwner removes the note only when id and owner both match.
func (r *NoteRepo) DeleteForOwner(ctx context.Context, ownerID, noteID uuid.UUID) (bool, error) {
	res, err := r.db.SQL.ExecContext(ctx, `DELETE FROM notes WHERE id=? AND user_id=?`, noteID, ownerID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanNotes(rows *sql.Rows) ([]model.Note, error) {
	defer rows.Close()
	out := make([]model.Note, 0)
	for rows.Next() {
		var (
			n              model.Note
			title, content []byte
			ts             int64
		)
		if err := rows.Scan(&n.ID, &n.OwnerID, &title, &content, &ts); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.EncryptedTitle = title
		n.EncryptedContent = content
		n.Timestamp = fromMicros(ts)
		out = append(out, n)
	}
	return out, rows.Err()
}
