package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/zknotes/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// NoteRepo implements NoteRepository using PostgreSQL.
type NoteRepo struct{ db *DB }

// NewNoteRepo constructs a note repository.
func NewNoteRepo(db *DB) *NoteRepo { return &NoteRepo{db: db} }

// Create inserts a note row.
func (r *NoteRepo) Create(ctx context.Context, n *model.Note) error {
	const q = `
INSERT INTO notes (id, user_id, encrypted_title, encrypted_content, updated_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, n.ID, n.OwnerID, []byte(n.EncryptedTitle), []byte(n.EncryptedContent), n.Timestamp)
	return err
}

// PageByOwner returns one page and the owner's total count.
func (r *NoteRepo) PageByOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]model.Note, int, error) {
	const cnt = `SELECT count(*) FROM notes WHERE user_id=$1`
	var total int
	if err := r.db.Pool.QueryRow(ctx, cnt, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 || offset >= total {
		return []model.Note{}, total, nil
	}

	const q = `
SELECT id, user_id, encrypted_title, encrypted_content, updated_at
FROM notes WHERE user_id=$1
ORDER BY updated_at DESC, id DESC
LIMIT $2 OFFSET $3`
	rows, err := r.db.Pool.Query(ctx, q, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	notes, err := scanNotes(rows)
	if err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}

// PageByOwnerBefore returns notes after the (before, beforeID) key. No uuid compares below
// the nil uuid, so beforeID == uuid.Nil leaves only the strictly-older branch.
func (r *NoteRepo) PageByOwnerBefore(ctx context.Context, ownerID uuid.UUID, before time.Time, beforeID uuid.UUID, limit int) ([]model.Note, error) {
	const q = `
SELECT id, user_id, encrypted_title, encrypted_content, updated_at
FROM notes WHERE user_id=$1 AND (updated_at < $2 OR (updated_at = $2 AND id < $3))
ORDER BY updated_at DESC, id DESC
LIMIT $4`
	rows, err := r.db.Pool.Query(ctx, q, ownerID, before, beforeID, limit)
	if err != nil {
		return nil, err
	}
	return scanNotes(rows)
}

// UpdateForOwner rewrites the note only when id and owner both match.
func (r *NoteRepo) UpdateForOwner(ctx context.Context, ownerID uuid.UUID, n *model.Note) (bool, error) {
	const q = `
UPDATE notes
SET encrypted_title=$3, encrypted_content=$4, updated_at=$5
WHERE id=$1 AND user_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, n.ID, ownerID, []byte(n.EncryptedTitle), []byte(n.EncryptedContent), n.Timestamp)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteForOwner removes the note only when id and owner both match.
func (r *NoteRepo) DeleteForOwner(ctx context.Context, ownerID, noteID uuid.UUID) (bool, error) {
	const q = `DELETE FROM notes WHERE id=$1 AND user_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, noteID, ownerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanNotes(rows pgx.Rows) ([]model.Note, error) {
	defer rows.Close()
	out := make([]model.Note, 0)
	for rows.Next() {
		var (
			n              model.Note
			title, content []byte
		)
		if err := rows.Scan(&n.ID, &n.OwnerID, &title, &content, &n.Timestamp); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.EncryptedTitle = title
		n.EncryptedContent = content
		n.Timestamp = n.Timestamp.UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}
