package repository

import (
	"context"
	"time"

	"github.com/and161185/zknotes/internal/model"
	"github.com/gofrs/uuid/v5"
)

// NoteRepository provides owner-scoped access to encrypted notes. Every method filters by
// owner; a note belonging to someone else behaves exactly like a missing one.
type NoteRepository interface {
	// Create inserts a note.
	Create(ctx context.Context, n *model.Note) error
	// PageByOwner returns up to limit notes newest first after skipping offset, and the
	// owner's total note count.
	PageByOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]model.Note, int, error)
	// PageByOwnerBefore returns up to limit notes that sort after (before, beforeID) in
	// (updated_at DESC, id DESC) order, newest first. With beforeID == uuid.Nil only notes
	// strictly older than before qualify.
	PageByOwnerBefore(ctx context.Context, ownerID uuid.UUID, before time.Time, beforeID uuid.UUID, limit int) ([]model.Note, error)
	// UpdateForOwner replaces blobs and timestamp; false when no such note for this owner.
	UpdateForOwner(ctx context.Context, ownerID uuid.UUID, n *model.Note) (bool, error)
	// DeleteForOwner removes a note; false when no such note for this owner.
	DeleteForOwner(ctx context.Context, ownerID, noteID uuid.UUID) (bool, error)
}
