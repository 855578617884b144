package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/zknotes/internal/model"
	"github.com/and161185/zknotes/internal/repository"
	"github.com/and161185/zknotes/internal/request"
	"github.com/and161185/zknotes/internal/result"
)

const (
	msgUnauthenticated = "Authentication required"
	msgNoteNotFound    = "Note not found"
)

// NoteService is owner-scoped CRUD over encrypted notes. A note that belongs to another owner
// is reported exactly like a missing one.
type NoteService struct {
	repo repository.NoteRepository
	log  *zap.Logger
	now  func() time.Time
}

// NewNoteService constructs NoteService. A nil logger disables logging.
func NewNoteService(repo repository.NoteRepository, log *zap.Logger) *NoteService {
	if log == nil {
		log = zap.NewNop()
	}
	return &NoteService{repo: repo, log: log, now: time.Now}
}

// timestamp is microsecond precision so it survives both storage backends unchanged.
func (s *NoteService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Add stores a new note for owner.
func (s *NoteService) Add(ctx context.Context, owner uuid.UUID, c request.NoteContent) (result.Result[model.Note], error) {
	if owner == uuid.Nil {
		return result.Fail[model.Note](result.ErrUnauthorized, msgUnauthenticated), nil
	}
	id, err := uuid.NewV4()
	if err != nil {
		return result.Result[model.Note]{}, fmt.Errorf("add note: id: %w", err)
	}
	n := model.Note{
		ID:               id,
		OwnerID:          owner,
		EncryptedTitle:   c.EncryptedTitle,
		EncryptedContent: c.EncryptedContent,
		Timestamp:        s.timestamp(),
	}
	if err := s.repo.Create(ctx, &n); err != nil {
		return result.Result[model.Note]{}, fmt.Errorf("add note: %w", err)
	}
	s.log.Debug("note created", zap.Stringer("owner", owner), zap.Stringer("note", id))
	return result.Created(n), nil
}

// Page returns one page of owner's notes, newest first.
func (s *NoteService) Page(ctx context.Context, owner uuid.UUID, p request.Page) (result.Result[model.NotePage], error) {
	if owner == uuid.Nil {
		return result.Fail[model.NotePage](result.ErrUnauthorized, msgUnauthenticated), nil
	}
	items, total, err := s.repo.PageByOwner(ctx, owner, p.Offset(), p.PageSize)
	if err != nil {
		return result.Result[model.NotePage]{}, fmt.Errorf("page notes: %w", err)
	}
	return result.OK(model.NotePage{
		Items:      items,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalCount: total,
	}), nil
}

// PageByCursor returns notes after the cursor key, newest first.
func (s *NoteService) PageByCursor(ctx context.Context, owner uuid.UUID, c request.Cursor) (result.Result[model.NoteCursorPage], error) {
	if owner == uuid.Nil {
		return result.Fail[model.NoteCursorPage](result.ErrUnauthorized, msgUnauthenticated), nil
	}
	// One extra row tells whether another page exists.
	items, err := s.repo.PageByOwnerBefore(ctx, owner, c.Before, c.BeforeID, c.PageSize+1)
	if err != nil {
		return result.Result[model.NoteCursorPage]{}, fmt.Errorf("page notes by cursor: %w", err)
	}
	page := model.NoteCursorPage{PageSize: c.PageSize}
	if len(items) > c.PageSize {
		items = items[:c.PageSize]
		page.HasMore = true
	}
	page.Items = items
	if page.HasMore {
		last := items[len(items)-1]
		page.NextCursor = last.Timestamp
		page.NextCursorID = last.ID
	}
	return result.OK(page), nil
}

// Update replaces the blobs of an owned note and refreshes its timestamp.
func (s *NoteService) Update(ctx context.Context, owner, noteID uuid.UUID, c request.NoteContent) (result.Result[model.Note], error) {
	if owner == uuid.Nil {
		return result.Fail[model.Note](result.ErrUnauthorized, msgUnauthenticated), nil
	}
	n := model.Note{
		ID:               noteID,
		OwnerID:          owner,
		EncryptedTitle:   c.EncryptedTitle,
		EncryptedContent: c.EncryptedContent,
		Timestamp:        s.timestamp(),
	}
	ok, err := s.repo.UpdateForOwner(ctx, owner, &n)
	if err != nil {
		return result.Result[model.Note]{}, fmt.Errorf("update note: %w", err)
	}
	if !ok {
		return result.Fail[model.Note](result.ErrNotFound, msgNoteNotFound), nil
	}
	return result.OK(n), nil
}

// Delete removes an owned note.
func (s *NoteService) Delete(ctx context.Context, owner, noteID uuid.UUID) (result.Result[struct{}], error) {
	if owner == uuid.Nil {
		return result.Fail[struct{}](result.ErrUnauthorized, msgUnauthenticated), nil
	}
	ok, err := s.repo.DeleteForOwner(ctx, owner, noteID)
	if err != nil {
		return result.Result[struct{}]{}, fmt.Errorf("delete note: %w", err)
	}
	if !ok {
		return result.Fail[struct{}](result.ErrNotFound, msgNoteNotFound), nil
	}
	s.log.Debug("note deleted", zap.Stringer("owner", owner), zap.Stringer("note", noteID))
	return result.NoContent[struct{}](), nil
}
