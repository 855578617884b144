package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"

	"github.com/and161185/zknotes/internal/convert"
	"github.com/and161185/zknotes/internal/request"
)

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var body convert.SignupRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.Validate()
	if err != nil {
		writeValidation(w, err)
		return
	}
	res, err := s.auth.Signup(r.Context(), req)
	writeResult(w, r, s.log, res, err, convert.ToUserResponse)
}

func (s *Server) challenge(w http.ResponseWriter, r *http.Request) {
	name, err := request.NewUsername(r.URL.Query().Get("username"))
	if err != nil {
		writeValidation(w, err)
		return
	}
	res, err := s.auth.Challenge(r.Context(), name)
	writeResult(w, r, s.log, res, err, convert.ToChallengeResponse)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body convert.LoginRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.Validate()
	if err != nil {
		writeValidation(w, err)
		return
	}
	res, err := s.auth.Login(r.Context(), req)
	writeResult(w, r, s.log, res, err, convert.ToLoginResponse)
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromCtx(r.Context())
	res, err := s.auth.DeleteAccount(r.Context(), id.UserID)
	writeResult(w, r, s.log, res, err, func(struct{}) struct{} { return struct{}{} })
}

// listNotes serves page mode (page, pageSize) or, when cursor is present, cursor mode
// (cursor as RFC 3339, optional cursorId, pageSize).
func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromCtx(r.Context())
	q := r.URL.Query()

	pageSize, ok := intParam(w, q.Get("pageSize"), "pageSize")
	if !ok {
		return
	}

	if raw := q.Get("cursor"); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "cursor must be an RFC 3339 timestamp")
			return
		}
		var beforeID uuid.UUID
		if rawID := q.Get("cursorId"); rawID != "" {
			if beforeID, err = uuid.FromString(rawID); err != nil {
				writeError(w, http.StatusBadRequest, "cursorId must be a UUID")
				return
			}
		}
		c, err := request.NewCursor(before, beforeID, pageSize)
		if err != nil {
			writeValidation(w, err)
			return
		}
		res, err := s.notes.PageByCursor(r.Context(), id.UserID, c)
		writeResult(w, r, s.log, res, err, convert.ToNoteCursorPageResponse)
		return
	}

	page, ok := intParam(w, q.Get("page"), "page")
	if !ok {
		return
	}
	p, err := request.NewPage(page, pageSize)
	if err != nil {
		writeValidation(w, err)
		return
	}
	res, err := s.notes.Page(r.Context(), id.UserID, p)
	writeResult(w, r, s.log, res, err, convert.ToNotePageResponse)
}

func (s *Server) addNote(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromCtx(r.Context())
	var body convert.NoteRequest
	if !decodeBody(w, r, &body) {
		return
	}
	c, err := body.Validate()
	if err != nil {
		writeValidation(w, err)
		return
	}
	res, err := s.notes.Add(r.Context(), id.UserID, c)
	writeResult(w, r, s.log, res, err, convert.ToNoteResponse)
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromCtx(r.Context())
	noteID, ok := noteIDParam(w, r)
	if !ok {
		return
	}
	var body convert.NoteRequest
	if !decodeBody(w, r, &body) {
		return
	}
	c, err := body.Validate()
	if err != nil {
		writeValidation(w, err)
		return
	}
	res, err := s.notes.Update(r.Context(), id.UserID, noteID, c)
	writeResult(w, r, s.log, res, err, convert.ToNoteResponse)
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromCtx(r.Context())
	noteID, ok := noteIDParam(w, r)
	if !ok {
		return
	}
	res, err := s.notes.Delete(r.Context(), id.UserID, noteID)
	writeResult(w, r, s.log, res, err, func(struct{}) struct{} { return struct{}{} })
}

func noteIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.FromString(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// intParam parses a query integer; a missing value becomes zero and is rejected by the
// request constructors.
func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be an integer")
		return 0, false
	}
	return n, true
}
