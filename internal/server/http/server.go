// Package httpserver exposes the auth and note services over HTTP/JSON.
package httpserver

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/and161185/zknotes/internal/model"
	"github.com/and161185/zknotes/internal/request"
	"github.com/and161185/zknotes/internal/result"
	"github.com/and161185/zknotes/internal/token"
)

// AuthAPI is the authentication surface the handlers call.
type AuthAPI interface {
	Signup(ctx context.Context, req request.Signup) (result.Result[model.UserView], error)
	Challenge(ctx context.Context, username request.Username) (result.Result[model.Challenge], error)
	Login(ctx context.Context, req request.Login) (result.Result[model.LoginGrant], error)
	DeleteAccount(ctx context.Context, userID uuid.UUID) (result.Result[struct{}], error)
}

// NoteAPI is the note surface the handlers call.
type NoteAPI interface {
	Add(ctx context.Context, owner uuid.UUID, c request.NoteContent) (result.Result[model.Note], error)
	Page(ctx context.Context, owner uuid.UUID, p request.Page) (result.Result[model.NotePage], error)
	PageByCursor(ctx context.Context, owner uuid.UUID, c request.Cursor) (result.Result[model.NoteCursorPage], error)
	Update(ctx context.Context, owner, noteID uuid.UUID, c request.NoteContent) (result.Result[model.Note], error)
	Delete(ctx context.Context, owner, noteID uuid.UUID) (result.Result[struct{}], error)
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (token.Identity, error)
}

// Pinger reports storage liveness for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the HTTP handler.
type Deps struct {
	Auth           AuthAPI
	Notes          NoteAPI
	Verifier       TokenVerifier
	Health         Pinger // optional
	Log            *zap.Logger
	AllowedOrigins []string
}

// Server holds the handlers.
type Server struct {
	auth   AuthAPI
	notes  NoteAPI
	health Pinger
	log    *zap.Logger
}

// NewHandler builds the routed, wrapped handler.
func NewHandler(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{auth: d.Auth, notes: d.Notes, health: d.Health, log: log}

	r := mux.NewRouter()
	r.Use(Logging(log), Recover(log))
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)

	a := r.PathPrefix("/auth").Subrouter()
	a.HandleFunc("/signup", s.signup).Methods(http.MethodPost)
	a.HandleFunc("/challenge", s.challenge).Methods(http.MethodGet)
	a.HandleFunc("/login", s.login).Methods(http.MethodPost)

	p := r.NewRoute().Subrouter()
	p.Use(Auth(d.Verifier))
	p.HandleFunc("/notes", s.listNotes).Methods(http.MethodGet)
	p.HandleFunc("/notes", s.addNote).Methods(http.MethodPost)
	p.HandleFunc("/notes/{id}", s.updateNote).Methods(http.MethodPut)
	p.HandleFunc("/notes/{id}", s.deleteNote).Methods(http.MethodDelete)
	p.HandleFunc("/users/me", s.deleteAccount).Methods(http.MethodDelete)

	return CORS(d.AllowedOrigins).Handler(r)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.log.Warn("healthz: storage ping failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
