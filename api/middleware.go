package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/fpsim/internal/uuid"
	"github.com/jmcleod/fpsim/session"
)

type contextKey int

const sessionKey contextKey = iota

// SessionMiddleware resolves the {sessionID} URL parameter to an open
// session and stores it on the request context.
func (a *API) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		if !uuid.Valid(id) {
			mapError(w, fmt.Errorf("%q: %w", id, session.ErrSessionNotFound))
			return
		}
		s, err := a.sessions.Get(id)
		if err != nil {
			mapError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey).(*session.Session)
	return s
}
