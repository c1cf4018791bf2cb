// internal/httpserver/routes_daily.go
//
// HTTP routes for the "daily deal" mode.
// Exposes two endpoints under /daily:
//   - GET  /daily/today → today's date key
//   - POST /daily/new   → start a game dealt from today's seed
//
// Every daily game on the same UTC date gets the same board, derived from
// HMAC(salt, date). Play itself goes through the regular /game/{id} routes.

package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/memory/internal/daily"
	"github.com/robalobadob/memory/internal/deck"
)

// mountDaily registers all /daily routes.
func (s *Server) mountDaily(r chi.Router) {
	r.Route("/daily", func(r chi.Router) {
		r.Get("/today", s.handleDailyToday)
		r.Post("/new", s.handleDailyNew)
	})
}

func (s *Server) handleDailyToday(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"date": daily.DateKey(s.now())})
}

// handleDailyNew deals today's shared board into a new session. The new-game
// key redeals the same board for the date the session was created on.
func (s *Server) handleDailyNew(w http.ResponseWriter, r *http.Request) {
	date := s.now()
	s.createGame(w, r, func() deck.Source { return daily.Source(date, s.salt) }, true)
}
