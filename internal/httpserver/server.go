// internal/httpserver/server.go
//
// HTTP host for the memory game.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", POST /game/new, /daily/*.
//   - Per-game endpoints, gated by a signed game token: read state, forward
//     pointer presses and key presses, websocket push.
//   - Best-effort history rows in SQLite (start, restart, win).
//
// Notes:
//   - The engine never sees HTTP; handlers translate requests into
//     HandlePointerPress/HandleKeyPress calls made under the store's
//     per-session lock, then return the render snapshot.
//   - Face-down cards are sent without their image so clients cannot peek.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/memory/internal/deck"
	"github.com/robalobadob/memory/internal/game"
	"github.com/robalobadob/memory/internal/history"
	"github.com/robalobadob/memory/internal/store"
)

const tokenCookieName = "memory_token"

// Options configures a Server. Zero values fall back to sensible defaults.
type Options struct {
	Layout    game.Layout
	History   *history.Log // nil disables history rows
	Secret    string
	TokenTTL  time.Duration
	DailySalt string
	Origin    string
	// NewSource returns the random source for a fresh game; crypto/rand by default.
	NewSource func() deck.Source
}

// Server bundles router, session store, history log and websocket hub.
type Server struct {
	r         *chi.Mux
	store     store.Store
	history   *history.Log
	layout    game.Layout
	secret    []byte
	ttl       time.Duration
	salt      string
	origin    string
	newSource func() deck.Source
	hub       *hub
	now       func() time.Time
}

// New validates the layout, installs middleware and registers routes.
func New(st store.Store, opts Options) (*Server, error) {
	if err := game.ValidateLayout(opts.Layout); err != nil {
		return nil, err
	}
	s := &Server{
		r:         chi.NewRouter(),
		store:     st,
		history:   opts.History,
		layout:    opts.Layout,
		secret:    []byte(opts.Secret),
		ttl:       opts.TokenTTL,
		salt:      opts.DailySalt,
		origin:    opts.Origin,
		newSource: opts.NewSource,
		hub:       newHub(),
		now:       time.Now,
	}
	if len(s.secret) == 0 {
		s.secret = []byte("dev_secret_change_me")
	}
	if s.ttl <= 0 {
		s.ttl = 24 * time.Hour
	}
	if s.salt == "" {
		s.salt = "local_dev_salt"
	}
	if s.origin == "" {
		s.origin = "http://localhost:5173"
	}
	if s.newSource == nil {
		s.newSource = func() deck.Source { return deck.NewReaderSource(nil) }
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(s.cors)

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service":   "memory-go",
			"endpoints": []string{"/health", "POST /game/new", "POST /daily/new", "/game/{id}/*"},
		})
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	s.r.With(chimw.Timeout(10*time.Second)).Post("/game/new", s.handleNewGame)
	s.mountDaily(s.r.With(chimw.Timeout(10 * time.Second)))

	s.r.Route("/game/{id}", func(r chi.Router) {
		r.Use(s.requireGameToken)
		r.Get("/ws", s.handleWS) // long-lived, no timeout
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(10 * time.Second))
			r.Get("/", s.handleState)
			r.Post("/press", s.handlePress)
			r.Post("/key", s.handleKey)
			r.Delete("/", s.handleDelete)
		})
	})

	if s.history != nil {
		s.r.Get("/games/recent", s.handleRecent)
	}

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})

	return s, nil
}

// Router exposes the internal router (useful for tests and custom http.Server setups).
func (s *Server) Router() chi.Router { return s.r }

// Sweep drops idle sessions every interval until ctx is done.
func (s *Server) Sweep(ctx context.Context, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.store.Sweep(ctx, idle); n > 0 {
				log.Info().Int("sessions", n).Msg("swept idle games")
			}
		}
	}
}

// ----------------------------- middleware ----------------------------------

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", s.origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ctxGameKey carries the verified game ID.
type ctxGameKey struct{}

// requireGameToken checks the token was issued for the {id} in the path.
func (s *Server) requireGameToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		tok := bearerCookieOrQuery(r)
		if tok == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		gid, err := s.parseToken(tok)
		if err != nil {
			log.Debug().Err(err).Str("gameId", id).Msg("reject token")
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		if gid != id {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		ctx := context.WithValue(r.Context(), ctxGameKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ------------------------------ tokens -------------------------------------

// signToken creates an HS256 JWT binding the bearer to one game.
func (s *Server) signToken(gameID string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"gid": gameID,
		"exp": exp.Unix(),
		"iat": now.Unix(),
	})
	ss, err := t.SignedString(s.secret)
	return ss, exp, err
}

// parseToken verifies tok and returns its game ID.
func (s *Server) parseToken(tok string) (string, error) {
	claims := jwt.MapClaims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", err
	}
	if !t.Valid {
		return "", errors.New("token not valid")
	}
	gid, _ := claims["gid"].(string)
	if gid == "" {
		return "", errors.New("token has no game id")
	}
	return gid, nil
}

// setTokenCookie stores the game token for browser clients.
func (s *Server) setTokenCookie(w http.ResponseWriter, token string, exp time.Time) {
	secure := os.Getenv("NODE_ENV") == "production"
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  exp,
	})
}

// bearerCookieOrQuery finds the token in the Authorization header, the
// cookie, or ?token= (browsers cannot set headers on websocket upgrades).
func bearerCookieOrQuery(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if c, err := r.Cookie(tokenCookieName); err == nil {
		return c.Value
	}
	return ""
}

// ------------------------------- GAME --------------------------------------

// cardView is the client-facing card. Face-down cards omit their image.
type cardView struct {
	Index    int     `json:"index"`
	ImageID  *int    `json:"imageId,omitempty"`
	Image    string  `json:"image,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Visible  bool    `json:"visible"`
	Selected bool    `json:"selected"`
	Matched  bool    `json:"matched"`
}

// stateRes is the render snapshot sent after every request and websocket event.
type stateRes struct {
	GameID       string     `json:"gameId"`
	Cards        []cardView `json:"cards"`
	Message      string     `json:"message"`
	Won          bool       `json:"won"`
	MatchedCount int        `json:"matchedCount"`
	Presses      int        `json:"presses"`
}

func buildState(id string, g *game.Session) stateRes {
	rs := g.RenderState()
	cards := make([]cardView, len(rs.Cards))
	for i, c := range rs.Cards {
		cv := cardView{Index: i, X: c.X, Y: c.Y, Visible: c.Visible, Selected: c.Selected, Matched: c.Matched}
		if c.Visible {
			imageID := c.ImageID
			cv.ImageID = &imageID
			cv.Image = c.Image
		}
		cards[i] = cv
	}
	return stateRes{
		GameID:       id,
		Cards:        cards,
		Message:      rs.Message,
		Won:          rs.Won,
		MatchedCount: g.MatchedCount(),
		Presses:      g.Presses(),
	}
}

type newGameRes struct {
	GameID string   `json:"gameId"`
	Token  string   `json:"token"`
	State  stateRes `json:"state"`
}

// handleNewGame deals a fresh board with a random source.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	s.createGame(w, r, s.newSource, false)
}

// createGame registers a session, issues its token and writes the history row.
// next supplies the source for the first deal and every redeal.
func (s *Server) createGame(w http.ResponseWriter, r *http.Request, next func() deck.Source, daily bool) {
	g, err := game.NewDealer(s.layout, next)
	if err != nil {
		log.Error().Err(err).Msg("deal game")
		writeError(w, http.StatusInternalServerError, "deal_failed")
		return
	}
	id := uuid.NewString()
	if err := s.store.Save(r.Context(), id, g); err != nil {
		log.Error().Err(err).Msg("save game")
		writeError(w, http.StatusInternalServerError, "save_failed")
		return
	}
	tok, exp, err := s.signToken(id)
	if err != nil {
		log.Error().Err(err).Msg("sign token")
		writeError(w, http.StatusInternalServerError, "sign_failed")
		return
	}
	s.setTokenCookie(w, tok, exp)

	if s.history != nil {
		if err := s.history.Started(r.Context(), id, daily); err != nil {
			log.Warn().Err(err).Str("gameId", id).Msg("insert game row")
		}
	}
	log.Debug().Str("gameId", id).Bool("daily", daily).Msg("new game")

	writeJSON(w, http.StatusOK, newGameRes{GameID: id, Token: tok, State: buildState(id, g)})
}

// handleState returns the current snapshot without changing anything.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	id := gameID(r)
	var res stateRes
	err := s.store.Do(r.Context(), id, func(g *game.Session) { res = buildState(id, g) })
	if err != nil {
		s.storeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type pressReq struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// handlePress forwards a pointer press at (x, y).
func (s *Server) handlePress(w http.ResponseWriter, r *http.Request) {
	var req pressReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.X == nil || req.Y == nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	res, err := s.press(r.Context(), gameID(r), *req.X, *req.Y)
	if err != nil {
		s.storeError(w, gameID(r), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type keyReq struct {
	Key string `json:"key"`
}

// handleKey forwards a single key press.
func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	var req keyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	key, err := parseKey(req.Key)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_key")
		return
	}
	res, err := s.key(r.Context(), gameID(r), key)
	if err != nil {
		s.storeError(w, gameID(r), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDelete forgets a session and closes its websocket subscribers.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := gameID(r)
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.storeError(w, id, err)
		return
	}
	s.hub.closeGame(id)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleRecent lists the newest history rows.
func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	recs, err := s.history.Recent(r.Context(), 50)
	if err != nil {
		log.Error().Err(err).Msg("recent games")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// press applies a pointer event, notifies subscribers and records a win.
// Snapshots are published under the session lock so watchers see them in order.
func (s *Server) press(ctx context.Context, id string, x, y float64) (stateRes, error) {
	var res stateRes
	var wonNow bool
	err := s.store.Do(ctx, id, func(g *game.Session) {
		wasWon := g.Won()
		g.HandlePointerPress(x, y)
		wonNow = !wasWon && g.Won()
		res = buildState(id, g)
		s.hub.publish(id, res)
	})
	if err != nil {
		return stateRes{}, err
	}

	log.Debug().Str("gameId", id).Float64("x", x).Float64("y", y).Str("message", res.Message).Msg("press")
	if wonNow {
		log.Info().Str("gameId", id).Int("presses", res.Presses).Msg("game won")
		if s.history != nil {
			if err := s.history.Won(ctx, id, res.Presses); err != nil {
				log.Warn().Err(err).Str("gameId", id).Msg("finish game row")
			}
		}
	}
	return res, nil
}

// key applies a key event; the new-game key redeals in place.
func (s *Server) key(ctx context.Context, id string, key rune) (stateRes, error) {
	var res stateRes
	var restarted bool
	err := s.store.Do(ctx, id, func(g *game.Session) {
		restarted = g.HandleKeyPress(key)
		res = buildState(id, g)
		s.hub.publish(id, res)
	})
	if err != nil {
		return stateRes{}, err
	}

	if restarted {
		log.Debug().Str("gameId", id).Msg("new deal")
		if s.history != nil {
			if err := s.history.Restarted(ctx, id); err != nil {
				log.Warn().Err(err).Str("gameId", id).Msg("restart game row")
			}
		}
	}
	return res, nil
}

// parseKey accepts exactly one character.
func parseKey(k string) (rune, error) {
	if utf8.RuneCountInString(k) != 1 {
		return 0, fmt.Errorf("key must be a single character")
	}
	r, _ := utf8.DecodeRuneInString(k)
	return r, nil
}

// storeError maps store failures onto HTTP errors.
func (s *Server) storeError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	log.Error().Err(err).Str("gameId", id).Msg("store")
	writeError(w, http.StatusInternalServerError, "store_error")
}

// ------------------------------- small util --------------------------------

func gameID(r *http.Request) string {
	id, _ := r.Context().Value(ctxGameKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
