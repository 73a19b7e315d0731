package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"PredictMesh/internal/core"
	"PredictMesh/internal/leaderboard"
	"PredictMesh/internal/observability"
	"PredictMesh/internal/projection"
	"PredictMesh/internal/query"
	"PredictMesh/internal/state"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Server is the HTTP surface. Mutations and live queries are submitted
// to the core loop as requests; historical reads go to the Postgres
// projections through the query service.
type Server struct {
	requests   chan<- core.Request
	queries    *query.QueryService
	health     *observability.HealthChecker
	adminToken string
	logger     zerolog.Logger
}

func NewServer(
	requests chan<- core.Request,
	queries *query.QueryService,
	health *observability.HealthChecker,
	adminToken string,
) *Server {
	return &Server{
		requests:   requests,
		queries:    queries,
		health:     health,
		adminToken: adminToken,
		logger:     observability.NewLogger("http"),
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Post("/players", s.handleRegisterPlayer)
			r.Post("/guilds", s.handleCreateGuild)
			r.Post("/guilds/{guildID}/join", s.handleJoinGuild)
			r.Post("/guilds/{guildID}/leave", s.handleLeaveGuild)
			r.Post("/predictions", s.handleSubmitPrediction)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Post("/markets", s.handleCreateMarket)
				r.Post("/price", s.handleSetPrice)
			})
		})

		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/price", s.handlePrice)
		r.Get("/windows/{kind}", s.handleWindows)
		r.Get("/supply", s.handleSupply)
		r.Get("/shards", s.handleShards)

		r.Get("/players/{playerID}", s.handleGetPlayer)
		r.Get("/guilds/{guildID}", s.handleGetGuild)
		r.Get("/markets", s.handleListMarkets)
	})

	return r
}

// submit sends one operation into the core loop and waits for the reply.
func (s *Server) submit(op core.Operation) (any, error) {
	reply := make(chan core.Reply, 1)
	s.requests <- core.Request{Op: op, Reply: reply}
	res := <-reply
	return res.Data, res.Err
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" || r.Header.Get("X-Admin-Token") != s.adminToken {
			writeError(w, http.StatusForbidden, errors.New("admin token required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Mutations ---

type registerPlayerRequest struct {
	PlayerID    string `json:"player_id,omitempty"`
	DisplayName string `json:"display_name"`
}

func (s *Server) handleRegisterPlayer(w http.ResponseWriter, r *http.Request) {
	var req registerPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, errors.New("display_name is required"))
		return
	}

	playerID := uuid.New()
	if req.PlayerID != "" {
		parsed, err := uuid.Parse(req.PlayerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		playerID = parsed
	}

	_, err := s.submit(core.RegisterPlayer{
		Player:      playerID,
		DisplayName: req.DisplayName,
		Timestamp:   time.Now().UnixMicro(),
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"player_id": playerID.String()})
}

type createGuildRequest struct {
	FounderID string `json:"founder_id"`
	Name      string `json:"name"`
}

func (s *Server) handleCreateGuild(w http.ResponseWriter, r *http.Request) {
	var req createGuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	founder, err := uuid.Parse(req.FounderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}

	if _, err := s.submit(core.CreateGuild{
		Founder:   founder,
		GuildName: req.Name,
		Timestamp: time.Now().UnixMicro(),
	}); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

type guildMemberRequest struct {
	PlayerID string `json:"player_id"`
}

func (s *Server) handleJoinGuild(w http.ResponseWriter, r *http.Request) {
	s.handleMembership(w, r, true)
}

func (s *Server) handleLeaveGuild(w http.ResponseWriter, r *http.Request) {
	s.handleMembership(w, r, false)
}

func (s *Server) handleMembership(w http.ResponseWriter, r *http.Request, join bool) {
	var req guildMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	player, err := uuid.Parse(req.PlayerID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	guildID := chi.URLParam(r, "guildID")
	ts := time.Now().UnixMicro()

	var op core.Operation
	if join {
		op = core.JoinGuild{Player: player, Guild: guildID, Timestamp: ts}
	} else {
		op = core.LeaveGuild{Player: player, Guild: guildID, Timestamp: ts}
	}

	if _, err := s.submit(op); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createMarketRequest struct {
	CreatorID string `json:"creator_id"`
	Title     string `json:"title"`
}

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	creator, err := uuid.Parse(req.CreatorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if _, err := s.submit(core.CreateMarket{
		Creator:   creator,
		Title:     req.Title,
		Timestamp: time.Now().UnixMicro(),
	}); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

type submitPredictionRequest struct {
	PlayerID  string `json:"player_id"`
	Kind      string `json:"kind"`      // daily, weekly, monthly
	Direction string `json:"direction"` // rise, fall
}

func (s *Server) handleSubmitPrediction(w http.ResponseWriter, r *http.Request) {
	var req submitPredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	player, err := uuid.Parse(req.PlayerID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	kind, err := state.ParsePeriodKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	dir, err := state.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if _, err := s.submit(core.SubmitPrediction{
		Player:    player,
		Kind:      kind,
		Direction: dir,
		Timestamp: time.Now().UnixMicro(),
	}); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type setPriceRequest struct {
	Price int64 `json:"price"`
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	var req setPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if _, err := s.submit(core.SetPrice{
		Price:     req.Price,
		Timestamp: time.Now().UnixMicro(),
	}); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Live queries (served from inside the core loop) ---

type leaderboardResponse struct {
	Players []playerEntryJSON `json:"players"`
	Guilds  []guildEntryJSON  `json:"guilds"`
}

type playerEntryJSON struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Level       int32  `json:"level"`
	TotalEarned int64  `json:"total_earned"`
}

type guildEntryJSON struct {
	GuildID     string `json:"guild_id"`
	Name        string `json:"name"`
	MemberCount int32  `json:"member_count"`
	TotalPoints int64  `json:"total_points"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") == "persisted" {
		s.handlePersistedLeaderboard(w, r)
		return
	}
	data, err := s.submit(core.QueryLeaderboard{})
	if err != nil {
		writeOpError(w, err)
		return
	}
	snap := data.(leaderboard.Snapshot)

	resp := leaderboardResponse{
		Players: make([]playerEntryJSON, len(snap.Players)),
		Guilds:  make([]guildEntryJSON, len(snap.Guilds)),
	}
	for i, p := range snap.Players {
		resp.Players[i] = playerEntryJSON{
			PlayerID:    p.Player.String(),
			DisplayName: p.DisplayName,
			Level:       p.Level,
			TotalEarned: p.TotalEarned,
		}
	}
	for i, g := range snap.Guilds {
		resp.Guilds[i] = guildEntryJSON{
			GuildID:     g.Guild,
			Name:        g.Name,
			MemberCount: g.MemberCount,
			TotalPoints: g.TotalPoints,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	data, err := s.submit(core.QueryPrice{})
	if err != nil {
		writeOpError(w, err)
		return
	}
	pf, _ := data.(*projection.PriceFact)
	if pf == nil {
		writeError(w, http.StatusNotFound, errors.New("no price observed yet"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"price":          pf.Price,
		"observed_at_us": pf.Timestamp,
		"logical_time":   pf.LogicalTime,
	})
}

type windowJSON struct {
	Kind       string `json:"kind"`
	StartUs    int64  `json:"start_us"`
	EndUs      int64  `json:"end_us"`
	StartPrice *int64 `json:"start_price,omitempty"`
	EndPrice   *int64 `json:"end_price,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	Resolved   bool   `json:"resolved"`
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	kind, err := state.ParsePeriodKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	data, err := s.submit(core.QueryWindows{Kind: kind})
	if err != nil {
		writeOpError(w, err)
		return
	}
	windows := data.([]state.Window)

	resp := make([]windowJSON, len(windows))
	for i, win := range windows {
		j := windowJSON{
			Kind:     win.Kind.String(),
			StartUs:  win.Start,
			EndUs:    win.End,
			Resolved: win.Resolved,
		}
		if win.StartPrice != nil {
			j.StartPrice = &win.StartPrice.Price
		}
		if win.EndPrice != nil {
			j.EndPrice = &win.EndPrice.Price
		}
		if win.Resolved {
			j.Outcome = win.Outcome.String()
		}
		resp[i] = j
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") == "persisted" {
		resp, err := s.queries.GetSupply(r.Context())
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	data, err := s.submit(core.QuerySupply{})
	if err != nil {
		writeOpError(w, err)
		return
	}
	view := data.(core.SupplyView)
	writeJSON(w, http.StatusOK, map[string]int64{
		"local": view.Local,
		"total": view.Total,
	})
}

func (s *Server) handleShards(w http.ResponseWriter, r *http.Request) {
	data, err := s.submit(core.QueryShards{})
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shards": data})
}

// --- Persisted queries (Postgres projections) ---

// handlePersistedLeaderboard serves the board from the converged
// Postgres projections instead of the core loop. It answers while the
// core is warming up and sees every shard's settlements, not only the
// local board.
func (s *Server) handlePersistedLeaderboard(w http.ResponseWriter, r *http.Request) {
	players, err := s.queries.TopPlayers(r.Context(), leaderboard.MaxPlayers)
	if err != nil {
		writeOpError(w, err)
		return
	}
	guilds, err := s.queries.TopGuilds(r.Context(), leaderboard.MaxGuilds)
	if err != nil {
		writeOpError(w, err)
		return
	}

	resp := leaderboardResponse{
		Players: make([]playerEntryJSON, len(players)),
		Guilds:  make([]guildEntryJSON, len(guilds)),
	}
	for i, p := range players {
		resp.Players[i] = playerEntryJSON{
			PlayerID:    p.PlayerID.String(),
			DisplayName: p.DisplayName,
			Level:       p.Level,
			TotalEarned: p.TotalEarned,
		}
	}
	for i, g := range guilds {
		resp.Guilds[i] = guildEntryJSON{
			GuildID:     g.GuildID,
			Name:        g.Name,
			MemberCount: g.MemberCount,
			TotalPoints: g.TotalPoints,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	playerID, err := uuid.Parse(chi.URLParam(r, "playerID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := s.queries.GetPlayer(r.Context(), playerID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetGuild(w http.ResponseWriter, r *http.Request) {
	g, err := s.queries.GetGuild(r.Context(), chi.URLParam(r, "guildID"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.queries.ListMarkets(r.Context(), 100)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, markets)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeOpError maps domain errors onto HTTP status codes.
func writeOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, state.ErrPlayerNotFound),
		errors.Is(err, state.ErrGuildNotFound),
		errors.Is(err, state.ErrMarketNotFound),
		errors.Is(err, query.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, state.ErrPlayerExists),
		errors.Is(err, state.ErrAlreadyInGuild),
		errors.Is(err, state.ErrNotGuildMember),
		errors.Is(err, state.ErrDuplicatePrediction),
		errors.Is(err, state.ErrWindowResolved):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, state.ErrInvalidDirection),
		errors.Is(err, core.ErrInvalidPrice):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
