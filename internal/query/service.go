package query

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// QueryService provides read-only access to the projection tables.
// The HTTP surface serves live reads from inside the core loop; these
// queries hit Postgres instead, so they survive restarts and can be
// pointed at a replica.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// PlayerResponse is the persisted converged view of one player.
type PlayerResponse struct {
	PlayerID    uuid.UUID `json:"player_id"`
	DisplayName string    `json:"display_name"`
	TotalEarned int64     `json:"total_earned"`
	TotalProfit int64     `json:"total_profit"`
	Level       int32     `json:"level"`
	GuildID     *string   `json:"guild_id,omitempty"`
	LastUpdated int64     `json:"last_updated"`
}

// GuildResponse is the persisted converged view of one guild.
type GuildResponse struct {
	GuildID     string `json:"guild_id"`
	Name        string `json:"name"`
	MemberCount int32  `json:"member_count"`
	TotalPoints int64  `json:"total_points"`
	LastUpdated int64  `json:"last_updated"`
}

// MarketResponse is one prediction market.
type MarketResponse struct {
	MarketID  string    `json:"market_id"`
	CreatorID uuid.UUID `json:"creator_id"`
	Title     string    `json:"title"`
	CreatedAt int64     `json:"created_at_us"`
}

// SupplyResponse reports the global supply and its per-origin parts.
type SupplyResponse struct {
	Total   int64            `json:"total"`
	Origins map[string]int64 `json:"origins"`
}

// GetPlayer returns one converged player view.
func (qs *QueryService) GetPlayer(ctx context.Context, playerID uuid.UUID) (*PlayerResponse, error) {
	var p PlayerResponse
	err := qs.db.QueryRowContext(ctx, `
		SELECT player_id, display_name, total_earned, total_profit, level, guild_id, last_updated
		FROM projections.global_players
		WHERE player_id = $1
	`, playerID).Scan(
		&p.PlayerID, &p.DisplayName, &p.TotalEarned, &p.TotalProfit,
		&p.Level, &p.GuildID, &p.LastUpdated,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetGuild returns one converged guild view.
func (qs *QueryService) GetGuild(ctx context.Context, guildID string) (*GuildResponse, error) {
	var g GuildResponse
	err := qs.db.QueryRowContext(ctx, `
		SELECT guild_id, name, member_count, total_points, last_updated
		FROM projections.global_guilds
		WHERE guild_id = $1
	`, guildID).Scan(&g.GuildID, &g.Name, &g.MemberCount, &g.TotalPoints, &g.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListMarkets returns every known market, newest first.
func (qs *QueryService) ListMarkets(ctx context.Context, limit int) ([]MarketResponse, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT market_id, creator_id, title, created_at_us
		FROM projections.global_markets
		ORDER BY created_at_us DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []MarketResponse
	for rows.Next() {
		var m MarketResponse
		if err := rows.Scan(&m.MarketID, &m.CreatorID, &m.Title, &m.CreatedAt); err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// GetSupply sums every origin shard's persisted supply.
func (qs *QueryService) GetSupply(ctx context.Context) (*SupplyResponse, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT origin_shard, supply
		FROM projections.supply_state
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &SupplyResponse{Origins: make(map[string]int64)}
	for rows.Next() {
		var origin string
		var supply int64
		if err := rows.Scan(&origin, &supply); err != nil {
			return nil, err
		}
		resp.Origins[origin] = supply
		resp.Total += supply
	}
	return resp, rows.Err()
}

// TopPlayers returns the persisted player board, ranked like the live
// one: lifetime earnings descending.
func (qs *QueryService) TopPlayers(ctx context.Context, limit int) ([]PlayerResponse, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT player_id, display_name, total_earned, total_profit, level, guild_id, last_updated
		FROM projections.global_players
		ORDER BY total_earned DESC, player_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []PlayerResponse
	for rows.Next() {
		var p PlayerResponse
		if err := rows.Scan(
			&p.PlayerID, &p.DisplayName, &p.TotalEarned, &p.TotalProfit,
			&p.Level, &p.GuildID, &p.LastUpdated,
		); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// TopGuilds returns the persisted guild board. The guild score here is
// the sum of its members' earnings, recomputed from the player rows.
// It is the same definition the live board maintains incrementally.
func (qs *QueryService) TopGuilds(ctx context.Context, limit int) ([]GuildResponse, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT g.guild_id, g.name, COUNT(p.player_id), COALESCE(SUM(p.total_earned), 0), g.last_updated
		FROM projections.global_guilds g
		LEFT JOIN projections.global_players p ON p.guild_id = g.guild_id
		GROUP BY g.guild_id, g.name, g.last_updated
		ORDER BY COALESCE(SUM(p.total_earned), 0) DESC, g.guild_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guilds []GuildResponse
	for rows.Next() {
		var g GuildResponse
		if err := rows.Scan(&g.GuildID, &g.Name, &g.MemberCount, &g.TotalPoints, &g.LastUpdated); err != nil {
			return nil, err
		}
		guilds = append(guilds, g)
	}
	return guilds, rows.Err()
}
