package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"PredictMesh/internal/projection"

	"github.com/google/uuid"
)

// ProjectionWriter writes the processed-message log and projection
// tables using multi-row INSERTs. Every statement is idempotent: the
// message log inserts ON CONFLICT DO NOTHING, and projection upserts
// repeat the core's strict-greater last-write-wins check in SQL, so a
// replayed batch after a crash can never regress a row.
type ProjectionWriter struct {
	db *sql.DB
}

// ProcessedMessageRow is one row in message_log.processed_messages.
type ProcessedMessageRow struct {
	MessageID   string
	OriginShard string
	Kind        string
	LogicalTime int64
}

func NewProjectionWriter(db *sql.DB) *ProjectionWriter {
	return &ProjectionWriter{db: db}
}

// WriteProcessedMessages appends the durable dedup records.
func (w *ProjectionWriter) WriteProcessedMessages(ctx context.Context, tx *sql.Tx, rows []ProcessedMessageRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO message_log.processed_messages
		(message_id, origin_shard, kind, logical_time)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*4)
	for i, r := range rows {
		base := i * 4
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4))
		args = append(args, r.MessageID, r.OriginShard, r.Kind, r.LogicalTime)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (message_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// Postgres rejects a single INSERT ... ON CONFLICT DO UPDATE that
// touches the same key twice, and one batch routinely carries several
// snapshots of one entity (a sweep settling a player in two windows,
// several outputs landing inside one flush window). Each upsert keeps
// only the newest snapshot per key before building the statement; the
// older ones would lose the strict-greater check anyway.

func dedupePlayers(rows []projection.GlobalPlayer) []projection.GlobalPlayer {
	if len(rows) < 2 {
		return rows
	}
	index := make(map[uuid.UUID]int, len(rows))
	out := make([]projection.GlobalPlayer, 0, len(rows))
	for _, r := range rows {
		if i, ok := index[r.ID]; ok {
			if r.LastUpdated > out[i].LastUpdated {
				out[i] = r
			}
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

func dedupeGuilds(rows []projection.GlobalGuild) []projection.GlobalGuild {
	if len(rows) < 2 {
		return rows
	}
	index := make(map[string]int, len(rows))
	out := make([]projection.GlobalGuild, 0, len(rows))
	for _, r := range rows {
		if i, ok := index[r.ID]; ok {
			if r.LastUpdated > out[i].LastUpdated {
				out[i] = r
			}
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

func dedupeSupplies(rows []projection.SupplyEntry) []projection.SupplyEntry {
	if len(rows) < 2 {
		return rows
	}
	index := make(map[string]int, len(rows))
	out := make([]projection.SupplyEntry, 0, len(rows))
	for _, r := range rows {
		if i, ok := index[r.Origin]; ok {
			if r.LastUpdated > out[i].LastUpdated {
				out[i] = r
			}
			continue
		}
		index[r.Origin] = len(out)
		out = append(out, r)
	}
	return out
}

// UpsertPlayers writes converged player views.
func (w *ProjectionWriter) UpsertPlayers(ctx context.Context, tx *sql.Tx, rows []projection.GlobalPlayer) error {
	rows = dedupePlayers(rows)
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO projections.global_players
		(player_id, display_name, total_earned, total_profit, level, guild_id, last_updated)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*7)
	for i, p := range rows {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			p.ID, p.DisplayName, p.TotalEarned, p.TotalProfit, p.Level, p.GuildID, p.LastUpdated,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (player_id) DO UPDATE SET
		display_name = EXCLUDED.display_name,
		total_earned = EXCLUDED.total_earned,
		total_profit = EXCLUDED.total_profit,
		level        = EXCLUDED.level,
		guild_id     = EXCLUDED.guild_id,
		last_updated = EXCLUDED.last_updated
		WHERE EXCLUDED.last_updated > global_players.last_updated`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertGuilds writes converged guild views.
func (w *ProjectionWriter) UpsertGuilds(ctx context.Context, tx *sql.Tx, rows []projection.GlobalGuild) error {
	rows = dedupeGuilds(rows)
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO projections.global_guilds
		(guild_id, name, member_count, total_points, last_updated)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*5)
	for i, g := range rows {
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, g.ID, g.Name, g.MemberCount, g.TotalPoints, g.LastUpdated)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (guild_id) DO UPDATE SET
		name         = EXCLUDED.name,
		member_count = EXCLUDED.member_count,
		total_points = EXCLUDED.total_points,
		last_updated = EXCLUDED.last_updated
		WHERE EXCLUDED.last_updated > global_guilds.last_updated`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertMarkets writes market identities. Markets never mutate.
func (w *ProjectionWriter) UpsertMarkets(ctx context.Context, tx *sql.Tx, rows []projection.GlobalMarket) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO projections.global_markets
		(market_id, creator_id, title, created_at_us)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*4)
	for i, m := range rows {
		base := i * 4
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4))
		args = append(args, m.ID, m.Creator, m.Title, m.CreatedAt)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (market_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertPrice writes the singleton converged price row.
func (w *ProjectionWriter) UpsertPrice(ctx context.Context, tx *sql.Tx, price *projection.PriceFact) error {
	if price == nil {
		return nil
	}

	query := `INSERT INTO projections.price_state
		(singleton, price, observed_at_us, logical_time)
		VALUES (TRUE, $1, $2, $3)
		ON CONFLICT (singleton) DO UPDATE SET
		price          = EXCLUDED.price,
		observed_at_us = EXCLUDED.observed_at_us,
		logical_time   = EXCLUDED.logical_time
		WHERE EXCLUDED.logical_time > price_state.logical_time`

	_, err := tx.ExecContext(ctx, query, price.Price, price.Timestamp, price.LogicalTime)
	return err
}

// UpsertSupplies writes per-origin supply entries.
func (w *ProjectionWriter) UpsertSupplies(ctx context.Context, tx *sql.Tx, rows []projection.SupplyEntry) error {
	rows = dedupeSupplies(rows)
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO projections.supply_state
		(origin_shard, supply, last_updated)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*3)
	for i, s := range rows {
		base := i * 3
		values = append(values, fmt.Sprintf("($%d, $%d, $%d)", base+1, base+2, base+3))
		args = append(args, s.Origin, s.Supply, s.LastUpdated)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (origin_shard) DO UPDATE SET
		supply       = EXCLUDED.supply,
		last_updated = EXCLUDED.last_updated
		WHERE EXCLUDED.last_updated > supply_state.last_updated`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
