package query

import (
	"context"
	"database/sql"
	"testing"

	"PredictMesh/internal/persistence"
	"PredictMesh/internal/testutil"

	"github.com/google/uuid"
)

var (
	qAlice = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	qBob   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	qCarol = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func setupQueryDB(t *testing.T) (*QueryService, *sql.DB, func()) {
	t.Helper()
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	if err := persistence.NewMigrator(db, "../../migrations").Up(context.Background()); err != nil {
		cleanup()
		t.Fatalf("migrations: %v", err)
	}
	return NewQueryService(db), db, cleanup
}

func seedPlayer(t *testing.T, db *sql.DB, id uuid.UUID, name string, earned int64, guild *string) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO projections.global_players
		(player_id, display_name, total_earned, total_profit, level, guild_id, last_updated)
		VALUES ($1, $2, $3, $3, 1, $4, 1)
	`, id, name, earned, guild)
	if err != nil {
		t.Fatalf("seed player %s: %v", name, err)
	}
}

func seedGuild(t *testing.T, db *sql.DB, id, name string, members int32) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO projections.global_guilds (guild_id, name, member_count, total_points, last_updated)
		VALUES ($1, $2, $3, 0, 1)
	`, id, name, members)
	if err != nil {
		t.Fatalf("seed guild %s: %v", name, err)
	}
}

// ---------------------------------------------------------------------------
// Single-row reads
// ---------------------------------------------------------------------------

func TestGetPlayerRoundTripAndNotFound(t *testing.T) {
	qs, db, cleanup := setupQueryDB(t)
	defer cleanup()
	ctx := context.Background()

	guild := "shard-a-1"
	seedPlayer(t, db, qAlice, "alice", 600, &guild)

	p, err := qs.GetPlayer(ctx, qAlice)
	if err != nil {
		t.Fatalf("get player: %v", err)
	}
	if p.DisplayName != "alice" || p.TotalEarned != 600 || p.GuildID == nil || *p.GuildID != guild {
		t.Fatalf("player = %+v", p)
	}

	if _, err := qs.GetPlayer(ctx, qBob); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := qs.GetGuild(ctx, "no-such-guild"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Boards and aggregates
// ---------------------------------------------------------------------------

func TestTopPlayersRanksByEarnedWithLimit(t *testing.T) {
	qs, db, cleanup := setupQueryDB(t)
	defer cleanup()

	seedPlayer(t, db, qAlice, "alice", 600, nil)
	seedPlayer(t, db, qBob, "bob", 100, nil)
	seedPlayer(t, db, qCarol, "carol", 300, nil)

	top, err := qs.TopPlayers(context.Background(), 2)
	if err != nil {
		t.Fatalf("top players: %v", err)
	}
	if len(top) != 2 || top[0].DisplayName != "alice" || top[1].DisplayName != "carol" {
		t.Fatalf("board = %+v, want [alice carol]", top)
	}
}

func TestTopGuildsSumMemberEarnings(t *testing.T) {
	qs, db, cleanup := setupQueryDB(t)
	defer cleanup()

	g1, g2 := "shard-a-1", "shard-a-2"
	seedGuild(t, db, g1, "wolves", 2)
	seedGuild(t, db, g2, "bears", 1)
	seedPlayer(t, db, qAlice, "alice", 100, &g1)
	seedPlayer(t, db, qBob, "bob", 200, &g1)
	seedPlayer(t, db, qCarol, "carol", 250, &g2)

	top, err := qs.TopGuilds(context.Background(), 10)
	if err != nil {
		t.Fatalf("top guilds: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("guilds = %d, want 2", len(top))
	}
	if top[0].GuildID != g1 || top[0].TotalPoints != 300 {
		t.Fatalf("first = %+v, want wolves at 300", top[0])
	}
	if top[1].GuildID != g2 || top[1].TotalPoints != 250 {
		t.Fatalf("second = %+v, want bears at 250", top[1])
	}
}

func TestGetSupplySpansOrigins(t *testing.T) {
	qs, db, cleanup := setupQueryDB(t)
	defer cleanup()

	for _, seed := range []struct {
		origin string
		supply int64
	}{{"shard-a", 3300}, {"shard-b", 1000}} {
		if _, err := db.Exec(`
			INSERT INTO projections.supply_state (origin_shard, supply, last_updated) VALUES ($1, $2, 1)
		`, seed.origin, seed.supply); err != nil {
			t.Fatalf("seed supply: %v", err)
		}
	}

	resp, err := qs.GetSupply(context.Background())
	if err != nil {
		t.Fatalf("get supply: %v", err)
	}
	if resp.Total != 4300 || resp.Origins["shard-a"] != 3300 || resp.Origins["shard-b"] != 1000 {
		t.Fatalf("supply = %+v, want total 4300", resp)
	}
}

func TestListMarketsNewestFirst(t *testing.T) {
	qs, db, cleanup := setupQueryDB(t)
	defer cleanup()

	for i, m := range []struct {
		id string
		at int64
	}{{"shard-a-1", 100}, {"shard-a-2", 300}, {"shard-a-3", 200}} {
		if _, err := db.Exec(`
			INSERT INTO projections.global_markets (market_id, creator_id, title, created_at_us)
			VALUES ($1, $2, $3, $4)
		`, m.id, qAlice, "market", m.at); err != nil {
			t.Fatalf("seed market %d: %v", i, err)
		}
	}

	markets, err := qs.ListMarkets(context.Background(), 2)
	if err != nil {
		t.Fatalf("list markets: %v", err)
	}
	if len(markets) != 2 || markets[0].MarketID != "shard-a-2" || markets[1].MarketID != "shard-a-3" {
		t.Fatalf("markets = %+v, want newest two", markets)
	}
}
