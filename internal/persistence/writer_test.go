package persistence

import (
	"testing"

	"PredictMesh/internal/projection"

	"github.com/google/uuid"
)

var (
	testPlayerA = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testPlayerB = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

// ---------------------------------------------------------------------------
// Batch key dedup
// ---------------------------------------------------------------------------

func TestDedupePlayersKeepsNewestPerKey(t *testing.T) {
	rows := []projection.GlobalPlayer{
		{ID: testPlayerA, TotalEarned: 100, LastUpdated: 5},
		{ID: testPlayerB, TotalEarned: 50, LastUpdated: 6},
		{ID: testPlayerA, TotalEarned: 600, LastUpdated: 8},
	}

	got := dedupePlayers(rows)
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2 after dedup", len(got))
	}
	// First occurrence keeps its slot, the newer snapshot wins it
	if got[0].ID != testPlayerA || got[0].TotalEarned != 600 || got[0].LastUpdated != 8 {
		t.Fatalf("player A row = %+v, want newest snapshot", got[0])
	}
	if got[1].ID != testPlayerB {
		t.Fatalf("player B row = %+v", got[1])
	}
}

func TestDedupePlayersOlderDuplicateIsDropped(t *testing.T) {
	rows := []projection.GlobalPlayer{
		{ID: testPlayerA, TotalEarned: 600, LastUpdated: 8},
		{ID: testPlayerA, TotalEarned: 100, LastUpdated: 5},
	}

	got := dedupePlayers(rows)
	if len(got) != 1 || got[0].TotalEarned != 600 {
		t.Fatalf("rows = %+v, want only the lt=8 snapshot", got)
	}
}

func TestDedupeGuildsAndSupplies(t *testing.T) {
	guilds := dedupeGuilds([]projection.GlobalGuild{
		{ID: "shard-a-1", TotalPoints: 100, LastUpdated: 3},
		{ID: "shard-a-1", TotalPoints: 300, LastUpdated: 7},
		{ID: "shard-a-2", TotalPoints: 10, LastUpdated: 4},
	})
	if len(guilds) != 2 || guilds[0].TotalPoints != 300 {
		t.Fatalf("guilds = %+v, want shard-a-1 at 300", guilds)
	}

	supplies := dedupeSupplies([]projection.SupplyEntry{
		{Origin: "shard-a", Supply: 1000, LastUpdated: 2},
		{Origin: "shard-a", Supply: 2000, LastUpdated: 4},
	})
	if len(supplies) != 1 || supplies[0].Supply != 2000 {
		t.Fatalf("supplies = %+v, want single shard-a at 2000", supplies)
	}
}

func TestDedupeLeavesDistinctKeysAlone(t *testing.T) {
	rows := []projection.GlobalPlayer{
		{ID: testPlayerA, LastUpdated: 1},
		{ID: testPlayerB, LastUpdated: 2},
	}
	got := dedupePlayers(rows)
	if len(got) != 2 || got[0].ID != testPlayerA || got[1].ID != testPlayerB {
		t.Fatalf("rows = %+v, want unchanged order", got)
	}
}
