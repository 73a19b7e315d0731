package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"PredictMesh/internal/projection"
	"PredictMesh/internal/testutil"
)

func setupWriterDB(t *testing.T) (*ProjectionWriter, *sql.DB, func()) {
	t.Helper()
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	if err := NewMigrator(db, "../../migrations").Up(context.Background()); err != nil {
		cleanup()
		t.Fatalf("migrations: %v", err)
	}
	return NewProjectionWriter(db), db, cleanup
}

func inTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx) error) {
	t.Helper()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		t.Fatalf("tx body: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Statement-level behavior
// ---------------------------------------------------------------------------

func TestUpsertBatchRepeatingOneKey(t *testing.T) {
	w, db, cleanup := setupWriterDB(t)
	defer cleanup()
	ctx := context.Background()

	// One statement carrying two snapshots of the same player must not
	// trip Postgres's "cannot affect row a second time" and must land
	// the newest snapshot.
	inTx(t, db, func(tx *sql.Tx) error {
		return w.UpsertPlayers(ctx, tx, []projection.GlobalPlayer{
			{ID: testPlayerA, DisplayName: "alice", TotalEarned: 100, LastUpdated: 5},
			{ID: testPlayerA, DisplayName: "alice", TotalEarned: 600, LastUpdated: 8},
		})
	})

	var earned, lastUpdated int64
	err := db.QueryRow(`SELECT total_earned, last_updated FROM projections.global_players WHERE player_id = $1`,
		testPlayerA).Scan(&earned, &lastUpdated)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if earned != 600 || lastUpdated != 8 {
		t.Fatalf("row = earned %d at lt %d, want 600 at 8", earned, lastUpdated)
	}

	inTx(t, db, func(tx *sql.Tx) error {
		return w.UpsertSupplies(ctx, tx, []projection.SupplyEntry{
			{Origin: "shard-a", Supply: 1000, LastUpdated: 2},
			{Origin: "shard-a", Supply: 2000, LastUpdated: 4},
		})
	})

	var supply int64
	if err := db.QueryRow(`SELECT supply FROM projections.supply_state WHERE origin_shard = 'shard-a'`).Scan(&supply); err != nil {
		t.Fatalf("read back supply: %v", err)
	}
	if supply != 2000 {
		t.Fatalf("supply = %d, want 2000", supply)
	}
}

func TestUpsertReplayCannotRegressRows(t *testing.T) {
	w, db, cleanup := setupWriterDB(t)
	defer cleanup()
	ctx := context.Background()

	write := func(earned, lt int64) {
		inTx(t, db, func(tx *sql.Tx) error {
			return w.UpsertPlayers(ctx, tx, []projection.GlobalPlayer{
				{ID: testPlayerA, DisplayName: "alice", TotalEarned: earned, LastUpdated: lt},
			})
		})
	}

	write(500, 10)
	write(100, 5)  // crash-replayed older batch
	write(500, 10) // exact replay, tie keeps existing

	var earned int64
	if err := db.QueryRow(`SELECT total_earned FROM projections.global_players WHERE player_id = $1`,
		testPlayerA).Scan(&earned); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if earned != 500 {
		t.Fatalf("earned = %d, want 500 after stale replays", earned)
	}

	write(900, 20)
	if err := db.QueryRow(`SELECT total_earned FROM projections.global_players WHERE player_id = $1`,
		testPlayerA).Scan(&earned); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if earned != 900 {
		t.Fatalf("earned = %d, want 900 after newer write", earned)
	}
}

func TestProcessedMessagesWriteOnce(t *testing.T) {
	w, db, cleanup := setupWriterDB(t)
	defer cleanup()
	ctx := context.Background()

	row := ProcessedMessageRow{MessageID: "abc123", OriginShard: "shard-a", Kind: "PlayerScoreChanged", LogicalTime: 7}
	inTx(t, db, func(tx *sql.Tx) error {
		return w.WriteProcessedMessages(ctx, tx, []ProcessedMessageRow{row, row})
	})
	inTx(t, db, func(tx *sql.Tx) error {
		return w.WriteProcessedMessages(ctx, tx, []ProcessedMessageRow{row})
	})

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM message_log.processed_messages WHERE message_id = 'abc123'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("rows = %d, want 1", n)
	}
}

// ---------------------------------------------------------------------------
// Worker flush path
// ---------------------------------------------------------------------------

func TestWorkerFlushesBatchWithRepeatedKeys(t *testing.T) {
	_, db, cleanup := setupWriterDB(t)
	defer cleanup()

	input := make(chan CoreOutput, 16)
	worker := NewPersistenceWorker(db, input, 100, 50*time.Millisecond, nil)

	done := make(chan error, 1)
	go func() { done <- worker.Run(context.Background()) }()

	// Two outputs inside one flush window touch the same origin and the
	// same player, the way one sweep or two registrations do.
	input <- CoreOutput{
		Processed: &ProcessedMessageRow{MessageID: "m1", OriginShard: "shard-a", Kind: "PlayerScoreChanged", LogicalTime: 3},
		Players:   []projection.GlobalPlayer{{ID: testPlayerA, DisplayName: "alice", TotalEarned: 100, LastUpdated: 3}},
		Supplies:  []projection.SupplyEntry{{Origin: "shard-a", Supply: 1000, LastUpdated: 3}},
	}
	input <- CoreOutput{
		Processed: &ProcessedMessageRow{MessageID: "m2", OriginShard: "shard-a", Kind: "PlayerScoreChanged", LogicalTime: 6},
		Players:   []projection.GlobalPlayer{{ID: testPlayerA, DisplayName: "alice", TotalEarned: 600, LastUpdated: 6}},
		Supplies:  []projection.SupplyEntry{{Origin: "shard-a", Supply: 2000, LastUpdated: 6}},
	}
	close(input)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("worker: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not drain the closed channel")
	}

	var earned, supply int64
	if err := db.QueryRow(`SELECT total_earned FROM projections.global_players WHERE player_id = $1`,
		testPlayerA).Scan(&earned); err != nil {
		t.Fatalf("read player: %v", err)
	}
	if err := db.QueryRow(`SELECT supply FROM projections.supply_state WHERE origin_shard = 'shard-a'`).Scan(&supply); err != nil {
		t.Fatalf("read supply: %v", err)
	}
	if earned != 600 || supply != 2000 {
		t.Fatalf("earned/supply = %d/%d, want 600/2000", earned, supply)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM message_log.processed_messages`).Scan(&n); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if n != 2 {
		t.Fatalf("processed rows = %d, want 2", n)
	}
}
