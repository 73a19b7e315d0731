package state

import (
	"testing"

	"github.com/google/uuid"
)

var (
	alice = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	bob   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

// ---------------------------------------------------------------------------
// Players
// ---------------------------------------------------------------------------

func TestRegisterIsUniquePerPlayer(t *testing.T) {
	pm := NewPlayerManager()
	p, err := pm.Register(alice, "alice", 1000)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if p.Level != 1 {
		t.Fatalf("level = %d, want 1", p.Level)
	}
	if _, err := pm.Register(alice, "alice again", 2000); err != ErrPlayerExists {
		t.Fatalf("err = %v, want ErrPlayerExists", err)
	}
}

func TestProfitIsEarnedMinusLost(t *testing.T) {
	pm := NewPlayerManager()
	pm.Register(alice, "alice", 1000)
	pm.RecordWin(alice, 500)
	pm.RecordLoss(alice, 120)

	p, _ := pm.Get(alice)
	if p.TotalEarned != 500 || p.TotalLost != 120 || p.TotalProfit() != 380 {
		t.Fatalf("earned/lost/profit = %d/%d/%d", p.TotalEarned, p.TotalLost, p.TotalProfit())
	}
}

func TestLevelAdvancesOnCumulativeThresholds(t *testing.T) {
	pm := NewPlayerManager()
	pm.Register(alice, "alice", 1000)

	// Level 2 at 1000 XP cumulative, level 3 at 2000
	pm.AddExperience(alice, 999)
	if p, _ := pm.Get(alice); p.Level != 1 {
		t.Fatalf("level = %d, want 1 at 999 xp", p.Level)
	}
	pm.AddExperience(alice, 1)
	if p, _ := pm.Get(alice); p.Level != 2 {
		t.Fatalf("level = %d, want 2 at 1000 xp", p.Level)
	}
	pm.AddExperience(alice, 2500)
	if p, _ := pm.Get(alice); p.Level != 4 {
		t.Fatalf("level = %d, want 4 at 3500 xp", p.Level)
	}
}

// ---------------------------------------------------------------------------
// Guilds
// ---------------------------------------------------------------------------

func TestGuildIDsCarryTheShardPrefix(t *testing.T) {
	gm := NewGuildManager("shard-a")
	g1, err := gm.Create(alice, "wolves", 1000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	g2, _ := gm.Create(bob, "bears", 1000)
	if g1.ID != "shard-a-1" || g2.ID != "shard-a-2" {
		t.Fatalf("ids = %s, %s", g1.ID, g2.ID)
	}
}

func TestOneGuildPerPlayer(t *testing.T) {
	gm := NewGuildManager("shard-a")
	g, _ := gm.Create(alice, "wolves", 1000)

	if _, err := gm.Create(alice, "second", 1000); err != ErrAlreadyInGuild {
		t.Fatalf("err = %v, want ErrAlreadyInGuild", err)
	}
	if _, err := gm.Join(alice, g.ID); err != ErrAlreadyInGuild {
		t.Fatalf("err = %v, want ErrAlreadyInGuild", err)
	}

	if _, err := gm.Join(bob, g.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(g.Members) != 2 || g.Members[0] != alice {
		t.Fatalf("members = %v, want founder first", g.Members)
	}
}

func TestLeaveKeepsEmptiedGuildRegistered(t *testing.T) {
	gm := NewGuildManager("shard-a")
	g, _ := gm.Create(alice, "wolves", 1000)

	if _, err := gm.Leave(bob, g.ID); err != ErrNotGuildMember {
		t.Fatalf("err = %v, want ErrNotGuildMember", err)
	}
	if _, err := gm.Leave(alice, g.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if len(g.Members) != 0 {
		t.Fatalf("members = %v, want empty", g.Members)
	}
	if _, ok := gm.Get(g.ID); !ok {
		t.Fatal("emptied guild dropped from registry")
	}
	// Founder is free to found again
	if _, err := gm.Create(alice, "wolves two", 2000); err != nil {
		t.Fatalf("re-create: %v", err)
	}
}

func TestGuildPointsClampAtZero(t *testing.T) {
	gm := NewGuildManager("shard-a")
	g, _ := gm.Create(alice, "wolves", 1000)

	gm.AddPoints(g.ID, 300)
	gm.AddPoints(g.ID, -500)
	if g.TotalPoints != 0 {
		t.Fatalf("points = %d, want 0", g.TotalPoints)
	}
}
