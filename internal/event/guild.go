package event

import (
	"fmt"

	"github.com/google/uuid"
)

// GuildCreated announces a new guild. Guild IDs are namespaced by the
// founding shard so concurrent creations on different shards never
// collide. Insert-if-absent.
type GuildCreated struct {
	Guild     string
	Name      string
	Founder   uuid.UUID
	Timestamp int64
}

func (g *GuildCreated) Kind() FactKind {
	return FactKindGuildCreated
}

func (g *GuildCreated) DedupPayload() string {
	return fmt.Sprintf("%s:%s", g.Guild, g.Name)
}

// GuildScoreChanged carries a guild's aggregate snapshot after any
// membership or point change on the shard that owns it. Last-write-wins.
type GuildScoreChanged struct {
	Guild       string
	Name        string
	MemberCount int32
	TotalPoints int64
	Timestamp   int64
}

func (g *GuildScoreChanged) Kind() FactKind {
	return FactKindGuildScoreChanged
}

func (g *GuildScoreChanged) DedupPayload() string {
	return fmt.Sprintf("%s:%d:%d", g.Guild, g.MemberCount, g.TotalPoints)
}

// MarketCreated announces a new prediction market. Insert-if-absent.
type MarketCreated struct {
	Market    string
	Creator   uuid.UUID
	Title     string
	Timestamp int64
}

func (m *MarketCreated) Kind() FactKind {
	return FactKindMarketCreated
}

func (m *MarketCreated) DedupPayload() string {
	return fmt.Sprintf("%s:%s", m.Market, m.Title)
}
