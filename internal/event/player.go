package event

import (
	"fmt"

	"github.com/google/uuid"
)

// PlayerRegistered announces a new player identity. Insert-if-absent:
// the first registration seen for a player ID wins everywhere.
type PlayerRegistered struct {
	Player      uuid.UUID
	DisplayName string
	Timestamp   int64 // Epoch microseconds (versioned input)
}

func (p *PlayerRegistered) Kind() FactKind {
	return FactKindPlayerRegistered
}

func (p *PlayerRegistered) DedupPayload() string {
	return fmt.Sprintf("%s:%s", p.Player, p.DisplayName)
}

// PlayerScoreChanged carries a player's full score snapshot after any
// point-affecting change on the origin shard. Reconciled last-write-wins.
type PlayerScoreChanged struct {
	Player      uuid.UUID
	DisplayName string
	TotalEarned int64
	TotalProfit int64
	Level       int32
	GuildID     *string
	Timestamp   int64
}

func (p *PlayerScoreChanged) Kind() FactKind {
	return FactKindPlayerScoreChanged
}

func (p *PlayerScoreChanged) DedupPayload() string {
	guild := ""
	if p.GuildID != nil {
		guild = *p.GuildID
	}
	return fmt.Sprintf("%s:%d:%d:%d:%s", p.Player, p.TotalEarned, p.TotalProfit, p.Level, guild)
}
