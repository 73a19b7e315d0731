package state

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPlayerExists   = errors.New("player already registered")
	ErrPlayerNotFound = errors.New("player not found")
)

// Player is the locally authoritative record for a player registered on
// this shard. Cross-shard views of remote players live in the
// projection store, not here.
type Player struct {
	ID           uuid.UUID
	DisplayName  string
	TotalEarned  int64
	TotalLost    int64
	XP           int64
	Level        int32
	GuildID      *string
	RegisteredAt int64 // Epoch microseconds (versioned input)
}

// TotalProfit is lifetime earnings minus lifetime losses.
func (p *Player) TotalProfit() int64 {
	return p.TotalEarned - p.TotalLost
}

// PlayerManager owns all players registered on the local shard.
// Not thread-safe; only accessed from the single-threaded shard core.
type PlayerManager struct {
	players map[uuid.UUID]*Player
}

func NewPlayerManager() *PlayerManager {
	return &PlayerManager{
		players: make(map[uuid.UUID]*Player),
	}
}

// Register creates a player record. The initial balance grant is the
// ledger's business, not tracked here.
func (pm *PlayerManager) Register(id uuid.UUID, displayName string, ts int64) (*Player, error) {
	if _, ok := pm.players[id]; ok {
		return nil, ErrPlayerExists
	}
	p := &Player{
		ID:           id,
		DisplayName:  displayName,
		Level:        1,
		RegisteredAt: ts,
	}
	pm.players[id] = p
	return p, nil
}

// Get returns the local player record.
func (pm *PlayerManager) Get(id uuid.UUID) (*Player, bool) {
	p, ok := pm.players[id]
	return p, ok
}

// RecordWin adds earned points to the player's lifetime totals.
func (pm *PlayerManager) RecordWin(id uuid.UUID, points int64) {
	if p, ok := pm.players[id]; ok && points > 0 {
		p.TotalEarned += points
	}
}

// RecordLoss adds the actually-deducted amount to lifetime losses.
// Callers pass the post-clamp figure, which may be less than the tier.
func (pm *PlayerManager) RecordLoss(id uuid.UUID, points int64) {
	if p, ok := pm.players[id]; ok && points > 0 {
		p.TotalLost += points
	}
}

// AddExperience grants XP and advances the level whenever accumulated
// XP crosses the next threshold (level * 1000 cumulative).
func (pm *PlayerManager) AddExperience(id uuid.UUID, xp int64) {
	p, ok := pm.players[id]
	if !ok || xp <= 0 {
		return
	}
	p.XP += xp
	for p.XP >= int64(p.Level)*1000 {
		p.Level++
	}
}

// SetGuild records guild membership (nil clears it).
func (pm *PlayerManager) SetGuild(id uuid.UUID, guildID *string) {
	if p, ok := pm.players[id]; ok {
		p.GuildID = guildID
	}
}

// Count returns the number of locally registered players.
func (pm *PlayerManager) Count() int {
	return len(pm.players)
}
