package state

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrGuildNotFound  = errors.New("guild not found")
	ErrAlreadyInGuild = errors.New("player already belongs to a guild")
	ErrNotGuildMember = errors.New("player is not a member of this guild")
)

// Guild is a locally authoritative guild. Membership is tracked on the
// shard that created the guild; peers only see the aggregate snapshot.
type Guild struct {
	ID          string
	Name        string
	Founder     uuid.UUID
	Members     []uuid.UUID // Insertion order, founder first
	TotalPoints int64
	CreatedAt   int64

	memberSet map[uuid.UUID]struct{}
}

// HasMember reports membership.
func (g *Guild) HasMember(player uuid.UUID) bool {
	_, ok := g.memberSet[player]
	return ok
}

// GuildManager owns guilds created on the local shard. Guild IDs are
// namespaced by shard ("<shard>-<n>") so creations never collide
// across the mesh. Not thread-safe.
type GuildManager struct {
	shardID  string
	guilds   map[string]*Guild
	memberOf map[uuid.UUID]string
	nextID   int64
}

func NewGuildManager(shardID string) *GuildManager {
	return &GuildManager{
		shardID:  shardID,
		guilds:   make(map[string]*Guild),
		memberOf: make(map[uuid.UUID]string),
		nextID:   1,
	}
}

// Create founds a guild with the founder as its first member.
func (gm *GuildManager) Create(founder uuid.UUID, name string, ts int64) (*Guild, error) {
	if _, taken := gm.memberOf[founder]; taken {
		return nil, ErrAlreadyInGuild
	}

	g := &Guild{
		ID:        fmt.Sprintf("%s-%d", gm.shardID, gm.nextID),
		Name:      name,
		Founder:   founder,
		Members:   []uuid.UUID{founder},
		CreatedAt: ts,
		memberSet: map[uuid.UUID]struct{}{founder: {}},
	}
	gm.nextID++
	gm.guilds[g.ID] = g
	gm.memberOf[founder] = g.ID
	return g, nil
}

// Get returns a locally owned guild.
func (gm *GuildManager) Get(id string) (*Guild, bool) {
	g, ok := gm.guilds[id]
	return g, ok
}

// Join adds a player to a guild. A player belongs to at most one guild.
func (gm *GuildManager) Join(player uuid.UUID, guildID string) (*Guild, error) {
	g, ok := gm.guilds[guildID]
	if !ok {
		return nil, ErrGuildNotFound
	}
	if _, taken := gm.memberOf[player]; taken {
		return nil, ErrAlreadyInGuild
	}
	g.Members = append(g.Members, player)
	g.memberSet[player] = struct{}{}
	gm.memberOf[player] = guildID
	return g, nil
}

// Leave removes a player. An emptied guild stays registered.
func (gm *GuildManager) Leave(player uuid.UUID, guildID string) (*Guild, error) {
	g, ok := gm.guilds[guildID]
	if !ok {
		return nil, ErrGuildNotFound
	}
	if !g.HasMember(player) {
		return nil, ErrNotGuildMember
	}
	delete(g.memberSet, player)
	delete(gm.memberOf, player)
	for i, m := range g.Members {
		if m == player {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			break
		}
	}
	return g, nil
}

// GuildOf returns the guild a player belongs to, if any.
func (gm *GuildManager) GuildOf(player uuid.UUID) (*Guild, bool) {
	id, ok := gm.memberOf[player]
	if !ok {
		return nil, false
	}
	g, ok := gm.guilds[id]
	return g, ok
}

// AddPoints adjusts the guild's aggregate score, clamping at zero.
func (gm *GuildManager) AddPoints(guildID string, delta int64) {
	if g, ok := gm.guilds[guildID]; ok {
		g.TotalPoints += delta
		if g.TotalPoints < 0 {
			g.TotalPoints = 0
		}
	}
}

// Count returns the number of locally owned guilds.
func (gm *GuildManager) Count() int {
	return len(gm.guilds)
}
