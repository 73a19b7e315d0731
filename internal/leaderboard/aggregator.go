package leaderboard

import (
	"sort"

	"PredictMesh/internal/projection"

	"github.com/google/uuid"
)

const (
	// MaxPlayers caps the player board.
	MaxPlayers = 50
	// MaxGuilds caps the guild board.
	MaxGuilds = 20
)

// PlayerEntry is one row on the player board.
type PlayerEntry struct {
	Player      uuid.UUID
	DisplayName string
	Level       int32
	TotalEarned int64
}

// GuildEntry is one row on the guild board. Score is the running sum of
// the members' lifetime earnings.
type GuildEntry struct {
	Guild       string
	Name        string
	MemberCount int32
	TotalPoints int64
}

// Snapshot is a point-in-time copy of both boards.
type Snapshot struct {
	Players []PlayerEntry
	Guilds  []GuildEntry
}

type playerRank struct {
	entry PlayerEntry
	seen  int64
}

type guildRank struct {
	name    string
	points  int64
	members int32
	seen    int64
}

// Aggregator maintains both leaderboards incrementally: each player
// update adjusts the affected guild's running sum by the delta instead
// of rescanning the projection store. Ranking is by score descending
// with a stable first-seen tie-break. Not thread-safe.
type Aggregator struct {
	players  map[uuid.UUID]*playerRank
	guilds   map[string]*guildRank
	memberOf map[uuid.UUID]string
	contrib  map[uuid.UUID]int64
	nextSeen int64
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		players:  make(map[uuid.UUID]*playerRank),
		guilds:   make(map[string]*guildRank),
		memberOf: make(map[uuid.UUID]string),
		contrib:  make(map[uuid.UUID]int64),
	}
}

// UpsertGuild registers a guild's display name.
func (a *Aggregator) UpsertGuild(id, name string) {
	g := a.ensureGuild(id)
	if name != "" {
		g.name = name
	}
}

func (a *Aggregator) ensureGuild(id string) *guildRank {
	g, ok := a.guilds[id]
	if !ok {
		g = &guildRank{seen: a.nextSeen}
		a.nextSeen++
		a.guilds[id] = g
	}
	return g
}

// UpsertPlayer folds a converged player view into both boards,
// adjusting guild running sums for score and membership changes.
func (a *Aggregator) UpsertPlayer(p projection.GlobalPlayer) {
	r, ok := a.players[p.ID]
	if !ok {
		r = &playerRank{seen: a.nextSeen}
		a.nextSeen++
		a.players[p.ID] = r
	}
	r.entry = PlayerEntry{
		Player:      p.ID,
		DisplayName: p.DisplayName,
		Level:       p.Level,
		TotalEarned: p.TotalEarned,
	}

	oldGuild := a.memberOf[p.ID]
	newGuild := ""
	if p.GuildID != nil {
		newGuild = *p.GuildID
	}
	oldContrib := a.contrib[p.ID]

	if oldGuild != newGuild {
		if oldGuild != "" {
			g := a.ensureGuild(oldGuild)
			g.points -= oldContrib
			g.members--
		}
		if newGuild != "" {
			g := a.ensureGuild(newGuild)
			g.points += p.TotalEarned
			g.members++
		}
		if newGuild == "" {
			delete(a.memberOf, p.ID)
		} else {
			a.memberOf[p.ID] = newGuild
		}
	} else if newGuild != "" {
		g := a.ensureGuild(newGuild)
		g.points += p.TotalEarned - oldContrib
	}
	a.contrib[p.ID] = p.TotalEarned
}

// Snapshot ranks both boards and truncates to the caps.
func (a *Aggregator) Snapshot() Snapshot {
	type rankedPlayer struct {
		entry PlayerEntry
		seen  int64
	}
	players := make([]rankedPlayer, 0, len(a.players))
	for _, r := range a.players {
		players = append(players, rankedPlayer{entry: r.entry, seen: r.seen})
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].entry.TotalEarned != players[j].entry.TotalEarned {
			return players[i].entry.TotalEarned > players[j].entry.TotalEarned
		}
		return players[i].seen < players[j].seen
	})
	if len(players) > MaxPlayers {
		players = players[:MaxPlayers]
	}

	type rankedGuild struct {
		id   string
		rank *guildRank
	}
	guilds := make([]rankedGuild, 0, len(a.guilds))
	for id, g := range a.guilds {
		guilds = append(guilds, rankedGuild{id: id, rank: g})
	}
	sort.Slice(guilds, func(i, j int) bool {
		if guilds[i].rank.points != guilds[j].rank.points {
			return guilds[i].rank.points > guilds[j].rank.points
		}
		return guilds[i].rank.seen < guilds[j].rank.seen
	})
	if len(guilds) > MaxGuilds {
		guilds = guilds[:MaxGuilds]
	}

	snap := Snapshot{
		Players: make([]PlayerEntry, len(players)),
		Guilds:  make([]GuildEntry, len(guilds)),
	}
	for i, p := range players {
		snap.Players[i] = p.entry
	}
	for i, g := range guilds {
		snap.Guilds[i] = GuildEntry{
			Guild:       g.id,
			Name:        g.rank.name,
			MemberCount: g.rank.members,
			TotalPoints: g.rank.points,
		}
	}
	return snap
}

// PlayerCount returns the number of ranked players.
func (a *Aggregator) PlayerCount() int {
	return len(a.players)
}

// GuildCount returns the number of ranked guilds.
func (a *Aggregator) GuildCount() int {
	return len(a.guilds)
}

// Rebuild recomputes a fresh aggregator from converged views. Used to
// verify the incremental path and to repopulate after a restart.
func Rebuild(players []projection.GlobalPlayer, guilds []projection.GlobalGuild) *Aggregator {
	a := NewAggregator()
	for _, g := range guilds {
		a.UpsertGuild(g.ID, g.Name)
	}
	for _, p := range players {
		a.UpsertPlayer(p)
	}
	return a
}
