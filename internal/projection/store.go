package projection

import (
	"github.com/google/uuid"
)

// GlobalPlayer is the mesh-wide view of a player.
type GlobalPlayer struct {
	ID          uuid.UUID
	DisplayName string
	TotalEarned int64
	TotalProfit int64
	Level       int32
	GuildID     *string
	LastUpdated int64 // Logical time of the accepted write
}

// GlobalGuild is the mesh-wide view of a guild.
type GlobalGuild struct {
	ID          string
	Name        string
	MemberCount int32
	TotalPoints int64
	LastUpdated int64
}

// GlobalMarket is the mesh-wide view of a market.
type GlobalMarket struct {
	ID        string
	Creator   uuid.UUID
	Title     string
	CreatedAt int64
}

// PriceFact is the converged current price.
type PriceFact struct {
	Price       int64
	Timestamp   int64 // Oracle observation time (epoch micros)
	LogicalTime int64
}

// SupplyEntry is one shard's authoritative running supply.
type SupplyEntry struct {
	Origin      string
	Supply      int64
	LastUpdated int64
}

// Store holds the converged cross-shard projections. Writes go through
// per-kind reconcile methods: identity facts insert-if-absent, mutable
// facts apply strict-greater last-write-wins on logical time. Ties and
// older writes keep the existing value, which makes reconciliation
// commutative and idempotent under redelivery. Not thread-safe.
type Store struct {
	players  map[uuid.UUID]*GlobalPlayer
	guilds   map[string]*GlobalGuild
	markets  map[string]*GlobalMarket
	supplies map[string]*SupplyEntry
	price    *PriceFact
}

func NewStore() *Store {
	return &Store{
		players:  make(map[uuid.UUID]*GlobalPlayer),
		guilds:   make(map[string]*GlobalGuild),
		markets:  make(map[string]*GlobalMarket),
		supplies: make(map[string]*SupplyEntry),
	}
}

// ReconcilePlayerRegistered inserts the identity if absent.
func (s *Store) ReconcilePlayerRegistered(id uuid.UUID, displayName string, logicalTime int64) bool {
	if _, exists := s.players[id]; exists {
		return false
	}
	s.players[id] = &GlobalPlayer{
		ID:          id,
		DisplayName: displayName,
		Level:       1,
		LastUpdated: logicalTime,
	}
	return true
}

// ReconcilePlayerScore applies a score snapshot if strictly newer.
func (s *Store) ReconcilePlayerScore(snap GlobalPlayer) bool {
	existing, ok := s.players[snap.ID]
	if ok && snap.LastUpdated <= existing.LastUpdated {
		return false
	}
	copied := snap
	s.players[snap.ID] = &copied
	return true
}

// ReconcileGuildCreated inserts the guild if absent.
func (s *Store) ReconcileGuildCreated(id, name string, logicalTime int64) bool {
	if _, exists := s.guilds[id]; exists {
		return false
	}
	s.guilds[id] = &GlobalGuild{
		ID:          id,
		Name:        name,
		MemberCount: 1,
		LastUpdated: logicalTime,
	}
	return true
}

// ReconcileGuildScore applies a guild snapshot if strictly newer.
func (s *Store) ReconcileGuildScore(snap GlobalGuild) bool {
	existing, ok := s.guilds[snap.ID]
	if ok && snap.LastUpdated <= existing.LastUpdated {
		return false
	}
	copied := snap
	s.guilds[snap.ID] = &copied
	return true
}

// ReconcileMarketCreated inserts the market if absent.
func (s *Store) ReconcileMarketCreated(m GlobalMarket) bool {
	if _, exists := s.markets[m.ID]; exists {
		return false
	}
	copied := m
	s.markets[m.ID] = &copied
	return true
}

// ReconcilePrice applies a price fact if strictly newer.
func (s *Store) ReconcilePrice(price, timestamp, logicalTime int64) bool {
	if s.price != nil && logicalTime <= s.price.LogicalTime {
		return false
	}
	s.price = &PriceFact{Price: price, Timestamp: timestamp, LogicalTime: logicalTime}
	return true
}

// ReconcileSupply applies a shard's supply snapshot if strictly newer
// for that origin.
func (s *Store) ReconcileSupply(origin string, supply, logicalTime int64) bool {
	existing, ok := s.supplies[origin]
	if ok && logicalTime <= existing.LastUpdated {
		return false
	}
	s.supplies[origin] = &SupplyEntry{Origin: origin, Supply: supply, LastUpdated: logicalTime}
	return true
}

// Player returns a copy of the converged player view.
func (s *Store) Player(id uuid.UUID) (GlobalPlayer, bool) {
	p, ok := s.players[id]
	if !ok {
		return GlobalPlayer{}, false
	}
	return *p, true
}

// Guild returns a copy of the converged guild view.
func (s *Store) Guild(id string) (GlobalGuild, bool) {
	g, ok := s.guilds[id]
	if !ok {
		return GlobalGuild{}, false
	}
	return *g, true
}

// Market returns a copy of the converged market view.
func (s *Store) Market(id string) (GlobalMarket, bool) {
	m, ok := s.markets[id]
	if !ok {
		return GlobalMarket{}, false
	}
	return *m, true
}

// Price returns the converged current price, if any shard has set one.
func (s *Store) Price() (PriceFact, bool) {
	if s.price == nil {
		return PriceFact{}, false
	}
	return *s.price, true
}

// TotalSupply sums every origin's authoritative supply.
func (s *Store) TotalSupply() int64 {
	var total int64
	for _, e := range s.supplies {
		total += e.Supply
	}
	return total
}

// Players returns copies of every converged player view.
func (s *Store) Players() []GlobalPlayer {
	out := make([]GlobalPlayer, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	return out
}

// Guilds returns copies of every converged guild view.
func (s *Store) Guilds() []GlobalGuild {
	out := make([]GlobalGuild, 0, len(s.guilds))
	for _, g := range s.guilds {
		out = append(out, *g)
	}
	return out
}

// Supplies returns copies of every origin's supply entry.
func (s *Store) Supplies() []SupplyEntry {
	out := make([]SupplyEntry, 0, len(s.supplies))
	for _, e := range s.supplies {
		out = append(out, *e)
	}
	return out
}

// PlayerCount returns the number of known players mesh-wide.
func (s *Store) PlayerCount() int {
	return len(s.players)
}

// GuildCount returns the number of known guilds mesh-wide.
func (s *Store) GuildCount() int {
	return len(s.guilds)
}
