package state

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrMarketNotFound = errors.New("market not found")

// Market is a prediction market created on the local shard.
type Market struct {
	ID        string
	Creator   uuid.UUID
	Title     string
	CreatedAt int64
}

// MarketManager owns markets created locally. Like guilds, market IDs
// carry the shard prefix. Not thread-safe.
type MarketManager struct {
	shardID string
	markets map[string]*Market
	order   []string
	nextID  int64
}

func NewMarketManager(shardID string) *MarketManager {
	return &MarketManager{
		shardID: shardID,
		markets: make(map[string]*Market),
		nextID:  1,
	}
}

// Create registers a new market.
func (mm *MarketManager) Create(creator uuid.UUID, title string, ts int64) (*Market, error) {
	if title == "" {
		return nil, errors.New("market title must not be empty")
	}
	m := &Market{
		ID:        fmt.Sprintf("%s-%d", mm.shardID, mm.nextID),
		Creator:   creator,
		Title:     title,
		CreatedAt: ts,
	}
	mm.nextID++
	mm.markets[m.ID] = m
	mm.order = append(mm.order, m.ID)
	return m, nil
}

// Get returns a locally owned market.
func (mm *MarketManager) Get(id string) (*Market, bool) {
	m, ok := mm.markets[id]
	return m, ok
}

// All returns local markets in creation order.
func (mm *MarketManager) All() []*Market {
	out := make([]*Market, 0, len(mm.order))
	for _, id := range mm.order {
		out = append(out, mm.markets[id])
	}
	return out
}
