package event

import "fmt"

// ShardAnnounced tells peers that a shard has joined the mesh.
// Registry entries are insert-only: a re-announcement is a no-op.
type ShardAnnounced struct {
	Shard     string
	Timestamp int64 // Epoch microseconds (versioned input)
}

func (s *ShardAnnounced) Kind() FactKind {
	return FactKindShardAnnounced
}

func (s *ShardAnnounced) DedupPayload() string {
	return s.Shard
}

// PriceUpdated carries the current oracle price observed by the origin
// shard. Reconciled last-write-wins on logical time; ties keep existing.
type PriceUpdated struct {
	Price     int64
	Timestamp int64 // Epoch microseconds when the oracle observed the price
}

func (p *PriceUpdated) Kind() FactKind {
	return FactKindPriceUpdated
}

func (p *PriceUpdated) DedupPayload() string {
	return fmt.Sprintf("%d:%d", p.Price, p.Timestamp)
}

// SupplyChanged carries the origin shard's running token supply. Each
// shard is authoritative for its own mints and burns; the global supply
// is the sum over origins.
type SupplyChanged struct {
	Supply    int64
	Timestamp int64
}

func (s *SupplyChanged) Kind() FactKind {
	return FactKindSupplyChanged
}

func (s *SupplyChanged) DedupPayload() string {
	return fmt.Sprintf("%d:%d", s.Supply, s.Timestamp)
}
