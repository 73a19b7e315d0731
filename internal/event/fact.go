package event

// FactKind discriminator for cross-shard fact payloads
type FactKind int32

const (
	FactKindUnknown FactKind = iota
	FactKindShardAnnounced
	FactKindPlayerRegistered
	FactKindPlayerScoreChanged
	FactKindGuildCreated
	FactKindGuildScoreChanged
	FactKindMarketCreated
	FactKindPriceUpdated
	FactKindSupplyChanged
)

// Message is one gossip delivery addressed to a single peer shard.
// The same fact fans out as one Message per peer; every copy shares
// the MessageID so each receiving shard deduplicates independently.
type Message struct {
	// Deterministic dedup identifier (see DeriveMessageID)
	ID string

	// Shard that emitted the fact
	Origin string

	// Shard this copy is addressed to
	Target string

	// Origin shard's logical clock at emission time
	LogicalTime int64

	// The fact payload
	Fact Fact
}

// Fact is the interface all cross-shard fact payloads implement.
type Fact interface {
	// Kind returns the discriminator
	Kind() FactKind

	// DedupPayload returns a canonical string of the payload fields
	// that feed message-ID derivation
	DedupPayload() string
}

func (fk FactKind) String() string {
	switch fk {
	case FactKindShardAnnounced:
		return "ShardAnnounced"
	case FactKindPlayerRegistered:
		return "PlayerRegistered"
	case FactKindPlayerScoreChanged:
		return "PlayerScoreChanged"
	case FactKindGuildCreated:
		return "GuildCreated"
	case FactKindGuildScoreChanged:
		return "GuildScoreChanged"
	case FactKindMarketCreated:
		return "MarketCreated"
	case FactKindPriceUpdated:
		return "PriceUpdated"
	case FactKindSupplyChanged:
		return "SupplyChanged"
	default:
		return "Unknown"
	}
}

// ParseFactKind maps a wire kind string back to its discriminator.
func ParseFactKind(s string) FactKind {
	switch s {
	case "ShardAnnounced":
		return FactKindShardAnnounced
	case "PlayerRegistered":
		return FactKindPlayerRegistered
	case "PlayerScoreChanged":
		return FactKindPlayerScoreChanged
	case "GuildCreated":
		return FactKindGuildCreated
	case "GuildScoreChanged":
		return FactKindGuildScoreChanged
	case "MarketCreated":
		return FactKindMarketCreated
	case "PriceUpdated":
		return FactKindPriceUpdated
	case "SupplyChanged":
		return FactKindSupplyChanged
	default:
		return FactKindUnknown
	}
}
