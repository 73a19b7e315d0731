package ingestion

import (
	"encoding/json"
	"fmt"

	"PredictMesh/internal/event"

	"github.com/google/uuid"
)

// Wire format for gossip messages. The envelope carries routing and
// dedup fields; the payload is one kind-specific JSON object.
// Field names use snake_case to match the other mesh services.
type wireMessage struct {
	MessageID   string          `json:"message_id"`
	OriginShard string          `json:"origin_shard"`
	TargetShard string          `json:"target_shard"`
	LogicalTime int64           `json:"logical_time"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
}

type shardAnnouncedJSON struct {
	Shard       string `json:"shard"`
	TimestampUs int64  `json:"timestamp_us"`
}

type playerRegisteredJSON struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	TimestampUs int64  `json:"timestamp_us"`
}

type playerScoreJSON struct {
	PlayerID    string  `json:"player_id"`
	DisplayName string  `json:"display_name"`
	TotalEarned int64   `json:"total_earned"`
	TotalProfit int64   `json:"total_profit"`
	Level       int32   `json:"level"`
	GuildID     *string `json:"guild_id,omitempty"`
	TimestampUs int64   `json:"timestamp_us"`
}

type guildCreatedJSON struct {
	GuildID     string `json:"guild_id"`
	Name        string `json:"name"`
	FounderID   string `json:"founder_id"`
	TimestampUs int64  `json:"timestamp_us"`
}

type guildScoreJSON struct {
	GuildID     string `json:"guild_id"`
	Name        string `json:"name"`
	MemberCount int32  `json:"member_count"`
	TotalPoints int64  `json:"total_points"`
	TimestampUs int64  `json:"timestamp_us"`
}

type marketCreatedJSON struct {
	MarketID    string `json:"market_id"`
	CreatorID   string `json:"creator_id"`
	Title       string `json:"title"`
	TimestampUs int64  `json:"timestamp_us"`
}

type priceUpdatedJSON struct {
	Price       int64 `json:"price"`
	TimestampUs int64 `json:"timestamp_us"`
}

type supplyChangedJSON struct {
	Supply      int64 `json:"supply"`
	TimestampUs int64 `json:"timestamp_us"`
}

// MarshalMessage encodes one per-peer delivery for NATS.
func MarshalMessage(msg event.Message) ([]byte, error) {
	payload, err := marshalFact(msg.Fact)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{
		MessageID:   msg.ID,
		OriginShard: msg.Origin,
		TargetShard: msg.Target,
		LogicalTime: msg.LogicalTime,
		Kind:        msg.Fact.Kind().String(),
		Payload:     payload,
	})
}

func marshalFact(fact event.Fact) (json.RawMessage, error) {
	switch f := fact.(type) {
	case *event.ShardAnnounced:
		return json.Marshal(shardAnnouncedJSON{Shard: f.Shard, TimestampUs: f.Timestamp})
	case *event.PlayerRegistered:
		return json.Marshal(playerRegisteredJSON{
			PlayerID:    f.Player.String(),
			DisplayName: f.DisplayName,
			TimestampUs: f.Timestamp,
		})
	case *event.PlayerScoreChanged:
		return json.Marshal(playerScoreJSON{
			PlayerID:    f.Player.String(),
			DisplayName: f.DisplayName,
			TotalEarned: f.TotalEarned,
			TotalProfit: f.TotalProfit,
			Level:       f.Level,
			GuildID:     f.GuildID,
			TimestampUs: f.Timestamp,
		})
	case *event.GuildCreated:
		return json.Marshal(guildCreatedJSON{
			GuildID:     f.Guild,
			Name:        f.Name,
			FounderID:   f.Founder.String(),
			TimestampUs: f.Timestamp,
		})
	case *event.GuildScoreChanged:
		return json.Marshal(guildScoreJSON{
			GuildID:     f.Guild,
			Name:        f.Name,
			MemberCount: f.MemberCount,
			TotalPoints: f.TotalPoints,
			TimestampUs: f.Timestamp,
		})
	case *event.MarketCreated:
		return json.Marshal(marketCreatedJSON{
			MarketID:    f.Market,
			CreatorID:   f.Creator.String(),
			Title:       f.Title,
			TimestampUs: f.Timestamp,
		})
	case *event.PriceUpdated:
		return json.Marshal(priceUpdatedJSON{Price: f.Price, TimestampUs: f.Timestamp})
	case *event.SupplyChanged:
		return json.Marshal(supplyChangedJSON{Supply: f.Supply, TimestampUs: f.Timestamp})
	default:
		return nil, fmt.Errorf("unknown fact type: %T", fact)
	}
}

// ParseMessage converts wire bytes into a typed event.Message, ready for
// the core. The wire message ID is kept as-is: every peer copy of one
// emission carries the same ID and the core deduplicates on it.
func ParseMessage(data []byte) (event.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return event.Message{}, fmt.Errorf("parse envelope: %w", err)
	}
	if w.MessageID == "" {
		return event.Message{}, fmt.Errorf("missing message_id")
	}
	if w.OriginShard == "" {
		return event.Message{}, fmt.Errorf("missing origin_shard")
	}

	fact, err := parseFact(event.ParseFactKind(w.Kind), w.Payload)
	if err != nil {
		return event.Message{}, err
	}

	return event.Message{
		ID:          w.MessageID,
		Origin:      w.OriginShard,
		Target:      w.TargetShard,
		LogicalTime: w.LogicalTime,
		Fact:        fact,
	}, nil
}

func parseFact(kind event.FactKind, payload json.RawMessage) (event.Fact, error) {
	switch kind {
	case event.FactKindShardAnnounced:
		var j shardAnnouncedJSON
		if err := json.Unmarshal(payload, &j); err != nil {
			return nil, fmt.Errorf("parse ShardAnnounced: %w", err)
		}
		if j.Shard == "" {
			return nil, fmt.Errorf("parse ShardAnnounced: empty shard")
		}
		return &event.ShardAnnounced{Shard: j.Shard, Timestamp: j.TimestampUs}, nil

	case event.FactKindPlayerRegistered:
		var j playerRegisteredJSON
		if err := json.Unmarshal(payload, &j); err != nil {
			return nil, fmt.Errorf("parse PlayerRegistered: %w", err)
		}
		player, err := uuid.Parse(j.PlayerID)
		if err != nil {
			return nil, fmt.Errorf("parse player_id: %w", err)
		}
		return &event.PlayerRegistered{
			Player:      player,
			DisplayName: j.DisplayName,
			Timestamp:   j.TimestampUs,
		}, nil

	case event.FactKindPlayerScoreChanged:
		var j playerScoreJSON
		if err := json.Unmarshal(payload, &j); err != nil {
			return nil, fmt.Errorf("parse PlayerScoreChanged: %w", err)
		}
		player, err := uuid.Parse(j.PlayerID)
		if err != nil {
			return nil, fmt.Errorf("parse player_id: %w", err)
		}
		return &event.PlayerScoreChanged{
			Player:      player,
			DisplayName: j.DisplayName,
			TotalEarned: j.TotalEarned,
			TotalProfit: j.TotalProfit,
			Level:       j.Level,
			GuildID:     j.GuildID,
			Timestamp:   j.TimestampUs,
		}, nil

	case event.FactKindGuildCreated:
		var j guildCreatedJSON
		if err := json.Unmarshal(payload, &j); err != nil {
			return nil, fmt.Errorf("parse GuildCreated: %w", err)
		}
		founder, err := uuid.Parse(j.FounderID)
		if err != nil {
			return nil, fmt.Errorf("parse founder_id: %w", err)
		}
		return &event.GuildCreated{
			Guild:     j.GuildID,
			Name:      j.Name,
			Founder:   founder,
			Timestamp: j.TimestampUs,
		}, nil

	case event.FactKindGuildScoreChanged:
		var j guildScoreJSON
		if err := json.Unmarshal(payload, &j); err != nil {
			return nil, fmt.Errorf("parse GuildScoreChanged: %w", err)
		}
		return &event.GuildScoreChanged{
			Guild:       j.GuildID,
			Name:        j.Name,
			MemberCount: j.MemberCount,
			TotalPoints: j.TotalPoints,
			Timestamp:   j.TimestampUs,
		}, nil

	case event.FactKindMarketCreated:
		var j marketCreatedJSON
		if err := json.Unmarshal(payload, &j); err != nil {
			return nil, fmt.Errorf("parse MarketCreated: %w", err)
		}
		creator, err := uuid.Parse(j.CreatorID)
		if err != nil {
			return nil, fmt.Errorf("parse creator_id: %w", err)
		}
		return &event.MarketCreated{
			Market:    j.MarketID,
			Creator:   creator,
			Title:     j.Title,
			Timestamp: j.TimestampUs,
		}, nil

	case event.FactKindPriceUpdated:
		var j priceUpdatedJSON
		if err := json.Unmarshal(payload, &j); err != nil {
			return nil, fmt.Errorf("parse PriceUpdated: %w", err)
		}
		return &event.PriceUpdated{Price: j.Price, Timestamp: j.TimestampUs}, nil

	case event.FactKindSupplyChanged:
		var j supplyChangedJSON
		if err := json.Unmarshal(payload, &j); err != nil {
			return nil, fmt.Errorf("parse SupplyChanged: %w", err)
		}
		return &event.SupplyChanged{Supply: j.Supply, Timestamp: j.TimestampUs}, nil

	default:
		return nil, fmt.Errorf("unknown fact kind: %s", kind)
	}
}
