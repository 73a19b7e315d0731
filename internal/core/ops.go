package core

import (
	"errors"

	"PredictMesh/internal/event"
	"PredictMesh/internal/state"

	"github.com/google/uuid"
)

var (
	ErrInvalidPrice     = errors.New("price must be positive")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrUnknownFactKind  = errors.New("unknown fact kind")
)

// Operation is a locally submitted command or query. All timestamps are
// versioned inputs supplied by the shell; the core never reads the
// wall clock.
type Operation interface {
	Name() string
}

// RegisterPlayer creates a player with the configured initial grant.
type RegisterPlayer struct {
	Player      uuid.UUID
	DisplayName string
	Timestamp   int64
}

func (RegisterPlayer) Name() string { return "RegisterPlayer" }

// CreateGuild founds a guild with the founder as first member.
type CreateGuild struct {
	Founder   uuid.UUID
	GuildName string
	Timestamp int64
}

func (CreateGuild) Name() string { return "CreateGuild" }

// JoinGuild adds a local player to a locally owned guild.
type JoinGuild struct {
	Player    uuid.UUID
	Guild     string
	Timestamp int64
}

func (JoinGuild) Name() string { return "JoinGuild" }

// LeaveGuild removes a local player from a locally owned guild.
type LeaveGuild struct {
	Player    uuid.UUID
	Guild     string
	Timestamp int64
}

func (LeaveGuild) Name() string { return "LeaveGuild" }

// CreateMarket registers a prediction market.
type CreateMarket struct {
	Creator   uuid.UUID
	Title     string
	Timestamp int64
}

func (CreateMarket) Name() string { return "CreateMarket" }

// SubmitPrediction places a call on the current window of a kind.
type SubmitPrediction struct {
	Player    uuid.UUID
	Kind      state.PeriodKind
	Direction state.Direction
	Timestamp int64
}

func (SubmitPrediction) Name() string { return "SubmitPrediction" }

// SetPrice records an oracle price observation and runs the resolution
// sweep.
type SetPrice struct {
	Price     int64
	Timestamp int64
}

func (SetPrice) Name() string { return "SetPrice" }

// PriceRefreshTick is the scheduler-injected no-op price refresh: it
// re-observes the current price fact so windows whose end has passed
// resolve even when the oracle has gone quiet.
type PriceRefreshTick struct {
	Timestamp int64
}

func (PriceRefreshTick) Name() string { return "PriceRefreshTick" }

// --- Queries (served from inside the core loop, no mutation) ---

// QueryLeaderboard returns a leaderboard.Snapshot.
type QueryLeaderboard struct{}

func (QueryLeaderboard) Name() string { return "QueryLeaderboard" }

// QueryPrice returns the converged *projection.PriceFact (nil if unset).
type QueryPrice struct{}

func (QueryPrice) Name() string { return "QueryPrice" }

// QueryWindows returns []state.Window for one kind.
type QueryWindows struct {
	Kind state.PeriodKind
}

func (QueryWindows) Name() string { return "QueryWindows" }

// QuerySupply returns a SupplyView.
type QuerySupply struct{}

func (QuerySupply) Name() string { return "QuerySupply" }

// QueryPlayer returns the converged projection.GlobalPlayer.
type QueryPlayer struct {
	Player uuid.UUID
}

func (QueryPlayer) Name() string { return "QueryPlayer" }

// QueryShards returns the registry contents as []string.
type QueryShards struct{}

func (QueryShards) Name() string { return "QueryShards" }

// SupplyView answers QuerySupply.
type SupplyView struct {
	Local int64 // Supply minted minus burned on this shard
	Total int64 // Sum over every known origin
}

// Request is one unit of work for the core loop: either a local
// operation/query or an inbound gossip message, never both.
type Request struct {
	Op    Operation
	Msg   *event.Message
	Reply chan Reply
	Ack   func()
	Nak   func()
}

// Reply carries the outcome back to the submitting shell goroutine.
type Reply struct {
	Err  error
	Data any
}
