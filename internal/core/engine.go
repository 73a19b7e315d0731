package core

import (
	"context"
	"fmt"
	"time"

	"PredictMesh/internal/event"
	"PredictMesh/internal/leaderboard"
	"PredictMesh/internal/ledger"
	"PredictMesh/internal/observability"
	"PredictMesh/internal/projection"
	"PredictMesh/internal/registry"
	"PredictMesh/internal/state"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config carries the core's deterministic parameters.
type Config struct {
	ShardID      string
	InitialGrant int64    // Points minted for every new player
	SeedShards   []string // Peers known before any gossip arrives
	LRUCapacity  int
}

// DefaultInitialGrant is the registration grant when none is configured.
const DefaultInitialGrant = 1000

// ShardCore is the single-threaded processor for one shard. Local
// operations advance the logical clock and fan facts out to every
// registered peer; inbound gossip is deduplicated and folded into the
// converged projections through per-kind reconcile strategies.
type ShardCore struct {
	cfg   Config
	clock int64

	players     *state.PlayerManager
	guilds      *state.GuildManager
	markets     *state.MarketManager
	periods     *state.PeriodEngine
	book        *ledger.PointsBook
	shards      *registry.ShardRegistry
	projections *projection.Store
	board       *leaderboard.Aggregator
	idempotency *IdempotencyChecker
	reconcilers map[event.FactKind]func(event.Message, *CoreOutput) bool
	metrics     *observability.Metrics
	logger      zerolog.Logger

	outboundChan chan<- event.Message
	persistChan  chan<- CoreOutput

	registered bool
}

// ProcessedMessage is the durable dedup record for one applied message.
type ProcessedMessage struct {
	ID          string
	Origin      string
	Kind        event.FactKind
	LogicalTime int64
}

// CoreOutput is what one unit of work hands to the persistence worker:
// the processed-message record (inbound only) plus every projection row
// the work touched.
type CoreOutput struct {
	Processed *ProcessedMessage
	Players   []projection.GlobalPlayer
	Guilds    []projection.GlobalGuild
	Markets   []projection.GlobalMarket
	Price     *projection.PriceFact
	Supplies  []projection.SupplyEntry
}

func (o *CoreOutput) empty() bool {
	return o.Processed == nil && len(o.Players) == 0 && len(o.Guilds) == 0 &&
		len(o.Markets) == 0 && o.Price == nil && len(o.Supplies) == 0
}

func NewShardCore(
	cfg Config,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
	outboundChan chan<- event.Message,
	persistChan chan<- CoreOutput,
) *ShardCore {
	if cfg.InitialGrant <= 0 {
		cfg.InitialGrant = DefaultInitialGrant
	}
	if cfg.LRUCapacity <= 0 {
		cfg.LRUCapacity = 100_000
	}

	c := &ShardCore{
		cfg:          cfg,
		players:      state.NewPlayerManager(),
		guilds:       state.NewGuildManager(cfg.ShardID),
		markets:      state.NewMarketManager(cfg.ShardID),
		periods:      state.NewPeriodEngine(),
		book:         ledger.NewPointsBook(),
		shards:       registry.NewShardRegistry(),
		projections:  projection.NewStore(),
		board:        leaderboard.NewAggregator(),
		idempotency:  NewIdempotencyChecker(cfg.LRUCapacity, dbChecker),
		metrics:      metrics,
		logger:       observability.NewLogger("core"),
		outboundChan: outboundChan,
		persistChan:  persistChan,
	}

	for _, seed := range cfg.SeedShards {
		if seed != cfg.ShardID {
			c.shards.Register(seed)
		}
	}

	// Reconcile strategy per fact kind: registry entries and identities
	// insert-if-absent, mutable snapshots last-write-wins.
	c.reconcilers = map[event.FactKind]func(event.Message, *CoreOutput) bool{
		event.FactKindShardAnnounced:     c.applyShardAnnounced,
		event.FactKindPlayerRegistered:   c.applyPlayerRegistered,
		event.FactKindPlayerScoreChanged: c.applyPlayerScore,
		event.FactKindGuildCreated:       c.applyGuildCreated,
		event.FactKindGuildScoreChanged:  c.applyGuildScore,
		event.FactKindMarketCreated:      c.applyMarketCreated,
		event.FactKindPriceUpdated:       c.applyPriceUpdated,
		event.FactKindSupplyChanged:      c.applySupplyChanged,
	}

	return c
}

// Loop drains the request channel until the context ends. Everything
// (HTTP operations, cron ticks, inbound gossip) is serialized here.
func (c *ShardCore) Loop(ctx context.Context, requests <-chan Request) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-requests:
			if !ok {
				return nil
			}
			c.handle(req)
		}
	}
}

func (c *ShardCore) handle(req Request) {
	var data any
	var err error

	switch {
	case req.Msg != nil:
		err = c.Apply(*req.Msg)
		if err == nil {
			if req.Ack != nil {
				req.Ack()
			}
		} else if req.Nak != nil {
			req.Nak()
		}
	case req.Op != nil:
		data, err = c.Execute(req.Op)
	}

	if req.Reply != nil {
		req.Reply <- Reply{Err: err, Data: data}
	}
}

// Execute runs one local operation or query.
func (c *ShardCore) Execute(op Operation) (any, error) {
	start := time.Now()
	name := op.Name()

	var data any
	var err error

	switch o := op.(type) {
	case RegisterPlayer:
		err = c.registerPlayer(o)
	case CreateGuild:
		err = c.createGuild(o)
	case JoinGuild:
		err = c.joinGuild(o)
	case LeaveGuild:
		err = c.leaveGuild(o)
	case CreateMarket:
		err = c.createMarket(o)
	case SubmitPrediction:
		err = c.submitPrediction(o)
	case SetPrice:
		err = c.setPrice(o)
	case PriceRefreshTick:
		err = c.refreshTick(o)

	case QueryLeaderboard:
		data = c.board.Snapshot()
	case QueryPrice:
		if pf, ok := c.projections.Price(); ok {
			data = &pf
		} else {
			data = (*projection.PriceFact)(nil)
		}
	case QueryWindows:
		data = c.periods.WindowsForKind(o.Kind)
	case QuerySupply:
		data = SupplyView{Local: c.book.Supply(), Total: c.projections.TotalSupply()}
	case QueryPlayer:
		var p projection.GlobalPlayer
		var ok bool
		if p, ok = c.projections.Player(o.Player); !ok {
			err = state.ErrPlayerNotFound
		} else {
			data = p
		}
	case QueryShards:
		data = c.shards.All()

	default:
		err = fmt.Errorf("%w: %T", ErrUnknownOperation, op)
	}

	if c.metrics != nil {
		if err != nil {
			c.metrics.CoreOpsRejected.WithLabelValues(name, "validation").Inc()
		} else {
			c.metrics.CoreOpsApplied.WithLabelValues(name).Inc()
		}
		c.metrics.CoreOpDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		c.metrics.CoreLogicalClock.Set(float64(c.clock))
	}

	return data, err
}

// Apply folds one inbound gossip message into local state. Redelivered
// messages are acknowledged no-ops; stale snapshots lose to the
// last-write-wins check inside their reconciler.
func (c *ShardCore) Apply(msg event.Message) error {
	kind := msg.Fact.Kind()

	if c.idempotency.IsDuplicate(kind.String(), msg.ID) {
		if c.metrics != nil {
			c.metrics.MessagesDeduplicated.WithLabelValues(kind.String()).Inc()
		}
		return nil
	}

	rec, ok := c.reconcilers[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFactKind, kind)
	}

	// Lamport merge keeps local emissions ahead of everything this
	// shard has observed, so cross-shard last-write-wins stays sane.
	if msg.LogicalTime > c.clock {
		c.clock = msg.LogicalTime
	}

	out := CoreOutput{
		Processed: &ProcessedMessage{
			ID:          msg.ID,
			Origin:      msg.Origin,
			Kind:        kind,
			LogicalTime: msg.LogicalTime,
		},
	}

	applied := rec(msg, &out)

	c.idempotency.MarkProcessed(kind.String(), msg.ID)
	c.emit(out)

	if c.metrics != nil {
		if applied {
			c.metrics.MessagesApplied.WithLabelValues(kind.String()).Inc()
		} else {
			c.metrics.MessagesStale.WithLabelValues(kind.String()).Inc()
		}
		c.metrics.CoreLogicalClock.Set(float64(c.clock))
	}

	return nil
}

// --- Local operation handlers ---

func (c *ShardCore) registerPlayer(o RegisterPlayer) error {
	c.ensureRegistered(o.Timestamp)

	p, err := c.players.Register(o.Player, o.DisplayName, o.Timestamp)
	if err != nil {
		return err
	}
	c.clock++

	if err := c.book.Credit(p.ID, c.cfg.InitialGrant); err != nil {
		return err
	}
	c.book.Mint(c.cfg.InitialGrant)

	out := CoreOutput{}
	c.projections.ReconcilePlayerRegistered(p.ID, p.DisplayName, c.clock)
	c.broadcast(&event.PlayerRegistered{Player: p.ID, DisplayName: p.DisplayName, Timestamp: o.Timestamp})
	c.publishPlayerScore(p, o.Timestamp, &out)
	c.publishSupply(o.Timestamp, &out)
	c.emit(out)

	c.logger.Info().Str("player", p.ID.String()).Str("name", p.DisplayName).Msg("player registered")
	return nil
}

func (c *ShardCore) createGuild(o CreateGuild) error {
	c.ensureRegistered(o.Timestamp)

	founder, ok := c.players.Get(o.Founder)
	if !ok {
		return state.ErrPlayerNotFound
	}
	g, err := c.guilds.Create(o.Founder, o.GuildName, o.Timestamp)
	if err != nil {
		return err
	}
	c.clock++

	c.players.SetGuild(founder.ID, &g.ID)
	c.projections.ReconcileGuildCreated(g.ID, g.Name, c.clock)
	c.board.UpsertGuild(g.ID, g.Name)
	c.broadcast(&event.GuildCreated{Guild: g.ID, Name: g.Name, Founder: g.Founder, Timestamp: o.Timestamp})

	out := CoreOutput{}
	c.publishPlayerScore(founder, o.Timestamp, &out)
	c.publishGuildScore(g, o.Timestamp, &out)
	c.emit(out)

	c.logger.Info().Str("guild", g.ID).Str("name", g.Name).Msg("guild created")
	return nil
}

func (c *ShardCore) joinGuild(o JoinGuild) error {
	c.ensureRegistered(o.Timestamp)

	p, ok := c.players.Get(o.Player)
	if !ok {
		return state.ErrPlayerNotFound
	}
	g, err := c.guilds.Join(o.Player, o.Guild)
	if err != nil {
		return err
	}
	c.clock++

	c.players.SetGuild(p.ID, &g.ID)

	out := CoreOutput{}
	c.publishPlayerScore(p, o.Timestamp, &out)
	c.publishGuildScore(g, o.Timestamp, &out)
	c.emit(out)
	return nil
}

func (c *ShardCore) leaveGuild(o LeaveGuild) error {
	c.ensureRegistered(o.Timestamp)

	p, ok := c.players.Get(o.Player)
	if !ok {
		return state.ErrPlayerNotFound
	}
	g, err := c.guilds.Leave(o.Player, o.Guild)
	if err != nil {
		return err
	}
	c.clock++

	c.players.SetGuild(p.ID, nil)

	out := CoreOutput{}
	c.publishPlayerScore(p, o.Timestamp, &out)
	c.publishGuildScore(g, o.Timestamp, &out)
	c.emit(out)
	return nil
}

func (c *ShardCore) createMarket(o CreateMarket) error {
	c.ensureRegistered(o.Timestamp)

	m, err := c.markets.Create(o.Creator, o.Title, o.Timestamp)
	if err != nil {
		return err
	}
	c.clock++

	view := projection.GlobalMarket{ID: m.ID, Creator: m.Creator, Title: m.Title, CreatedAt: m.CreatedAt}
	c.projections.ReconcileMarketCreated(view)
	c.broadcast(&event.MarketCreated{Market: m.ID, Creator: m.Creator, Title: m.Title, Timestamp: o.Timestamp})
	c.emit(CoreOutput{Markets: []projection.GlobalMarket{view}})

	c.logger.Info().Str("market", m.ID).Str("title", m.Title).Msg("market created")
	return nil
}

func (c *ShardCore) submitPrediction(o SubmitPrediction) error {
	c.ensureRegistered(o.Timestamp)

	if _, ok := c.players.Get(o.Player); !ok {
		return state.ErrPlayerNotFound
	}
	_, err := c.periods.Submit(o.Player, o.Kind, o.Direction, o.Timestamp, c.currentPrice())
	if err != nil {
		return err
	}
	c.clock++

	if c.metrics != nil {
		c.metrics.PredictionsSubmitted.WithLabelValues(o.Kind.String()).Inc()
	}
	return nil
}

func (c *ShardCore) setPrice(o SetPrice) error {
	if o.Price <= 0 {
		return ErrInvalidPrice
	}
	c.ensureRegistered(o.Timestamp)
	c.clock++

	c.projections.ReconcilePrice(o.Price, o.Timestamp, c.clock)
	pf, _ := c.projections.Price()

	out := CoreOutput{Price: &pf}
	c.broadcast(&event.PriceUpdated{Price: o.Price, Timestamp: o.Timestamp})
	c.runSweep(o.Timestamp, &out)
	c.emit(out)
	return nil
}

func (c *ShardCore) refreshTick(o PriceRefreshTick) error {
	c.ensureRegistered(o.Timestamp)
	c.clock++

	out := CoreOutput{}
	c.runSweep(o.Timestamp, &out)
	c.emit(out)
	return nil
}

// --- Resolution and cascade ---

func (c *ShardCore) runSweep(now int64, out *CoreOutput) {
	resolutions := c.periods.Sweep(now, c.currentPrice())
	settled := false

	for _, res := range resolutions {
		if c.metrics != nil {
			c.metrics.WindowsResolved.WithLabelValues(res.Kind.String(), res.Outcome.String()).Inc()
		}
		c.logger.Info().
			Str("kind", res.Kind.String()).
			Int64("window_start", res.Start).
			Str("outcome", res.Outcome.String()).
			Int("predictions", len(res.Results)).
			Msg("window resolved")

		for _, r := range res.Results {
			c.settle(res.Kind, r, now, out)
			settled = true
		}
	}

	if settled {
		c.publishSupply(now, out)
	}
}

// settle applies one prediction's reward or penalty. A guild member's
// result cascades to every member exactly once, the predictor included,
// so a correct call by a guild of N mints N times the tier. Penalty
// debits clamp per member and never abort the cascade.
func (c *ShardCore) settle(kind state.PeriodKind, r state.PredictionResult, ts int64, out *CoreOutput) {
	points := kind.RewardPoints()
	guild, inGuild := c.guilds.GuildOf(r.Player)

	members := []state.Player{}
	if inGuild {
		for _, id := range guild.Members {
			if m, ok := c.players.Get(id); ok {
				members = append(members, *m)
			}
		}
	}

	result := "loss"
	if r.Correct {
		result = "win"
	}

	if !inGuild {
		c.settleOne(r.Player, r.Player, kind, points, r.Correct, ts, out)
	} else {
		for _, m := range members {
			c.settleOne(m.ID, r.Player, kind, points, r.Correct, ts, out)
		}
		groupDelta := points * int64(len(members))
		if r.Correct {
			c.guilds.AddPoints(guild.ID, groupDelta)
		} else {
			c.guilds.AddPoints(guild.ID, -groupDelta)
		}
		c.publishGuildScore(guild, ts, out)
	}

	if c.metrics != nil {
		n := 1
		if inGuild {
			n = len(members)
		}
		c.metrics.CascadeMembersSettled.WithLabelValues(kind.String(), result).Add(float64(n))
	}
}

func (c *ShardCore) settleOne(member, predictor uuid.UUID, kind state.PeriodKind, points int64, correct bool, ts int64, out *CoreOutput) {
	if correct {
		c.book.Credit(member, points)
		c.book.Mint(points)
		c.players.RecordWin(member, points)
		if member == predictor {
			c.players.AddExperience(member, kind.PredictorXP())
		} else {
			c.players.AddExperience(member, kind.MemberXP())
		}
	} else {
		taken := c.book.Debit(member, points)
		c.book.Burn(points)
		c.players.RecordLoss(member, taken)
	}
	if p, ok := c.players.Get(member); ok {
		c.publishPlayerScore(p, ts, out)
	}
}

// --- Fact publication ---

// ensureRegistered lazily registers this shard on its first local
// operation and announces it to every seeded peer.
func (c *ShardCore) ensureRegistered(ts int64) {
	if c.registered {
		return
	}
	c.shards.Register(c.cfg.ShardID)
	c.registered = true
	c.clock++
	c.broadcast(&event.ShardAnnounced{Shard: c.cfg.ShardID, Timestamp: ts})
	if c.metrics != nil {
		c.metrics.RegistryShards.Set(float64(c.shards.Size()))
	}
	c.logger.Info().Str("shard", c.cfg.ShardID).Int("peers", len(c.shards.Peers(c.cfg.ShardID))).Msg("shard registered")
}

// broadcast fans one fact out as one message per registered peer. With
// zero peers the fact still lands in the local projections; the
// callers do that before or after broadcasting.
func (c *ShardCore) broadcast(fact event.Fact) {
	peers := c.shards.Peers(c.cfg.ShardID)
	if c.outboundChan != nil {
		for _, peer := range peers {
			c.outboundChan <- event.NewMessage(fact, c.cfg.ShardID, peer, c.clock)
		}
	}
	if c.metrics != nil && len(peers) > 0 {
		c.metrics.GossipPublished.WithLabelValues(fact.Kind().String()).Add(float64(len(peers)))
	}
}

// Each published snapshot advances the logical clock so that no two
// distinct facts about one entity ever share a logical time. A sweep
// that settles the same player in several windows must emit strictly
// increasing times or the later snapshot loses the LWW tie everywhere.
func (c *ShardCore) publishPlayerScore(p *state.Player, ts int64, out *CoreOutput) {
	c.clock++
	snap := projection.GlobalPlayer{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		TotalEarned: p.TotalEarned,
		TotalProfit: p.TotalProfit(),
		Level:       p.Level,
		GuildID:     p.GuildID,
		LastUpdated: c.clock,
	}
	c.projections.ReconcilePlayerScore(snap)
	c.board.UpsertPlayer(snap)
	out.Players = append(out.Players, snap)

	c.broadcast(&event.PlayerScoreChanged{
		Player:      p.ID,
		DisplayName: p.DisplayName,
		TotalEarned: p.TotalEarned,
		TotalProfit: p.TotalProfit(),
		Level:       p.Level,
		GuildID:     p.GuildID,
		Timestamp:   ts,
	})
}

func (c *ShardCore) publishGuildScore(g *state.Guild, ts int64, out *CoreOutput) {
	c.clock++
	snap := projection.GlobalGuild{
		ID:          g.ID,
		Name:        g.Name,
		MemberCount: int32(len(g.Members)),
		TotalPoints: g.TotalPoints,
		LastUpdated: c.clock,
	}
	c.projections.ReconcileGuildScore(snap)
	c.board.UpsertGuild(g.ID, g.Name)
	out.Guilds = append(out.Guilds, snap)

	c.broadcast(&event.GuildScoreChanged{
		Guild:       g.ID,
		Name:        g.Name,
		MemberCount: snap.MemberCount,
		TotalPoints: g.TotalPoints,
		Timestamp:   ts,
	})
}

func (c *ShardCore) publishSupply(ts int64, out *CoreOutput) {
	c.clock++
	c.projections.ReconcileSupply(c.cfg.ShardID, c.book.Supply(), c.clock)
	snap := projection.SupplyEntry{Origin: c.cfg.ShardID, Supply: c.book.Supply(), LastUpdated: c.clock}
	out.Supplies = append(out.Supplies, snap)

	c.broadcast(&event.SupplyChanged{Supply: c.book.Supply(), Timestamp: ts})
	if c.metrics != nil {
		c.metrics.SupplyTotal.Set(float64(c.projections.TotalSupply()))
	}
}

func (c *ShardCore) currentPrice() *state.PricePoint {
	pf, ok := c.projections.Price()
	if !ok {
		return nil
	}
	return &state.PricePoint{Price: pf.Price, Timestamp: pf.Timestamp}
}

func (c *ShardCore) emit(out CoreOutput) {
	if c.persistChan == nil || out.empty() {
		return
	}
	// Blocking send: the core stalls rather than losing the durable
	// dedup record or a projection row.
	c.persistChan <- out
}

// --- Inbound reconcilers ---

func (c *ShardCore) applyShardAnnounced(msg event.Message, _ *CoreOutput) bool {
	fact := msg.Fact.(*event.ShardAnnounced)
	added := c.shards.Register(fact.Shard)
	if added {
		c.logger.Info().Str("shard", fact.Shard).Msg("peer shard announced")
		if c.metrics != nil {
			c.metrics.RegistryShards.Set(float64(c.shards.Size()))
		}
	}
	return added
}

func (c *ShardCore) applyPlayerRegistered(msg event.Message, out *CoreOutput) bool {
	fact := msg.Fact.(*event.PlayerRegistered)
	applied := c.projections.ReconcilePlayerRegistered(fact.Player, fact.DisplayName, msg.LogicalTime)
	if applied {
		if snap, ok := c.projections.Player(fact.Player); ok {
			c.board.UpsertPlayer(snap)
			out.Players = append(out.Players, snap)
		}
	}
	return applied
}

func (c *ShardCore) applyPlayerScore(msg event.Message, out *CoreOutput) bool {
	fact := msg.Fact.(*event.PlayerScoreChanged)
	snap := projection.GlobalPlayer{
		ID:          fact.Player,
		DisplayName: fact.DisplayName,
		TotalEarned: fact.TotalEarned,
		TotalProfit: fact.TotalProfit,
		Level:       fact.Level,
		GuildID:     fact.GuildID,
		LastUpdated: msg.LogicalTime,
	}
	applied := c.projections.ReconcilePlayerScore(snap)
	if applied {
		c.board.UpsertPlayer(snap)
		out.Players = append(out.Players, snap)
	}
	return applied
}

func (c *ShardCore) applyGuildCreated(msg event.Message, out *CoreOutput) bool {
	fact := msg.Fact.(*event.GuildCreated)
	applied := c.projections.ReconcileGuildCreated(fact.Guild, fact.Name, msg.LogicalTime)
	if applied {
		c.board.UpsertGuild(fact.Guild, fact.Name)
		if snap, ok := c.projections.Guild(fact.Guild); ok {
			out.Guilds = append(out.Guilds, snap)
		}
	}
	return applied
}

func (c *ShardCore) applyGuildScore(msg event.Message, out *CoreOutput) bool {
	fact := msg.Fact.(*event.GuildScoreChanged)
	snap := projection.GlobalGuild{
		ID:          fact.Guild,
		Name:        fact.Name,
		MemberCount: fact.MemberCount,
		TotalPoints: fact.TotalPoints,
		LastUpdated: msg.LogicalTime,
	}
	applied := c.projections.ReconcileGuildScore(snap)
	if applied {
		c.board.UpsertGuild(fact.Guild, fact.Name)
		out.Guilds = append(out.Guilds, snap)
	}
	return applied
}

func (c *ShardCore) applyMarketCreated(msg event.Message, out *CoreOutput) bool {
	fact := msg.Fact.(*event.MarketCreated)
	view := projection.GlobalMarket{ID: fact.Market, Creator: fact.Creator, Title: fact.Title, CreatedAt: fact.Timestamp}
	applied := c.projections.ReconcileMarketCreated(view)
	if applied {
		out.Markets = append(out.Markets, view)
	}
	return applied
}

// applyPriceUpdated reconciles the price only. Remote price facts do
// not run the resolution sweep; the origin shard already swept, and
// local windows resolve off local observations and refresh ticks.
func (c *ShardCore) applyPriceUpdated(msg event.Message, out *CoreOutput) bool {
	fact := msg.Fact.(*event.PriceUpdated)
	applied := c.projections.ReconcilePrice(fact.Price, fact.Timestamp, msg.LogicalTime)
	if applied {
		pf, _ := c.projections.Price()
		out.Price = &pf
	}
	return applied
}

func (c *ShardCore) applySupplyChanged(msg event.Message, out *CoreOutput) bool {
	fact := msg.Fact.(*event.SupplyChanged)
	applied := c.projections.ReconcileSupply(msg.Origin, fact.Supply, msg.LogicalTime)
	if applied {
		out.Supplies = append(out.Supplies, projection.SupplyEntry{
			Origin:      msg.Origin,
			Supply:      fact.Supply,
			LastUpdated: msg.LogicalTime,
		})
		if c.metrics != nil {
			c.metrics.SupplyTotal.Set(float64(c.projections.TotalSupply()))
		}
	}
	return applied
}

// --- Accessors for the shell and tests ---

// Clock returns the current logical time.
func (c *ShardCore) Clock() int64 {
	return c.clock
}

// WarmLRU preloads recently processed message keys after a restart.
func (c *ShardCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// Projections exposes the converged store for read-only use in tests.
func (c *ShardCore) Projections() *projection.Store {
	return c.projections
}

// Book exposes the points ledger for read-only use in tests.
func (c *ShardCore) Book() *ledger.PointsBook {
	return c.book
}
