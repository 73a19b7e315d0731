package state

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidDirection    = errors.New("prediction direction must be rise or fall")
	ErrDuplicatePrediction = errors.New("player already predicted this window")
	ErrWindowResolved      = errors.New("window already resolved")
)

// PeriodKind selects the prediction window length.
type PeriodKind int32

const (
	PeriodDaily PeriodKind = iota + 1
	PeriodWeekly
	PeriodMonthly
)

const microsPerHour = int64(3600) * 1_000_000

// DurationMicros returns the window length in epoch microseconds.
func (k PeriodKind) DurationMicros() int64 {
	switch k {
	case PeriodDaily:
		return 24 * microsPerHour
	case PeriodWeekly:
		return 7 * 24 * microsPerHour
	case PeriodMonthly:
		return 30 * 24 * microsPerHour
	default:
		return 0
	}
}

// RewardPoints is the stake credited or debited per member on resolution.
func (k PeriodKind) RewardPoints() int64 {
	switch k {
	case PeriodDaily:
		return 100
	case PeriodWeekly:
		return 500
	case PeriodMonthly:
		return 1000
	default:
		return 0
	}
}

// PredictorXP is the experience granted to the predicting player on a win.
func (k PeriodKind) PredictorXP() int64 {
	switch k {
	case PeriodDaily:
		return 50
	case PeriodWeekly:
		return 250
	case PeriodMonthly:
		return 500
	default:
		return 0
	}
}

// MemberXP is the smaller experience granted to non-predicting guild
// members on a guild win.
func (k PeriodKind) MemberXP() int64 {
	switch k {
	case PeriodDaily:
		return 25
	case PeriodWeekly:
		return 125
	case PeriodMonthly:
		return 250
	default:
		return 0
	}
}

func (k PeriodKind) String() string {
	switch k {
	case PeriodDaily:
		return "daily"
	case PeriodWeekly:
		return "weekly"
	case PeriodMonthly:
		return "monthly"
	default:
		return "unknown"
	}
}

// ParsePeriodKind maps the wire name back to a kind.
func ParsePeriodKind(s string) (PeriodKind, error) {
	switch s {
	case "daily":
		return PeriodDaily, nil
	case "weekly":
		return PeriodWeekly, nil
	case "monthly":
		return PeriodMonthly, nil
	default:
		return 0, fmt.Errorf("unknown period kind: %q", s)
	}
}

// AllPeriodKinds lists kinds in ascending duration order.
func AllPeriodKinds() []PeriodKind {
	return []PeriodKind{PeriodDaily, PeriodWeekly, PeriodMonthly}
}

// PeriodStart aligns a timestamp down to the window grid for a kind.
func PeriodStart(k PeriodKind, tsMicros int64) int64 {
	d := k.DurationMicros()
	if d <= 0 || tsMicros < 0 {
		return 0
	}
	return tsMicros - tsMicros%d
}

// Direction is a predicted or realized price movement.
type Direction int32

const (
	DirectionRise Direction = iota + 1
	DirectionFall
	DirectionNeutral // Outcome only, never a valid prediction
)

func (d Direction) String() string {
	switch d {
	case DirectionRise:
		return "rise"
	case DirectionFall:
		return "fall"
	case DirectionNeutral:
		return "neutral"
	default:
		return "unknown"
	}
}

// ParseDirection accepts the two predictable directions.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "rise":
		return DirectionRise, nil
	case "fall":
		return DirectionFall, nil
	default:
		return 0, ErrInvalidDirection
	}
}

// PricePoint is one oracle observation.
type PricePoint struct {
	Price     int64
	Timestamp int64 // Epoch microseconds (versioned input)
}

// WindowKey identifies one prediction window.
type WindowKey struct {
	Kind  PeriodKind
	Start int64
}

// Window is one prediction window. StartPrice is snapshotted from the
// current price fact when the window is first touched; EndPrice is the
// price fact current at resolution time, however late that arrives.
// A resolved window is immutable.
type Window struct {
	Kind       PeriodKind
	Start      int64
	End        int64
	StartPrice *PricePoint
	EndPrice   *PricePoint
	Outcome    Direction
	Resolved   bool
}

// Prediction is one player's call on one window.
type Prediction struct {
	Player      uuid.UUID
	Kind        PeriodKind
	WindowStart int64
	Direction   Direction
	SubmittedAt int64
	Resolved    bool
	Correct     bool
}

type predictionKey struct {
	player uuid.UUID
	window WindowKey
}

// PredictionResult is one settled prediction inside a Resolution.
type PredictionResult struct {
	Player    uuid.UUID
	Direction Direction
	Correct   bool
}

// Resolution reports one window closing.
type Resolution struct {
	Kind    PeriodKind
	Start   int64
	Outcome Direction
	Results []PredictionResult
}

// PeriodEngine tracks prediction windows and open predictions. It has
// no timer: windows only resolve when a price observation (or an
// injected refresh tick) arrives with a timestamp at or past a
// window's end. Not thread-safe.
type PeriodEngine struct {
	windows     map[WindowKey]*Window
	windowOrder []WindowKey
	predictions map[predictionKey]*Prediction
	byWindow    map[WindowKey][]*Prediction
}

func NewPeriodEngine() *PeriodEngine {
	return &PeriodEngine{
		windows:     make(map[WindowKey]*Window),
		predictions: make(map[predictionKey]*Prediction),
		byWindow:    make(map[WindowKey][]*Prediction),
	}
}

// ensureWindow lazily creates the window covering ts and snapshots the
// start price if one is available and not yet captured.
func (pe *PeriodEngine) ensureWindow(kind PeriodKind, ts int64, price *PricePoint) *Window {
	key := WindowKey{Kind: kind, Start: PeriodStart(kind, ts)}
	w, ok := pe.windows[key]
	if !ok {
		w = &Window{
			Kind:  kind,
			Start: key.Start,
			End:   key.Start + kind.DurationMicros(),
		}
		pe.windows[key] = w
		pe.windowOrder = append(pe.windowOrder, key)
	}
	if w.StartPrice == nil && price != nil && !w.Resolved {
		snapshot := *price
		w.StartPrice = &snapshot
	}
	return w
}

// Submit records a prediction against the window covering now.
// The same player may predict each window of each kind once.
func (pe *PeriodEngine) Submit(player uuid.UUID, kind PeriodKind, dir Direction, now int64, price *PricePoint) (*Prediction, error) {
	if dir != DirectionRise && dir != DirectionFall {
		return nil, ErrInvalidDirection
	}

	w := pe.ensureWindow(kind, now, price)
	if w.Resolved {
		return nil, ErrWindowResolved
	}

	key := predictionKey{player: player, window: WindowKey{Kind: kind, Start: w.Start}}
	if _, dup := pe.predictions[key]; dup {
		return nil, ErrDuplicatePrediction
	}

	p := &Prediction{
		Player:      player,
		Kind:        kind,
		WindowStart: w.Start,
		Direction:   dir,
		SubmittedAt: now,
	}
	pe.predictions[key] = p
	pe.byWindow[key.window] = append(pe.byWindow[key.window], p)
	return p, nil
}

// Sweep is the price-driven resolution pass. It opens the current
// window for every kind (capturing start prices), then resolves every
// open window whose end lies at or before now, including windows that
// expired long ago and are only now seeing their first price update.
// The end price of a late-resolved window is the price current at
// resolution time.
func (pe *PeriodEngine) Sweep(now int64, price *PricePoint) []Resolution {
	for _, kind := range AllPeriodKinds() {
		pe.ensureWindow(kind, now, price)
	}

	if price == nil {
		return nil
	}

	var resolutions []Resolution
	for _, key := range pe.windowOrder {
		w := pe.windows[key]
		if w.Resolved || now < w.End {
			continue
		}
		resolutions = append(resolutions, pe.resolve(key, w, price))
	}
	return resolutions
}

func (pe *PeriodEngine) resolve(key WindowKey, w *Window, price *PricePoint) Resolution {
	end := *price
	w.EndPrice = &end
	if w.StartPrice == nil {
		// No price was ever observed while the window was open; with
		// identical start and end the window settles neutral.
		start := *price
		w.StartPrice = &start
	}

	switch {
	case w.EndPrice.Price > w.StartPrice.Price:
		w.Outcome = DirectionRise
	case w.EndPrice.Price < w.StartPrice.Price:
		w.Outcome = DirectionFall
	default:
		w.Outcome = DirectionNeutral
	}
	w.Resolved = true

	res := Resolution{Kind: w.Kind, Start: w.Start, Outcome: w.Outcome}
	for _, p := range pe.byWindow[key] {
		if p.Resolved {
			continue
		}
		p.Resolved = true
		p.Correct = p.Direction == w.Outcome
		res.Results = append(res.Results, PredictionResult{
			Player:    p.Player,
			Direction: p.Direction,
			Correct:   p.Correct,
		})
	}
	return res
}

// Window returns the window at an exact grid position.
func (pe *PeriodEngine) Window(kind PeriodKind, start int64) (*Window, bool) {
	w, ok := pe.windows[WindowKey{Kind: kind, Start: start}]
	return w, ok
}

// WindowsForKind returns all tracked windows of one kind, oldest first.
func (pe *PeriodEngine) WindowsForKind(kind PeriodKind) []Window {
	var out []Window
	for _, key := range pe.windowOrder {
		if key.Kind == kind {
			out = append(out, *pe.windows[key])
		}
	}
	return out
}

// OpenWindowCount returns the number of unresolved windows.
func (pe *PeriodEngine) OpenWindowCount() int {
	n := 0
	for _, w := range pe.windows {
		if !w.Resolved {
			n++
		}
	}
	return n
}
