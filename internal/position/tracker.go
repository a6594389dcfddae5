package position

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ramonzeraa/teste-crypto/internal/types"
)

// Tracker owns every open position and the account ledger windows. All
// mutation goes through fills and closes; readers get value snapshots.
// Cross-symbol operations run in parallel, same-symbol writers serialize
// through bounded per-symbol locks.
type Tracker struct {
	mu        sync.RWMutex
	positions map[string]*Position

	capital      float64
	reserveRatio float64
	dailyPnL     float64
	weeklyPnL    float64
	monthlyPnL   float64
	tradesToday  int
	windowAnchor time.Time

	locks *symbolLocks
	now   func() time.Time
}

func NewTracker(capital, reserveRatio float64) *Tracker {
	return &Tracker{
		positions:    make(map[string]*Position),
		capital:      capital,
		reserveRatio: reserveRatio,
		windowAnchor: time.Now(),
		locks:        newSymbolLocks(2 * time.Second),
		now:          time.Now,
	}
}

// SetClock replaces the time source, for tests only.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// ApplyFill applies one fill to the symbol's position: same-direction fills
// open or scale in (weighted average entry), opposite-direction fills scale
// out and realize PnL. The caller persists the returned Delta together with
// the order transition so neither exists without the other.
func (t *Tracker) ApplyFill(intent types.OrderIntent, qty, price float64) (Delta, error) {
	if qty <= 0 || price <= 0 {
		return Delta{}, fmt.Errorf("invalid fill qty=%v price=%v", qty, price)
	}
	release, err := t.locks.acquire(intent.Symbol)
	if err != nil {
		return Delta{}, err
	}
	defer release()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()

	delta := Delta{Symbol: intent.Symbol}
	pos, ok := t.positions[intent.Symbol]
	if !ok {
		pos = &Position{
			Symbol:       intent.Symbol,
			Direction:    intent.Direction,
			EntryPrice:   price,
			Size:         qty,
			OpenedAt:     t.now(),
			StopLoss:     intent.StopLoss,
			TakeProfits:  append([]float64(nil), intent.TakeProfits...),
			Trailing:     intent.Trailing,
			TrailingPeak: price,
			CurrentPrice: price,
			UpdatedAt:    t.now(),
		}
		t.positions[intent.Symbol] = pos
		t.tradesToday++
		delta.Opened = true
		delta.SizeAfter = qty
		return delta, nil
	}

	delta.SizeBefore = pos.Size
	if pos.Direction == intent.Direction {
		// Scale in: recompute the weighted entry.
		total := pos.Size + qty
		pos.EntryPrice = (pos.EntryPrice*pos.Size + price*qty) / total
		pos.Size = total
		t.tradesToday++
	} else {
		// Scale out: realize PnL on the reduced quantity.
		reduce := math.Min(qty, pos.Size)
		realized := realizedPnL(pos.Direction, pos.EntryPrice, price, reduce)
		pos.Size -= reduce
		pos.RealizedPnL += realized
		delta.RealizedPnL = realized
		t.settleLocked(realized)
		if pos.Size <= 0 {
			delete(t.positions, intent.Symbol)
			delta.Closed = true
		}
	}
	pos.CurrentPrice = price
	pos.UnrealizedPnL = pos.unrealizedAt(price)
	pos.UpdatedAt = t.now()
	delta.SizeAfter = pos.Size
	if delta.Closed {
		delta.SizeAfter = 0
	}
	return delta, nil
}

// ClosePosition fully closes the symbol at exitPrice and returns the
// realized PnL of the close.
func (t *Tracker) ClosePosition(symbol string, exitPrice float64) (float64, error) {
	if exitPrice <= 0 {
		return 0, fmt.Errorf("invalid exit price %v for %s", exitPrice, symbol)
	}
	release, err := t.locks.acquire(symbol)
	if err != nil {
		return 0, err
	}
	defer release()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()

	pos, ok := t.positions[symbol]
	if !ok {
		return 0, fmt.Errorf("no open position for %s", symbol)
	}
	realized := realizedPnL(pos.Direction, pos.EntryPrice, exitPrice, pos.Size)
	delete(t.positions, symbol)
	t.settleLocked(realized)
	return realized, nil
}

// MarkPrice records a new mark price, refreshes unrealized PnL and returns
// any protective triggers the tick crossed. A lock timeout drops nothing:
// the error propagates so the caller can retry the tick.
func (t *Tracker) MarkPrice(symbol string, price float64) ([]TriggerEvent, error) {
	if price <= 0 {
		return nil, fmt.Errorf("invalid mark price %v for %s", price, symbol)
	}
	release, err := t.locks.acquire(symbol)
	if err != nil {
		return nil, err
	}
	defer release()

	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.positions[symbol]
	if !ok {
		return nil, nil
	}
	pos.CurrentPrice = price
	pos.UnrealizedPnL = pos.unrealizedAt(price)
	pos.UpdatedAt = t.now()
	return evaluateTriggers(pos, price), nil
}

func evaluateTriggers(pos *Position, price float64) []TriggerEvent {
	var events []TriggerEvent
	long := pos.Direction != types.DirectionShort

	if pos.Trailing && pos.StopLoss > 0 {
		// Ratchet the stop along with the favorable extreme.
		if long && price > pos.TrailingPeak {
			pos.StopLoss += price - pos.TrailingPeak
			pos.TrailingPeak = price
		} else if !long && (pos.TrailingPeak == 0 || price < pos.TrailingPeak) {
			if pos.TrailingPeak > 0 {
				pos.StopLoss -= pos.TrailingPeak - price
			}
			pos.TrailingPeak = price
		}
	}

	if pos.StopLoss > 0 {
		crossed := (long && price <= pos.StopLoss) || (!long && price >= pos.StopLoss)
		if crossed {
			kind := TriggerStopLoss
			if pos.Trailing {
				kind = TriggerTrailingStop
			}
			return []TriggerEvent{{
				Symbol: pos.Symbol, Kind: kind, Level: pos.StopLoss, Price: price, CloseRatio: 1,
			}}
		}
	}

	if len(pos.TakeProfits) > 0 {
		levels := append([]float64(nil), pos.TakeProfits...)
		sort.Float64s(levels)
		if !long {
			sort.Sort(sort.Reverse(sort.Float64Slice(levels)))
		}
		remaining := len(levels)
		for _, level := range levels {
			crossed := (long && price >= level) || (!long && price <= level)
			if !crossed {
				break
			}
			ratio := 1.0 / float64(remaining)
			events = append(events, TriggerEvent{
				Symbol: pos.Symbol, Kind: TriggerTakeProfit, Level: level, Price: price, CloseRatio: ratio,
			})
			// Consume the level so the next tick does not fire it again.
			pos.TakeProfits = removeLevel(pos.TakeProfits, level)
		}
	}
	return events
}

func removeLevel(levels []float64, level float64) []float64 {
	out := levels[:0]
	for _, l := range levels {
		if l != level {
			out = append(out, l)
		}
	}
	return out
}

// Snapshot returns the account state admission checks evaluate against.
func (t *Tracker) Snapshot() AccountState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()

	var exposure, unrealized float64
	for _, pos := range t.positions {
		exposure += pos.Notional()
		unrealized += pos.UnrealizedPnL
	}
	return AccountState{
		Capital:       t.capital,
		ReserveRatio:  t.reserveRatio,
		DailyPnL:      t.dailyPnL,
		WeeklyPnL:     t.weeklyPnL,
		MonthlyPnL:    t.monthlyPnL,
		UnrealizedPnL: unrealized,
		TradesToday:   t.tradesToday,
		OpenPositions: len(t.positions),
		TotalExposure: exposure,
		UpdatedAt:     t.now(),
	}
}

// Get returns a copy of the symbol's position, if open.
func (t *Tracker) Get(symbol string) (Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pos, ok := t.positions[symbol]
	if !ok {
		return Position{}, false
	}
	cp := *pos
	cp.TakeProfits = append([]float64(nil), pos.TakeProfits...)
	return cp, true
}

// List returns copies of all open positions, sorted by symbol.
func (t *Tracker) List() []Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Position, 0, len(t.positions))
	for _, pos := range t.positions {
		cp := *pos
		cp.TakeProfits = append([]float64(nil), pos.TakeProfits...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Restore replaces in-memory state with the reconciled records loaded at
// startup. Only the trader's recovery path calls it, before any admission.
// anchor is when the persisted windows were last touched; the next
// rollover check against it expires windows that ended while the process
// was down.
func (t *Tracker) Restore(positions []Position, dailyPnL, weeklyPnL, monthlyPnL float64, tradesToday int, anchor time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions = make(map[string]*Position, len(positions))
	for i := range positions {
		cp := positions[i]
		t.positions[cp.Symbol] = &cp
	}
	t.dailyPnL = dailyPnL
	t.weeklyPnL = weeklyPnL
	t.monthlyPnL = monthlyPnL
	t.tradesToday = tradesToday
	if anchor.IsZero() {
		anchor = t.now()
	}
	t.windowAnchor = anchor
	t.rolloverLocked()
}

func (t *Tracker) settleLocked(realized float64) {
	t.capital += realized
	t.dailyPnL += realized
	t.weeklyPnL += realized
	t.monthlyPnL += realized
}

// rolloverLocked resets the calendar windows when day/week/month boundaries
// pass. Daily trade counting resets with the day.
func (t *Tracker) rolloverLocked() {
	now := t.now()
	prev := t.windowAnchor
	if sameDay(prev, now) {
		return
	}
	t.dailyPnL = 0
	t.tradesToday = 0
	py, pw := prev.ISOWeek()
	ny, nw := now.ISOWeek()
	if py != ny || pw != nw {
		t.weeklyPnL = 0
	}
	if prev.Year() != now.Year() || prev.Month() != now.Month() {
		t.monthlyPnL = 0
	}
	t.windowAnchor = now
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func realizedPnL(dir types.Direction, entry, exit, qty float64) float64 {
	if dir == types.DirectionShort {
		return (entry - exit) * qty
	}
	return (exit - entry) * qty
}
