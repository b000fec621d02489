package app

import (
	"errors"
	"fmt"
	"whaletracker/internal/store"

	"go.uber.org/zap"
)

// epsilon absorbs floating-point residue left over from proportional
// invested scaling on partial exits. A remaining size at or below this
// is treated as fully closed.
const epsilon = 0.001

// Ledger action labels, reported in deltas and event payloads.
const (
	ActionOpened    = "opened"
	ActionIncreased = "increased"
	ActionReduced   = "reduced"
	ActionClosed    = "closed"
	ActionIgnored   = "ignored"
)

// Snapshot captures ledger state for a trade's key before the trade is
// applied. The detector classifies against this, not the post-trade state.
type Snapshot struct {
	Existing    *store.Position // open position for the trade's key, nil if ABSENT
	Opposite    *store.Position // open position for the opposite outcome, nil if none
	PriorTrades int             // trades already ingested for this key
}

// Delta describes how one trade changed the ledger.
type Delta struct {
	Action   string
	Position *store.Position       // state after the trade, nil when closed or ignored
	Closed   *store.ClosedPosition // set only when Action is ActionClosed
}

// Ledger owns open and closed position records. It is single-writer:
// the orchestrator feeds it one trade at a time, in order, and nothing
// else mutates positions.
type Ledger struct {
	logger *zap.Logger
	store  *store.Store
}

func NewLedger(logger *zap.Logger, st *store.Store) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{logger: logger, store: st}
}

// TakeSnapshot loads the pre-trade ledger state for a trade's key.
func (l *Ledger) TakeSnapshot(wallet, marketID string, outcomeIndex int) (*Snapshot, error) {
	snap := &Snapshot{}

	pos, err := l.store.GetPosition(wallet, marketID, outcomeIndex)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load position: %w", err)
	}
	snap.Existing = pos

	// Binary markets: the opposite side is the other outcome index.
	opp, err := l.store.GetPosition(wallet, marketID, 1-outcomeIndex)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load opposite position: %w", err)
	}
	snap.Opposite = opp

	count, err := l.store.CountTradesForKey(wallet, marketID, outcomeIndex)
	if err != nil {
		return nil, fmt.Errorf("count prior trades: %w", err)
	}
	snap.PriorTrades = count

	return snap, nil
}

// Apply transitions the position for the trade's key and persists the
// result. The snapshot must have been taken before the trade was stored.
func (l *Ledger) Apply(trade store.Trade, snap *Snapshot) (*Delta, error) {
	switch trade.Side {
	case "BUY":
		return l.applyBuy(trade, snap.Existing)
	case "SELL":
		return l.applySell(trade, snap.Existing)
	default:
		return nil, fmt.Errorf("unknown trade side %q", trade.Side)
	}
}

func (l *Ledger) applyBuy(trade store.Trade, existing *store.Position) (*Delta, error) {
	if existing == nil {
		pos := store.Position{
			Wallet:        trade.Wallet,
			MarketID:      trade.MarketID,
			OutcomeIndex:  trade.OutcomeIndex,
			Size:          trade.Size,
			AvgEntryPrice: trade.Price,
			TotalInvested: trade.Size * trade.Price,
			OpenedAt:      trade.TradedAt,
			UpdatedAt:     trade.TradedAt,
		}
		markPosition(&pos, trade.Price)

		id, err := l.store.InsertPosition(pos)
		if err != nil {
			return nil, fmt.Errorf("open position: %w", err)
		}
		pos.ID = id

		l.logger.Debug("position opened",
			zap.String("wallet", shortAddress(trade.Wallet)),
			zap.String("market", shortID(trade.MarketID)),
			zap.Float64("size", pos.Size),
			zap.Float64("avgEntryPrice", pos.AvgEntryPrice),
		)
		return &Delta{Action: ActionOpened, Position: &pos}, nil
	}

	pos := *existing
	added := trade.Size * trade.Price
	pos.Size = existing.Size + trade.Size
	pos.TotalInvested = existing.TotalInvested + added
	pos.AvgEntryPrice = pos.TotalInvested / pos.Size
	pos.UpdatedAt = trade.TradedAt
	markPosition(&pos, trade.Price)

	if err := l.store.UpdatePosition(pos); err != nil {
		return nil, fmt.Errorf("increase position: %w", err)
	}
	return &Delta{Action: ActionIncreased, Position: &pos}, nil
}

func (l *Ledger) applySell(trade store.Trade, existing *store.Position) (*Delta, error) {
	if existing == nil {
		// A SELL without an open position means upstream data is
		// incomplete. Warn and move on rather than inventing state.
		l.logger.Warn("sell without open position, ignoring",
			zap.String("wallet", shortAddress(trade.Wallet)),
			zap.String("market", shortID(trade.MarketID)),
			zap.Int("outcomeIndex", trade.OutcomeIndex),
			zap.Float64("size", trade.Size),
		)
		return &Delta{Action: ActionIgnored}, nil
	}

	newSize := existing.Size - trade.Size
	if newSize > epsilon {
		// Partial exit: invested scales proportionally, cost basis holds.
		pos := *existing
		pos.Size = newSize
		pos.TotalInvested = existing.TotalInvested * (newSize / existing.Size)
		pos.UpdatedAt = trade.TradedAt
		markPosition(&pos, trade.Price)

		if err := l.store.UpdatePosition(pos); err != nil {
			return nil, fmt.Errorf("reduce position: %w", err)
		}
		return &Delta{Action: ActionReduced, Position: &pos}, nil
	}

	// Full close: P&L realized against the whole remaining stake.
	returned := existing.Size * trade.Price
	realizedPnl := returned - existing.TotalInvested
	realizedRoi := 0.0
	if existing.TotalInvested > 0 {
		realizedRoi = realizedPnl / existing.TotalInvested
	}

	closed := store.ClosedPosition{
		Wallet:        existing.Wallet,
		MarketID:      existing.MarketID,
		OutcomeIndex:  existing.OutcomeIndex,
		Size:          existing.Size,
		AvgEntryPrice: existing.AvgEntryPrice,
		TotalInvested: existing.TotalInvested,
		AvgExitPrice:  trade.Price,
		TotalReturned: returned,
		RealizedPnl:   realizedPnl,
		RealizedRoi:   realizedRoi,
		OpenedAt:      existing.OpenedAt,
		ClosedAt:      trade.TradedAt,
		HoldDuration:  trade.TradedAt - existing.OpenedAt,
	}

	if err := l.store.ClosePosition(existing.ID, closed); err != nil {
		return nil, fmt.Errorf("close position: %w", err)
	}

	l.logger.Info("position closed",
		zap.String("wallet", shortAddress(trade.Wallet)),
		zap.String("market", shortID(trade.MarketID)),
		zap.Float64("realizedPnl", realizedPnl),
		zap.Float64("realizedRoi", realizedRoi),
	)
	return &Delta{Action: ActionClosed, Closed: &closed}, nil
}

// markPosition recomputes value and unrealized P&L against the latest
// observed trade price for the key. This is an approximation, not an
// independent quote.
func markPosition(p *store.Position, latestPrice float64) {
	p.CurrentPrice = latestPrice
	p.CurrentValue = p.Size * latestPrice
	p.UnrealizedPnl = p.CurrentValue - p.TotalInvested
	if p.TotalInvested > 0 {
		p.UnrealizedRoi = p.UnrealizedPnl / p.TotalInvested
	} else {
		p.UnrealizedRoi = 0
	}
}
