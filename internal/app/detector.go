package app

import (
	"encoding/json"
	"whaletracker/config"
	"whaletracker/internal/store"

	"go.uber.org/zap"
)

// Event types.
const (
	EventNewPosition = "NEW_POSITION"
	EventReversal    = "REVERSAL"
	EventDoubleDown  = "DOUBLE_DOWN"
	EventExit        = "EXIT"
	EventLargeTrade  = "LARGE_TRADE"
)

// Event severities.
const (
	SeverityNormal   = "NORMAL"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// Detector classifies a trade against the pre-trade ledger snapshot.
// Rules are independent and may co-fire; classification is pure, all
// persistence happens in the processor.
type Detector struct {
	logger *zap.Logger
	cfg    config.DetectorConfig
}

func NewDetector(logger *zap.Logger, cfg *config.Config) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{logger: logger, cfg: cfg.Detector}
}

// Classify returns zero or more events for a trade. snap is the ledger
// state before the trade; delta is what the ledger did with it.
func (d *Detector) Classify(trade store.Trade, snap *Snapshot, delta *Delta) []store.Event {
	var events []store.Event

	if ev := d.detectNewPosition(trade, snap); ev != nil {
		events = append(events, *ev)
	}
	if ev := d.detectReversal(trade, snap); ev != nil {
		events = append(events, *ev)
	}
	if ev := d.detectDoubleDown(trade, snap); ev != nil {
		events = append(events, *ev)
	}
	if ev := d.detectExit(trade, delta); ev != nil {
		events = append(events, *ev)
	}
	if ev := d.detectLargeTrade(trade); ev != nil {
		events = append(events, *ev)
	}

	return events
}

func (d *Detector) detectNewPosition(trade store.Trade, snap *Snapshot) *store.Event {
	if trade.Side != "BUY" || snap.PriorTrades > 0 {
		return nil
	}

	severity := SeverityNormal
	if trade.Value > d.cfg.NewPositionHighValue {
		severity = SeverityHigh
	}
	return d.newEvent(trade, EventNewPosition, severity, map[string]any{
		"size":  trade.Size,
		"price": trade.Price,
		"value": trade.Value,
	})
}

func (d *Detector) detectReversal(trade store.Trade, snap *Snapshot) *store.Event {
	if trade.Side != "BUY" || snap.Opposite == nil || snap.Opposite.Size <= 0 {
		return nil
	}

	// Betting against an open position on the other side of the same
	// market is always worth surfacing loudly.
	return d.newEvent(trade, EventReversal, SeverityHigh, map[string]any{
		"size":                 trade.Size,
		"price":                trade.Price,
		"value":                trade.Value,
		"oppositeOutcome":      snap.Opposite.OutcomeIndex,
		"oppositeSize":         snap.Opposite.Size,
		"oppositeAvgEntry":     snap.Opposite.AvgEntryPrice,
		"oppositeUnrealizedPnl": snap.Opposite.UnrealizedPnl,
	})
}

func (d *Detector) detectDoubleDown(trade store.Trade, snap *Snapshot) *store.Event {
	if trade.Side != "BUY" || snap.Existing == nil || snap.Existing.Size <= 0 {
		return nil
	}

	ratio := trade.Size / snap.Existing.Size
	if ratio <= d.cfg.DoubleDownRatio {
		return nil
	}

	severity := SeverityNormal
	if ratio > d.cfg.DoubleDownHighRatio {
		severity = SeverityHigh
	}
	return d.newEvent(trade, EventDoubleDown, severity, map[string]any{
		"addedSize":    trade.Size,
		"existingSize": snap.Existing.Size,
		"ratio":        ratio,
		"price":        trade.Price,
		"value":        trade.Value,
	})
}

func (d *Detector) detectExit(trade store.Trade, delta *Delta) *store.Event {
	if trade.Side != "SELL" || delta == nil || delta.Action != ActionClosed {
		return nil
	}

	closed := delta.Closed
	severity := SeverityNormal
	pnl := closed.RealizedPnl
	if pnl > d.cfg.ExitHighPnl || pnl < -d.cfg.ExitHighPnl {
		severity = SeverityHigh
	}
	return d.newEvent(trade, EventExit, severity, map[string]any{
		"size":         closed.Size,
		"avgEntry":     closed.AvgEntryPrice,
		"exitPrice":    closed.AvgExitPrice,
		"realizedPnl":  closed.RealizedPnl,
		"realizedRoi":  closed.RealizedRoi,
		"holdDuration": closed.HoldDuration,
	})
}

func (d *Detector) detectLargeTrade(trade store.Trade) *store.Event {
	if trade.Value <= d.cfg.LargeTradeValue {
		return nil
	}

	severity := SeverityNormal
	switch {
	case trade.Value > d.cfg.LargeTradeCriticalValue:
		severity = SeverityCritical
	case trade.Value > d.cfg.LargeTradeHighValue:
		severity = SeverityHigh
	}
	return d.newEvent(trade, EventLargeTrade, severity, map[string]any{
		"side":  trade.Side,
		"size":  trade.Size,
		"price": trade.Price,
		"value": trade.Value,
	})
}

func (d *Detector) newEvent(trade store.Trade, eventType, severity string, payload map[string]any) *store.Event {
	payload["tradeId"] = trade.ID
	raw, err := json.Marshal(payload)
	if err != nil {
		// Payloads are built from plain numbers and strings; a marshal
		// failure here is a programming error, not a data problem.
		d.logger.Error("failed to encode event payload",
			zap.String("eventType", eventType),
			zap.Error(err),
		)
		raw = []byte("{}")
	}

	return &store.Event{
		Wallet:       trade.Wallet,
		MarketID:     trade.MarketID,
		OutcomeIndex: trade.OutcomeIndex,
		Type:         eventType,
		Severity:     severity,
		Payload:      string(raw),
		DetectedAt:   trade.TradedAt,
	}
}
