package app

import (
	"fmt"
	"strconv"
	"time"
	"whaletracker/clients/clobapi"
	"whaletracker/clients/notifier"
	"whaletracker/internal/store"

	"go.uber.org/zap"
)

// ValidationError rejects a malformed trade before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid trade: %s: %s", e.Field, e.Message)
}

// IngestResult reports what ingestion did with one trade.
type IngestResult struct {
	IsNew   bool
	TradeID string
	Events  int
}

// Processor is the ingestion gate: it validates and dedups incoming
// fills, then drives each new one through the ledger, the detector, the
// hub and the notifier, synchronously and in that order.
type Processor struct {
	logger   *zap.Logger
	store    *store.Store
	ledger   *Ledger
	detector *Detector
	hub      *Hub
	notifier notifier.Notifier
	metrics  *Aggregator
}

func NewProcessor(logger *zap.Logger, st *store.Store, ledger *Ledger, detector *Detector, hub *Hub, ntf notifier.Notifier, metrics *Aggregator) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		logger:   logger,
		store:    st,
		ledger:   ledger,
		detector: detector,
		hub:      hub,
		notifier: ntf,
		metrics:  metrics,
	}
}

// Ingest runs one fill through the pipeline. Re-ingesting a previously
// seen source transaction returns IsNew=false with no side effects, so
// overlapping polling windows are harmless.
//
// The trade insert and the ledger update are separate writes: if the
// ledger fails after the insert, the trade stays recorded and the
// position is stale until a re-run replays the wallet.
func (p *Processor) Ingest(wallet string, raw clobapi.TradeRecord) (IngestResult, error) {
	if err := validateTrade(raw); err != nil {
		return IngestResult{}, err
	}

	trade := buildTrade(wallet, raw)
	result := IngestResult{TradeID: trade.ID}

	exists, err := p.store.TradeExists(trade.ID)
	if err != nil {
		return result, fmt.Errorf("dedup lookup: %w", err)
	}
	if exists {
		return result, nil
	}

	if _, err := p.store.EnsureWhale(wallet, trade.TradedAt); err != nil {
		return result, fmt.Errorf("ensure whale: %w", err)
	}

	// Snapshot before the insert so the detector sees the pre-trade
	// state, prior-trade counts included.
	snap, err := p.ledger.TakeSnapshot(wallet, trade.MarketID, trade.OutcomeIndex)
	if err != nil {
		return result, fmt.Errorf("ledger snapshot: %w", err)
	}

	if err := p.store.InsertTrade(trade); err != nil {
		return result, fmt.Errorf("persist trade: %w", err)
	}
	result.IsNew = true

	delta, err := p.ledger.Apply(trade, snap)
	if err != nil {
		return result, fmt.Errorf("ledger update: %w", err)
	}

	events := p.detector.Classify(trade, snap, delta)
	for _, ev := range events {
		// One event failing to persist or fan out must not block the
		// others, and never fails the ingestion.
		if err := p.store.InsertEvent(ev); err != nil {
			p.logger.Warn("failed to persist event",
				zap.String("eventType", ev.Type),
				zap.String("tradeId", shortID(trade.ID)),
				zap.Error(err),
			)
			continue
		}
		result.Events++

		delivered := p.hub.Publish(wallet, TradeBroadcast{
			Type:   "trade",
			Wallet: wallet,
			Trade:  trade,
			Event:  ev,
		})
		p.logger.Debug("event published",
			zap.String("eventType", ev.Type),
			zap.String("severity", ev.Severity),
			zap.Int("delivered", delivered),
		)

		if p.notifier != nil {
			p.notifier.SendEventAlert(buildAlert(trade, ev, delta))
		}
	}

	if err := p.store.TouchWhaleActivity(wallet, trade.TradedAt); err != nil {
		p.logger.Warn("failed to touch whale activity",
			zap.String("wallet", shortAddress(wallet)),
			zap.Error(err),
		)
	}

	if p.metrics != nil {
		if err := p.metrics.RefreshWhale(wallet); err != nil {
			p.logger.Warn("failed to refresh whale aggregates",
				zap.String("wallet", shortAddress(wallet)),
				zap.Error(err),
			)
		}
	}

	return result, nil
}

func validateTrade(raw clobapi.TradeRecord) error {
	if raw.Side != "BUY" && raw.Side != "SELL" {
		return &ValidationError{Field: "side", Message: "must be BUY or SELL"}
	}
	if raw.Size <= 0 {
		return &ValidationError{Field: "size", Message: "must be positive"}
	}
	if raw.Price <= 0 {
		return &ValidationError{Field: "price", Message: "must be positive"}
	}
	if raw.MarketID == "" {
		return &ValidationError{Field: "market_id", Message: "required"}
	}
	if raw.ID == "" && raw.TxHash == "" {
		return &ValidationError{Field: "id", Message: "no source transaction identity"}
	}
	return nil
}

// buildTrade normalizes a raw fill into the stored record. The canonical
// id comes from the source identity so re-polled fills dedup cleanly.
func buildTrade(wallet string, raw clobapi.TradeRecord) store.Trade {
	id := raw.ID
	if id == "" {
		id = raw.TxHash + "-" + raw.MarketID + "-" + strconv.Itoa(raw.OutcomeIndex)
	}

	value := raw.Value
	if value == 0 {
		value = raw.Size * raw.Price
	}

	tradedAt := raw.Timestamp
	if tradedAt == 0 {
		tradedAt = time.Now().Unix()
	}

	return store.Trade{
		ID:           id,
		Wallet:       wallet,
		MarketID:     raw.MarketID,
		OutcomeIndex: raw.OutcomeIndex,
		Side:         raw.Side,
		Size:         raw.Size,
		Price:        raw.Price,
		Value:        value,
		Fee:          raw.Fee,
		TxHash:       raw.TxHash,
		BlockNumber:  raw.BlockNumber,
		TradedAt:     tradedAt,
	}
}

func buildAlert(trade store.Trade, ev store.Event, delta *Delta) notifier.EventAlert {
	alert := notifier.EventAlert{
		WhaleName:     shortAddress(trade.Wallet),
		WalletAddress: trade.Wallet,
		EventType:     ev.Type,
		Severity:      ev.Severity,
		Side:          trade.Side,
		Size:          trade.Size,
		Price:         trade.Price,
		Notional:      trade.Value,
		MarketID:      trade.MarketID,
		OutcomeIndex:  trade.OutcomeIndex,
		Timestamp:     time.Unix(trade.TradedAt, 0),
	}
	if delta != nil {
		if delta.Position != nil {
			alert.PositionSize = delta.Position.Size
			alert.PositionAvgPrice = delta.Position.AvgEntryPrice
		}
		if delta.Closed != nil {
			alert.RealizedPnl = delta.Closed.RealizedPnl
			alert.HasPnl = true
		}
	}
	return alert
}
