package notifier

import (
	"time"
)

// EventAlert contains the data needed to announce a detected whale event.
type EventAlert struct {
	// Whale info
	WhaleName     string
	WalletAddress string

	// Event info
	EventType string // NEW_POSITION, REVERSAL, DOUBLE_DOWN, EXIT, LARGE_TRADE
	Severity  string // NORMAL, HIGH, CRITICAL

	// Trade info
	Side     string // BUY or SELL
	Size     float64
	Price    float64
	Notional float64

	// Market info
	MarketID     string
	OutcomeIndex int

	// Position context (zero-valued when not applicable)
	PositionSize     float64
	PositionAvgPrice float64
	RealizedPnl      float64
	HasPnl           bool

	Timestamp time.Time
}

// Notifier is the interface for announcing whale events to external channels.
type Notifier interface {
	// SendEventAlert announces a whale event.
	SendEventAlert(alert EventAlert)

	// Close cleans up any resources.
	Close() error
}

// MultiNotifier broadcasts alerts to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a new MultiNotifier with the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	// Filter out nil notifiers
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &MultiNotifier{notifiers: active}
}

// SendEventAlert sends the alert to all registered notifiers.
func (m *MultiNotifier) SendEventAlert(alert EventAlert) {
	for _, n := range m.notifiers {
		n.SendEventAlert(alert)
	}
}

// Close closes all registered notifiers.
func (m *MultiNotifier) Close() error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Count returns the number of active notifiers.
func (m *MultiNotifier) Count() int {
	return len(m.notifiers)
}
