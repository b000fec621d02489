package clients

import (
	"testing"
	"whaletracker/config"

	"go.uber.org/zap"
)

func TestNewClients(t *testing.T) {
	cfg := config.Defaults()
	cfg.Discord.ProdChannelID = "prod"
	cfg.Discord.BetaChannelID = "beta"

	logger := zap.NewNop()
	clients := NewClients(logger, cfg)

	if clients.Logger != logger {
		t.Error("unexpected logger")
	}
	if clients.Discord == nil {
		t.Error("expected Discord client to be set")
	}
	if clients.Clob == nil {
		t.Error("expected Clob client to be set")
	}
	if clients.Notifier == nil {
		t.Error("expected combined notifier to be set")
	}
}

func TestNewClients_Close(t *testing.T) {
	clients := NewClients(zap.NewNop(), config.Defaults())

	// No live sessions: close is a no-op that must not error.
	if err := clients.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}
