package clients

import (
	"whaletracker/clients/clobapi"
	"whaletracker/clients/discord"
	"whaletracker/clients/notifier"
	"whaletracker/config"

	"go.uber.org/zap"
)

type Clients struct {
	Logger *zap.Logger

	Discord  *discord.DiscordClient
	Notifier notifier.Notifier // Combined notifier for all channels
	Clob     *clobapi.Client
}

func NewClients(logger *zap.Logger, cfg *config.Config) *Clients {
	discordClient := discord.NewDiscordClient(logger, cfg)

	// Combined notifier so more channels can be added later
	multiNotifier := notifier.NewMultiNotifier(discordClient)

	return &Clients{
		Logger:   logger,
		Discord:  discordClient,
		Notifier: multiNotifier,
		Clob:     clobapi.NewClient(logger, cfg),
	}
}

// Close releases resources held by the individual clients.
func (c *Clients) Close() error {
	return c.Notifier.Close()
}
