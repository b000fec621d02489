package discord

import (
	"fmt"
	"strings"
	"time"
	"whaletracker/clients/notifier"
	"whaletracker/config"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordClient sends whale event alerts to Discord.
// Implements notifier.Notifier interface.
type DiscordClient struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
	isProd    bool
}

func NewDiscordClient(logger *zap.Logger, cfg *config.Config) *DiscordClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	channelID := cfg.Discord.BetaChannelID
	if cfg.IsProd {
		channelID = cfg.Discord.ProdChannelID
	}

	token := cfg.Discord.BotToken
	if token == "" {
		logger.Warn("DISCORD_BOT_TOKEN not set, Discord alerts disabled")
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
			isProd:    cfg.IsProd,
		}
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
			isProd:    cfg.IsProd,
		}
	}

	logger.Info("discord bot initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("channelID", channelID),
	)

	return &DiscordClient{
		logger:    logger,
		session:   session,
		channelID: channelID,
		isProd:    cfg.IsProd,
	}
}

// SendMessage sends a plain text message.
func (dc *DiscordClient) SendMessage(message string) {
	if dc.session == nil {
		dc.logger.Warn("discord session not initialized, skipping message")
		return
	}

	_, err := dc.session.ChannelMessageSend(dc.channelID, message)
	if err != nil {
		dc.logger.Error("failed to send discord message", zap.Error(err))
		return
	}

	dc.logger.Info("sent discord message")
}

// SendEventAlert sends a rich embedded whale event alert. Only HIGH and
// CRITICAL events are forwarded; lower severities stay in the realtime feed.
// Implements notifier.Notifier interface.
func (dc *DiscordClient) SendEventAlert(alert notifier.EventAlert) {
	if alert.Severity != "HIGH" && alert.Severity != "CRITICAL" {
		return
	}

	if dc.session == nil {
		dc.logger.Warn("discord session not initialized, skipping alert")
		return
	}

	embed := dc.buildEventEmbed(alert)

	_, err := dc.session.ChannelMessageSendEmbed(dc.channelID, embed)
	if err != nil {
		dc.logger.Error("failed to send discord embed", zap.Error(err))
		return
	}

	dc.logger.Info("sent discord event alert",
		zap.String("whale", alert.WhaleName),
		zap.String("eventType", alert.EventType),
		zap.String("severity", alert.Severity),
	)
}

func (dc *DiscordClient) buildEventEmbed(alert notifier.EventAlert) *discordgo.MessageEmbed {
	// Choose color based on side, overridden to orange for CRITICAL
	color := 0x2ECC71 // Green for BUY
	sideEmoji := "🟢"
	if strings.ToUpper(alert.Side) == "SELL" {
		color = 0xE74C3C // Red for SELL
		sideEmoji = "🔴"
	}
	if alert.Severity == "CRITICAL" {
		color = 0xE67E22
	}

	title := buildEventTitle(alert.EventType, alert.Severity)

	whaleDisplay := alert.WhaleName
	if alert.WalletAddress != "" {
		short := shortAddress(alert.WalletAddress)
		if whaleDisplay != short {
			whaleDisplay = fmt.Sprintf("%s (%s)", alert.WhaleName, short)
		}
	}

	tradeInfo := fmt.Sprintf("%.2f shares @ $%.3f", alert.Size, alert.Price)

	positionStr := "N/A"
	if alert.PositionSize > 0 {
		positionStr = fmt.Sprintf("%.2f shares @ $%.3f avg", alert.PositionSize, alert.PositionAvgPrice)
	} else if alert.HasPnl {
		pnlSign := "+"
		if alert.RealizedPnl < 0 {
			pnlSign = ""
		}
		positionStr = fmt.Sprintf("Closed\nRealized P&L: %s$%.2f", pnlSign, alert.RealizedPnl)
	}

	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "Whale",
			Value:  whaleDisplay,
			Inline: true,
		},
		{
			Name:   "Side",
			Value:  fmt.Sprintf("%s %s", sideEmoji, alert.Side),
			Inline: true,
		},
		{
			Name:   "Trade",
			Value:  tradeInfo,
			Inline: true,
		},
		{
			Name:   "Notional",
			Value:  fmt.Sprintf("$%.2f", alert.Notional),
			Inline: true,
		},
		{
			Name:   "Position After",
			Value:  positionStr,
			Inline: true,
		},
		{
			Name:   "Severity",
			Value:  alert.Severity,
			Inline: true,
		},
	}

	description := fmt.Sprintf("**Market %s**\nOutcome index: %d", alert.MarketID, alert.OutcomeIndex)

	pst, _ := time.LoadLocation("America/Los_Angeles")
	ts := alert.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	footerText := fmt.Sprintf("whaletracker * %s", ts.In(pst).Format("1/2/2006, 3:04:05PM (MST)"))

	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: footerText,
		},
		Timestamp: ts.Format(time.RFC3339),
	}
}

func buildEventTitle(eventType, severity string) string {
	var label string
	switch eventType {
	case "NEW_POSITION":
		label = "🆕 New Position"
	case "DOUBLE_DOWN":
		label = "📈 Doubling Down"
	case "EXIT":
		label = "🚪 Position Exit"
	case "REVERSAL":
		label = "🔄 Reversal"
	case "LARGE_TRADE":
		label = "🐋 Large Trade"
	default:
		label = "📊 Whale Activity"
	}
	if severity == "CRITICAL" {
		label = "🚨 " + label
	}
	return label
}

func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// Close shuts down the Discord session.
func (dc *DiscordClient) Close() error {
	if dc.session == nil {
		return nil
	}
	return dc.session.Close()
}
