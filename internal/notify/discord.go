package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"betwatch/internal/config"
	"betwatch/internal/models"
)

// Discord sends alerts as rich embeds via a bot session. Without a token it
// degrades to log-only: Send succeeds with an empty delivery reference so
// alerts still drain in development.
type Discord struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
}

func NewDiscord(logger *zap.Logger, cfg config.DiscordConfig) *Discord {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Discord{logger: logger, channelID: cfg.ChannelID}

	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		logger.Warn("discord bot token not set, alerts will be logged only")
		return d
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return d
	}
	d.session = session
	logger.Info("discord notifier initialized", zap.String("channel_id", cfg.ChannelID))
	return d
}

func (d *Discord) Send(ctx context.Context, alert models.Alert, marketQuestion string) (string, error) {
	if d == nil {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if d.session == nil || d.channelID == "" {
		d.logger.Info("alert (log-only)",
			zap.Uint64("alert_id", alert.ID),
			zap.String("type", alert.AlertType),
			zap.String("severity", alert.Severity),
			zap.String("market_id", alert.MarketID),
		)
		return "", nil
	}

	embed := buildAlertEmbed(alert, marketQuestion)
	msg, err := d.session.ChannelMessageSendEmbed(d.channelID, embed)
	if err != nil {
		return "", fmt.Errorf("send discord embed: %w", err)
	}
	d.logger.Info("sent discord alert",
		zap.Uint64("alert_id", alert.ID),
		zap.String("severity", alert.Severity),
		zap.String("message_id", msg.ID),
	)
	return msg.ID, nil
}

func (d *Discord) Close() error {
	if d == nil || d.session == nil {
		return nil
	}
	return d.session.Close()
}

func severityColor(severity string) int {
	switch severity {
	case "critical":
		return 0xFF0000
	case "high":
		return 0xFF6B35
	case "medium":
		return 0xFFD700
	}
	return 0x4169E1
}

func alertTitle(alertType, severity string) string {
	emoji := "🔵"
	switch severity {
	case "critical":
		emoji = "🚨"
	case "high":
		emoji = "🔴"
	case "medium":
		emoji = "🟡"
	}
	words := strings.Split(alertType, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return fmt.Sprintf("%s %s [%s]", emoji, strings.Join(words, " "), strings.ToUpper(severity))
}

func buildAlertEmbed(alert models.Alert, marketQuestion string) *discordgo.MessageEmbed {
	description := marketQuestion
	if description == "" {
		description = alert.MarketID
	}

	fields := []*discordgo.MessageEmbedField{}
	var details struct {
		Address string  `json:"address"`
		Size    float64 `json:"size"`
		Price   float64 `json:"price"`
		Outcome string  `json:"outcome"`
	}
	if len(alert.Details) > 0 && json.Unmarshal(alert.Details, &details) == nil {
		if details.Address != "" {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name: "Address", Value: shortAddress(details.Address), Inline: true,
			})
		}
		if details.Size > 0 {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name: "Size", Value: fmt.Sprintf("$%.2f", details.Size), Inline: true,
			})
		}
		if details.Outcome != "" {
			value := details.Outcome
			if details.Price > 0 {
				value = fmt.Sprintf("%s @ $%.3f", details.Outcome, details.Price)
			}
			fields = append(fields, &discordgo.MessageEmbedField{
				Name: "Outcome", Value: value, Inline: true,
			})
		}
	}

	ts := alert.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &discordgo.MessageEmbed{
		Title:       alertTitle(alert.AlertType, alert.Severity),
		Description: description,
		Color:       severityColor(alert.Severity),
		Fields:      fields,
		Footer:      &discordgo.MessageEmbedFooter{Text: "betwatch"},
		Timestamp:   ts.Format(time.RFC3339),
	}
}

func shortAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-6:]
}
