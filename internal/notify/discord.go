package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordNotifier posts notices to a Discord channel over the REST API. It
// never opens the gateway websocket.
type DiscordNotifier struct {
	session *discordgo.Session
	channel string
	logger  *zap.Logger
}

// NewDiscordNotifier creates a Discord notifier with a bot token.
func NewDiscordNotifier(token, channel string, logger *zap.Logger) (*DiscordNotifier, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &DiscordNotifier{session: session, channel: channel, logger: logger}, nil
}

func (d *DiscordNotifier) Platform() string { return "discord" }

// Notify posts n to the configured channel.
func (d *DiscordNotifier) Notify(ctx context.Context, n *Notice) error {
	if _, err := d.session.ChannelMessageSend(d.channel, discordText(n), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	d.logger.Debug("discord notice sent", zap.String("channel", d.channel), zap.String("run", n.RunID))
	return nil
}

// Close releases the session.
func (d *DiscordNotifier) Close() error {
	return d.session.Close()
}

func discordText(n *Notice) string {
	return fmt.Sprintf("**%s**\n%s", n.Title, n.Text)
}
