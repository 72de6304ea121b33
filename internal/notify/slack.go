package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// SlackNotifier posts notices to a Slack channel with a bot token.
type SlackNotifier struct {
	client  *slack.Client
	channel string
	logger  *zap.Logger
}

// NewSlackNotifier creates a Slack notifier. Options are passed to the
// underlying client.
func NewSlackNotifier(botToken, channel string, logger *zap.Logger, opts ...slack.Option) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(botToken, opts...),
		channel: channel,
		logger:  logger,
	}
}

func (s *SlackNotifier) Platform() string { return "slack" }

// Notify posts n to the configured channel.
func (s *SlackNotifier) Notify(ctx context.Context, n *Notice) error {
	text := fmt.Sprintf("*%s*\n%s", n.Title, n.Text)
	_, _, err := s.client.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionUsername("Agency Studio"),
	)
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	s.logger.Debug("slack notice sent", zap.String("channel", s.channel), zap.String("run", n.RunID))
	return nil
}
