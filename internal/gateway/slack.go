package gateway

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// SlackClient posts to Slack channels with the bot token.
type SlackClient struct {
	client  *slack.Client
	channel string
	logger  *zap.Logger
}

// NewSlackClient creates a Slack client. channel is used when a request
// names none. apiURL overrides the Slack API base and may be empty.
func NewSlackClient(botToken, channel, apiURL string, logger *zap.Logger) *SlackClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts []slack.Option
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &SlackClient{
		client:  slack.New(botToken, opts...),
		channel: channel,
		logger:  logger.With(zap.String("platform", "slack")),
	}
}

func (s *SlackClient) Platform() string { return "slack" }

func (s *SlackClient) Post(ctx context.Context, p *Post) (string, error) {
	text := p.Content
	for _, u := range p.MediaURLs {
		text += "\n" + u
	}
	return s.send(ctx, s.pick(p.Channel), slack.MsgOptionText(text, false))
}

// Reply answers in the comment's thread. CommentID is the message timestamp.
func (s *SlackClient) Reply(ctx context.Context, r *Reply) (string, error) {
	return s.send(ctx, s.pick(r.Channel),
		slack.MsgOptionText(r.Content, false),
		slack.MsgOptionTS(r.CommentID))
}

// Interact comments in the post's thread or reacts to it. PostID is the
// message timestamp.
func (s *SlackClient) Interact(ctx context.Context, in *Interaction) (string, error) {
	channel := s.pick(in.Channel)
	switch in.Kind {
	case InteractComment:
		opts := []slack.MsgOption{slack.MsgOptionText(in.Content, false)}
		if in.PostID != "" {
			opts = append(opts, slack.MsgOptionTS(in.PostID))
		}
		return s.send(ctx, channel, opts...)
	case InteractLike:
		if in.PostID == "" {
			return "", fmt.Errorf("slack like: post_id required")
		}
		ref := slack.NewRefToMessage(channel, in.PostID)
		if err := s.client.AddReactionContext(ctx, "thumbsup", ref); err != nil {
			return "", fmt.Errorf("slack reaction: %w", err)
		}
		return in.PostID, nil
	default:
		return "", fmt.Errorf("%w: slack %s", ErrUnsupported, in.Kind)
	}
}

func (s *SlackClient) Close() error { return nil }

func (s *SlackClient) pick(channel string) string {
	if channel != "" {
		return channel
	}
	return s.channel
}

func (s *SlackClient) send(ctx context.Context, channel string, opts ...slack.MsgOption) (string, error) {
	if channel == "" {
		return "", fmt.Errorf("slack send: no channel")
	}
	_, ts, err := s.client.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		s.logger.Error("slack send failed", zap.String("channel", channel), zap.Error(err))
		return "", fmt.Errorf("slack send: %w", err)
	}
	return ts, nil
}
