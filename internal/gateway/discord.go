package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordClient posts through the Discord REST API. It does not open the
// gateway websocket.
type DiscordClient struct {
	session *discordgo.Session
	channel string
	logger  *zap.Logger
}

// NewDiscordClient creates a client authenticated with a bot token.
func NewDiscordClient(token, channel string, logger *zap.Logger) (*DiscordClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &DiscordClient{
		session: session,
		channel: channel,
		logger:  logger.With(zap.String("platform", "discord")),
	}, nil
}

func (d *DiscordClient) Platform() string { return "discord" }

func (d *DiscordClient) Post(ctx context.Context, p *Post) (string, error) {
	content := p.Content
	if len(p.MediaURLs) > 0 {
		content += "\n" + strings.Join(p.MediaURLs, "\n")
	}
	channel, err := d.pick(p.Channel)
	if err != nil {
		return "", err
	}
	msg, err := d.session.ChannelMessageSend(channel, content, discordgo.WithContext(ctx))
	if err != nil {
		d.logger.Error("discord send failed", zap.String("channel", channel), zap.Error(err))
		return "", fmt.Errorf("discord send: %w", err)
	}
	return msg.ID, nil
}

// Reply answers the comment message by reference.
func (d *DiscordClient) Reply(ctx context.Context, r *Reply) (string, error) {
	channel, err := d.pick(r.Channel)
	if err != nil {
		return "", err
	}
	ref := &discordgo.MessageReference{MessageID: r.CommentID, ChannelID: channel}
	msg, err := d.session.ChannelMessageSendReply(channel, r.Content, ref, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord reply: %w", err)
	}
	return msg.ID, nil
}

func (d *DiscordClient) Interact(ctx context.Context, in *Interaction) (string, error) {
	switch in.Kind {
	case InteractComment:
		if in.PostID == "" {
			return d.Post(ctx, &Post{Content: in.Content, Channel: in.Channel})
		}
		return d.Reply(ctx, &Reply{CommentID: in.PostID, Content: in.Content, Channel: in.Channel})
	case InteractLike:
		channel, err := d.pick(in.Channel)
		if err != nil {
			return "", err
		}
		if err := d.session.MessageReactionAdd(channel, in.PostID, "👍", discordgo.WithContext(ctx)); err != nil {
			return "", fmt.Errorf("discord reaction: %w", err)
		}
		return in.PostID, nil
	default:
		return "", fmt.Errorf("%w: discord %s", ErrUnsupported, in.Kind)
	}
}

// Close shuts down the Discord session.
func (d *DiscordClient) Close() error {
	return d.session.Close()
}

func (d *DiscordClient) pick(channel string) (string, error) {
	if channel != "" {
		return channel, nil
	}
	if d.channel == "" {
		return "", fmt.Errorf("discord send: no channel")
	}
	return d.channel, nil
}
