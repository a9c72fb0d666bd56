package modules

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nidhogg/droid/internal/gateway"
)

const defaultReply = "Thanks for your comment! 👍"

// ReplyResult is returned by CommentReply.ReplyToComment.
type ReplyResult struct {
	Success  bool   `json:"success"`
	ReplyID  string `json:"reply_id"`
	Platform string `json:"platform"`
	Content  string `json:"content"`
}

// CommentReply answers comments, generating the reply when none is given.
type CommentReply struct {
	gw     *gateway.Gateway
	models ModelRunner
	model  string
	log    interactionLog
	logger *zap.Logger
}

// NewCommentReply creates the comment module.
func NewCommentReply(gw *gateway.Gateway, models ModelRunner, model string, mem Memory, logger *zap.Logger) *CommentReply {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentReply{
		gw:     gw,
		models: models,
		model:  model,
		log:    interactionLog{mem: mem},
		logger: logger.With(zap.String("module", CommentReplyName)),
	}
}

func (m *CommentReply) ReplyToComment(ctx context.Context, params map[string]any) (any, error) {
	commentID, err := requireString(params, "comment_id")
	if err != nil {
		return nil, err
	}
	platform := stringParam(params, "platform", "twitter")
	client, err := m.gw.Client(platform)
	if err != nil {
		return nil, err
	}

	content := stringParam(params, "content", "")
	if content == "" {
		comment := stringParam(params, "comment", "")
		if comment == "" {
			return nil, fmt.Errorf("%w: content or comment", ErrMissingParam)
		}
		content = m.reply(ctx, platform, commentID, comment, stringParam(params, "tone", "friendly"))
	}

	id, err := client.Reply(ctx, &gateway.Reply{
		CommentID: commentID,
		PostID:    stringParam(params, "post_id", ""),
		Content:   content,
		Channel:   stringParam(params, "channel", ""),
	})
	if err != nil {
		return nil, fmt.Errorf("reply on %s: %w", platform, err)
	}
	if err := m.log.record(ctx, platform, "comment", commentID, "reply", content); err != nil {
		m.logger.Warn("record reply failed", zap.String("comment", commentID), zap.Error(err))
	}
	return &ReplyResult{Success: true, ReplyID: id, Platform: platform, Content: content}, nil
}

func (m *CommentReply) reply(ctx context.Context, platform, commentID, comment, tone string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a %s reply to the following comment on %s:\n\n", tone, platform)
	fmt.Fprintf(&b, "Comment: %s\n\n", comment)
	prev, err := m.log.recent(ctx, platform, "comment", commentID, 5)
	if err != nil {
		m.logger.Warn("load previous interactions failed", zap.Error(err))
	}
	if len(prev) > 0 {
		b.WriteString("Previous interactions with this comment:\n")
		for _, p := range prev {
			fmt.Fprintf(&b, "- %s: %s\n", p.Kind, p.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "The reply should be %s, relevant to the comment, and not overly promotional. ", tone)
	b.WriteString("It should sound natural and conversational, as if written by a real person. ")
	b.WriteString("Keep it concise (1-2 sentences) and include an appropriate emoji if relevant.")

	out, err := generate(ctx, m.models, m.model, b.String(), defaultReply)
	if err != nil {
		m.logger.Error("generate reply failed", zap.Error(err))
	}
	return out
}
