package modules

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nidhogg/droid/internal/gateway"
)

const defaultComment = "Great post! 👍"

// InteractionResult is returned by InfluencerInteraction.
type InteractionResult struct {
	Success       bool   `json:"success"`
	InteractionID string `json:"interaction_id"`
	Platform      string `json:"platform"`
	Content       string `json:"content,omitempty"`
}

// InfluencerInteraction comments on, likes or follows influencers.
// Comments are generated when none is given.
type InfluencerInteraction struct {
	gw     *gateway.Gateway
	models ModelRunner
	model  string
	log    interactionLog
	logger *zap.Logger
}

// NewInfluencerInteraction creates the interaction module.
func NewInfluencerInteraction(gw *gateway.Gateway, models ModelRunner, model string, mem Memory, logger *zap.Logger) *InfluencerInteraction {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InfluencerInteraction{
		gw:     gw,
		models: models,
		model:  model,
		log:    interactionLog{mem: mem},
		logger: logger.With(zap.String("module", InfluencerName)),
	}
}

func (m *InfluencerInteraction) InteractWithInfluencer(ctx context.Context, params map[string]any) (any, error) {
	influencer, err := requireString(params, "influencer_id")
	if err != nil {
		return nil, err
	}
	platform := stringParam(params, "platform", "twitter")
	in := &gateway.Interaction{
		InfluencerID: influencer,
		Kind:         gateway.InteractionKind(stringParam(params, "interaction_type", string(gateway.InteractComment))),
		Content:      stringParam(params, "content", ""),
		PostID:       stringParam(params, "post_id", ""),
		Channel:      stringParam(params, "channel", ""),
	}

	client, err := m.gw.Client(platform)
	if err != nil {
		return nil, err
	}
	if in.Kind == gateway.InteractComment && in.Content == "" {
		in.Content = m.comment(ctx, platform, influencer, stringParam(params, "post_content", ""))
	}

	id, err := client.Interact(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("interact on %s: %w", platform, err)
	}
	if err := m.log.record(ctx, platform, "influencer", influencer, string(in.Kind), in.Content); err != nil {
		m.logger.Warn("record interaction failed", zap.String("influencer", influencer), zap.Error(err))
	}
	return &InteractionResult{Success: true, InteractionID: id, Platform: platform, Content: in.Content}, nil
}

func (m *InfluencerInteraction) comment(ctx context.Context, platform, influencer, postContent string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate an engaging and authentic comment for an influencer's post on %s.\n\n", platform)
	if postContent != "" {
		fmt.Fprintf(&b, "Post content: %s\n\n", postContent)
	}
	prev, err := m.log.recent(ctx, platform, "influencer", influencer, 5)
	if err != nil {
		m.logger.Warn("load previous interactions failed", zap.Error(err))
	}
	if len(prev) > 0 {
		b.WriteString("Previous interactions with this influencer:\n")
		for _, p := range prev {
			fmt.Fprintf(&b, "- %s: %s\n", p.Kind, p.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString("The comment should be friendly, relevant to the post content, and not overly promotional. ")
	b.WriteString("It should sound natural and conversational, as if written by a real person. ")
	b.WriteString("Keep it concise (1-2 sentences) and include an appropriate emoji if relevant.")

	out, err := generate(ctx, m.models, m.model, b.String(), defaultComment)
	if err != nil {
		m.logger.Error("generate comment failed", zap.Error(err))
	}
	return out
}
