package modules

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nidhogg/droid/internal/config"
	"github.com/nidhogg/droid/internal/gateway"
)

// DefaultImageModel is used when no diffusion model is configured.
const DefaultImageModel = "stable-diffusion-xl"

// Build assembles the platform gateway and the module set from
// configuration. mem may be nil.
func Build(cfg *config.Config, models ModelRunner, mem Memory, logger *zap.Logger) (*Set, *gateway.Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	gw := gateway.NewGateway(logger)
	for _, p := range cfg.Platforms.Mock {
		gw.Register(gateway.NewMockClient(p, logger))
	}

	var live []string
	if sc := cfg.Platforms.Slack; sc.Enabled {
		if sc.BotToken == "" {
			return nil, nil, fmt.Errorf("slack: bot_token is required")
		}
		gw.Register(gateway.NewSlackClient(sc.BotToken, sc.Channel, sc.APIURL, logger))
		live = append(live, "slack")
	}
	if dc := cfg.Platforms.Discord; dc.Enabled {
		client, err := gateway.NewDiscordClient(dc.BotToken, dc.Channel, logger)
		if err != nil {
			gw.Close()
			return nil, nil, fmt.Errorf("discord: %w", err)
		}
		gw.Register(client)
		live = append(live, "discord")
	}

	textModel := cfg.DefaultModel
	imageModel := DefaultImageModel
	for _, mc := range cfg.Models {
		if mc.Type == "diffusion" {
			imageModel = mc.Name
			break
		}
	}

	social := NewSocialMedia(gw, mem, logger)
	set := NewSet()
	set.Register(SocialMediaName, social)
	set.Register(InfluencerName, NewInfluencerInteraction(gw, models, textModel, mem, logger))
	set.Register(CommentReplyName, NewCommentReply(gw, models, textModel, mem, logger))
	set.Register(ContentName, NewContentGenerator(models, textModel, imageModel, mem, logger))
	for _, p := range live {
		set.Register(p+"_posting", PlatformPoster{Platform: p, Social: social})
	}

	logger.Info("modules ready",
		zap.Strings("modules", set.Names()),
		zap.Strings("platforms", gw.Platforms()))
	return set, gw, nil
}
