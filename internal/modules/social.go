package modules

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nidhogg/droid/internal/gateway"
)

// PostResult is returned by SocialMedia.PostContent.
type PostResult struct {
	Success  bool   `json:"success"`
	PostID   string `json:"post_id"`
	Platform string `json:"platform"`
}

// SocialMedia posts content through the gateway's platform clients.
type SocialMedia struct {
	gw     *gateway.Gateway
	log    interactionLog
	logger *zap.Logger
}

// NewSocialMedia creates the posting module. mem may be nil.
func NewSocialMedia(gw *gateway.Gateway, mem Memory, logger *zap.Logger) *SocialMedia {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SocialMedia{gw: gw, log: interactionLog{mem: mem}, logger: logger.With(zap.String("module", SocialMediaName))}
}

// PostContent publishes params["content"] and params["media_urls"] to
// params["platform"] (default twitter).
func (s *SocialMedia) PostContent(ctx context.Context, params map[string]any) (any, error) {
	platform := stringParam(params, "platform", "twitter")
	post := &gateway.Post{
		Content:     stringParam(params, "content", ""),
		ContentType: stringParam(params, "content_type", "text"),
		MediaURLs:   stringsParam(params, "media_urls"),
		Channel:     stringParam(params, "channel", ""),
	}
	if post.Content == "" && len(post.MediaURLs) == 0 {
		return nil, fmt.Errorf("%w: content or media_urls", ErrMissingParam)
	}

	client, err := s.gw.Client(platform)
	if err != nil {
		return nil, err
	}
	id, err := client.Post(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("post to %s: %w", platform, err)
	}
	s.logger.Info("posted content", zap.String("platform", platform), zap.String("post_id", id))

	if err := s.log.record(ctx, platform, "post", id, "create", post.Content); err != nil {
		s.logger.Warn("record post failed", zap.String("post_id", id), zap.Error(err))
	}
	return &PostResult{Success: true, PostID: id, Platform: platform}, nil
}

// PlatformPoster pins SocialMedia to one platform, for registration as
// "<platform>_posting".
type PlatformPoster struct {
	Platform string
	Social   *SocialMedia
}

func (p PlatformPoster) PostContent(ctx context.Context, params map[string]any) (any, error) {
	withPlatform := make(map[string]any, len(params)+1)
	for k, v := range params {
		withPlatform[k] = v
	}
	withPlatform["platform"] = p.Platform
	return p.Social.PostContent(ctx, withPlatform)
}
