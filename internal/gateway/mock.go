package gateway

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// MockClient logs actions instead of calling a platform API. IDs are
// "<platform>_<action>_<n>".
type MockClient struct {
	platform string
	seq      atomic.Int64
	logger   *zap.Logger
}

// NewMockClient creates a mock client for platform.
func NewMockClient(platform string, logger *zap.Logger) *MockClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockClient{platform: platform, logger: logger.With(zap.String("platform", platform))}
}

func (m *MockClient) Platform() string { return m.platform }

func (m *MockClient) Post(_ context.Context, p *Post) (string, error) {
	m.logger.Info("would post", zap.String("content", preview(p.Content)))
	return m.id("post"), nil
}

func (m *MockClient) Reply(_ context.Context, r *Reply) (string, error) {
	m.logger.Info("would reply", zap.String("comment", r.CommentID), zap.String("content", preview(r.Content)))
	return m.id("reply"), nil
}

func (m *MockClient) Interact(_ context.Context, in *Interaction) (string, error) {
	switch in.Kind {
	case InteractComment, InteractLike, InteractFollow:
	default:
		return "", fmt.Errorf("%w: %s %s", ErrUnsupported, m.platform, in.Kind)
	}
	m.logger.Info("would interact",
		zap.String("influencer", in.InfluencerID),
		zap.String("kind", string(in.Kind)))
	return m.id(string(in.Kind)), nil
}

func (m *MockClient) Close() error { return nil }

func (m *MockClient) id(action string) string {
	return fmt.Sprintf("%s_%s_%d", m.platform, action, m.seq.Add(1))
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= 50 {
		return s
	}
	return string(r[:50]) + "..."
}
