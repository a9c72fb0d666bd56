package modules

import (
	"context"
	"sort"
	"sync"
)

// Module names looked up by the built-in handlers.
const (
	SocialMediaName  = "social_media"
	InfluencerName   = "influencer_interaction"
	CommentReplyName = "comment_reply"
	ContentName      = "content_generator"
)

// Poster publishes content. Registered as "social_media" or
// "<platform>_posting".
type Poster interface {
	PostContent(ctx context.Context, params map[string]any) (any, error)
}

// Interactor engages with influencers. Registered as
// "influencer_interaction" or "<platform>_interaction".
type Interactor interface {
	InteractWithInfluencer(ctx context.Context, params map[string]any) (any, error)
}

// Replier answers comments. Registered as "comment_reply" or
// "<platform>_commenting".
type Replier interface {
	ReplyToComment(ctx context.Context, params map[string]any) (any, error)
}

// ContentSource generates content. Registered as "content_generator".
type ContentSource interface {
	GenerateContent(ctx context.Context, params map[string]any) (any, error)
}

// Set is the named module table handed to task handlers.
type Set struct {
	mu      sync.RWMutex
	modules map[string]any
}

// NewSet creates an empty module set.
func NewSet() *Set {
	return &Set{modules: make(map[string]any)}
}

// Register adds or replaces a module.
func (s *Set) Register(name string, m any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[name] = m
}

// Lookup returns the module registered under name.
func (s *Set) Lookup(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.modules[name]
	return m, ok
}

// Names returns registered module names in sorted order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.modules))
	for n := range s.modules {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
