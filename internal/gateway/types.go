package gateway

import (
	"context"
	"errors"
)

// ErrUnsupported is returned when a platform cannot perform an action.
var ErrUnsupported = errors.New("action not supported by platform")

// Client publishes to one social platform.
type Client interface {
	Platform() string
	Post(ctx context.Context, p *Post) (string, error)
	Reply(ctx context.Context, r *Reply) (string, error)
	Interact(ctx context.Context, in *Interaction) (string, error)
	Close() error
}

// Post is outbound content for a platform.
type Post struct {
	Content     string   `json:"content"`
	ContentType string   `json:"content_type"`
	MediaURLs   []string `json:"media_urls,omitempty"`
	Channel     string   `json:"channel,omitempty"`
}

// Reply answers a comment.
type Reply struct {
	CommentID string `json:"comment_id"`
	PostID    string `json:"post_id,omitempty"`
	Content   string `json:"content"`
	Channel   string `json:"channel,omitempty"`
}

// InteractionKind is what to do with an influencer's content.
type InteractionKind string

const (
	InteractComment InteractionKind = "comment"
	InteractLike    InteractionKind = "like"
	InteractFollow  InteractionKind = "follow"
)

// Interaction targets an influencer or one of their posts.
type Interaction struct {
	InfluencerID string          `json:"influencer_id"`
	Kind         InteractionKind `json:"interaction_type"`
	Content      string          `json:"content,omitempty"`
	PostID       string          `json:"post_id,omitempty"`
	Channel      string          `json:"channel,omitempty"`
}
