package modules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/droid/internal/memory"
)

// InteractionCategory holds platform interactions in the memory store.
const InteractionCategory = "interactions"

// Memory is the subset of memory.Store the modules use.
type Memory interface {
	Add(ctx context.Context, category, key, value string) error
	List(ctx context.Context, category string) ([]memory.Item, error)
}

// ModelRunner runs a named model.
type ModelRunner interface {
	Run(ctx context.Context, name, prompt string) (string, error)
}

// Interaction is a recorded action against a platform entity.
type Interaction struct {
	Kind    string    `json:"interaction_type"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// interactionLog records interactions under keys of the form
// platform/entity_type/entity_id/unixnano/kind, so List order is time order.
type interactionLog struct {
	mem Memory
}

func entityPrefix(platform, entityType, entityID string) string {
	return fmt.Sprintf("%s/%s/%s/", platform, entityType, entityID)
}

func (l interactionLog) record(ctx context.Context, platform, entityType, entityID, kind, content string) error {
	if l.mem == nil {
		return nil
	}
	key := fmt.Sprintf("%s%020d/%s", entityPrefix(platform, entityType, entityID), time.Now().UnixNano(), kind)
	return l.mem.Add(ctx, InteractionCategory, key, content)
}

func (l interactionLog) recent(ctx context.Context, platform, entityType, entityID string, limit int) ([]Interaction, error) {
	if l.mem == nil {
		return nil, nil
	}
	items, err := l.mem.List(ctx, InteractionCategory)
	if err != nil {
		return nil, err
	}
	prefix := entityPrefix(platform, entityType, entityID)
	var out []Interaction
	for _, it := range items {
		if !strings.HasPrefix(it.Key, prefix) {
			continue
		}
		kind := it.Key[strings.LastIndex(it.Key, "/")+1:]
		out = append(out, Interaction{Kind: kind, Content: it.Value, At: it.CreatedAt})
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// generate runs model and trims surrounding quotes. It returns fallback when
// no runner is set or generation fails.
func generate(ctx context.Context, models ModelRunner, model, prompt, fallback string) (string, error) {
	if models == nil {
		return fallback, nil
	}
	out, err := models.Run(ctx, model, prompt)
	if err != nil {
		return fallback, err
	}
	out = strings.TrimSpace(out)
	if len(out) >= 2 && strings.HasPrefix(out, `"`) && strings.HasSuffix(out, `"`) {
		out = out[1 : len(out)-1]
	}
	if out == "" {
		return fallback, nil
	}
	return out, nil
}
