package modules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nidhogg/droid/internal/crew"
	"github.com/nidhogg/droid/internal/orchestrator"
)

// ErrNoModule is returned when no module can serve a task.
var ErrNoModule = errors.New("no suitable module")

// Built-in task names.
const (
	TaskPostContent  = "post_content"
	TaskInteract     = "interact_with_influencer"
	TaskReplyComment = "reply_to_comment"
	TaskGenerate     = "generate_content"
	TaskRunCrew      = "run_crew"
)

type builtins struct {
	crewObserver crew.Observer
	logger       *zap.Logger
}

// BuiltinOption configures RegisterBuiltins.
type BuiltinOption func(*builtins)

// WithCrewObserver reports run_crew work items.
func WithCrewObserver(o crew.Observer) BuiltinOption {
	return func(b *builtins) { b.crewObserver = o }
}

// WithHandlerLogger sets the logger passed to crews built by run_crew.
func WithHandlerLogger(l *zap.Logger) BuiltinOption {
	return func(b *builtins) { b.logger = l }
}

// RegisterBuiltins installs the built-in task handlers.
func RegisterBuiltins(reg *orchestrator.Registry, opts ...BuiltinOption) {
	b := &builtins{logger: zap.NewNop()}
	for _, o := range opts {
		o(b)
	}
	reg.Register(TaskPostContent, postContent)
	reg.Register(TaskInteract, interactWithInfluencer)
	reg.Register(TaskReplyComment, replyToComment)
	reg.Register(TaskGenerate, generateContent)
	reg.Register(TaskRunCrew, b.runCrew)
}

// find returns the first module under names that implements T.
func find[T any](set orchestrator.ModuleSet, names ...string) (T, bool) {
	var zero T
	if set == nil {
		return zero, false
	}
	for _, n := range names {
		if m, ok := set.Lookup(n); ok {
			if t, ok := m.(T); ok {
				return t, true
			}
		}
	}
	return zero, false
}

func postContent(ctx context.Context, params map[string]any, env orchestrator.Env) (any, error) {
	platform := stringParam(params, "platform", "default")
	p, ok := find[Poster](env.Modules, platform+"_posting", SocialMediaName)
	if !ok {
		return nil, fmt.Errorf("%w for posting to %s", ErrNoModule, platform)
	}
	return p.PostContent(ctx, params)
}

func interactWithInfluencer(ctx context.Context, params map[string]any, env orchestrator.Env) (any, error) {
	if _, err := requireString(params, "influencer_id"); err != nil {
		return nil, err
	}
	platform := stringParam(params, "platform", "default")
	m, ok := find[Interactor](env.Modules, platform+"_interaction", InfluencerName)
	if !ok {
		return nil, fmt.Errorf("%w for interacting on %s", ErrNoModule, platform)
	}
	return m.InteractWithInfluencer(ctx, params)
}

func replyToComment(ctx context.Context, params map[string]any, env orchestrator.Env) (any, error) {
	if _, err := requireString(params, "comment_id"); err != nil {
		return nil, err
	}
	platform := stringParam(params, "platform", "default")
	m, ok := find[Replier](env.Modules, platform+"_commenting", CommentReplyName)
	if !ok {
		return nil, fmt.Errorf("%w for replying on %s", ErrNoModule, platform)
	}
	return m.ReplyToComment(ctx, params)
}

func generateContent(ctx context.Context, params map[string]any, env orchestrator.Env) (any, error) {
	contentType := stringParam(params, "content_type", "text")
	names := []string{ContentName}
	switch contentType {
	case "meme", "gif", "image":
		names = append([]string{contentType + "_generator"}, names...)
	}
	m, ok := find[ContentSource](env.Modules, names...)
	if !ok {
		return nil, fmt.Errorf("%w for generating %s", ErrNoModule, contentType)
	}
	return m.GenerateContent(ctx, params)
}

// CrewRunResult is returned by the run_crew task.
type CrewRunResult struct {
	CrewID  string             `json:"crew_id"`
	Process crew.Process       `json:"process"`
	Status  crew.Status        `json:"status"`
	Results map[string]string  `json:"results"`
	Items   []CrewItemResult   `json:"items"`
	Memory  []crew.MemoryEntry `json:"memory,omitempty"`
}

// CrewItemResult reports one work item.
type CrewItemResult struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Agent       string      `json:"agent"`
	Status      crew.Status `json:"status"`
	Result      string      `json:"result"`
}

// runCrew builds a crew from params["definition"] (YAML/JSON text or an
// object), the predefined crew named by params["crew"], or params["path"],
// and runs it with params["inputs"].
func (b *builtins) runCrew(ctx context.Context, params map[string]any, env orchestrator.Env) (any, error) {
	def, err := definitionParam(params)
	if err != nil {
		return nil, err
	}

	binding := crew.Binding{
		Tools:    Tools(env.Modules),
		Observer: b.crewObserver,
		Logger:   b.logger,
	}
	if env.Models != nil {
		binding.Models = env.Models
	}
	if env.Memory != nil {
		binding.Memory = env.Memory
	}
	c, err := def.Build(binding)
	if err != nil {
		return nil, err
	}

	inputs, _ := params["inputs"].(map[string]any)
	results, err := c.Run(ctx, inputs)
	if err != nil {
		return nil, err
	}
	return summarize(c, results), nil
}

func summarize(c *crew.Crew, results map[string]string) *CrewRunResult {
	out := &CrewRunResult{
		CrewID:  c.ID,
		Process: c.Process,
		Status:  c.Status,
		Results: results,
		Memory:  c.Memory(),
	}
	for _, it := range c.Items {
		role := ""
		if it.Agent != nil {
			role = it.Agent.Role
		}
		out.Items = append(out.Items, CrewItemResult{
			ID:          it.ID,
			Description: it.Description,
			Agent:       role,
			Status:      it.Status,
			Result:      it.Result,
		})
	}
	return out
}

func definitionParam(params map[string]any) (*crew.Definition, error) {
	switch v := params["definition"].(type) {
	case string:
		return crew.ParseDefinition([]byte(v))
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode crew definition: %w", err)
		}
		return crew.ParseDefinition(data)
	case *crew.Definition:
		return v, nil
	}
	if name := stringParam(params, "crew", ""); name != "" {
		return crew.Predefined(name)
	}
	if path := stringParam(params, "path", ""); path != "" {
		return crew.LoadDefinition(path)
	}
	return nil, fmt.Errorf("%w: definition, crew or path", ErrMissingParam)
}

// Tools exposes modules as crew tools named after the task they perform.
func Tools(set orchestrator.ModuleSet) map[string]*crew.Tool {
	tools := make(map[string]*crew.Tool)
	if p, ok := find[Poster](set, SocialMediaName); ok {
		tools[TaskPostContent] = crew.NewTool(TaskPostContent, "Publish text to a social media platform",
			func(ctx context.Context, input string) (string, error) {
				res, err := p.PostContent(ctx, map[string]any{"content": input})
				if err != nil {
					return "", err
				}
				return describe(res), nil
			})
	}
	if g, ok := find[ContentSource](set, ContentName); ok {
		tools[TaskGenerate] = crew.NewTool(TaskGenerate, "Generate text content from a prompt",
			func(ctx context.Context, input string) (string, error) {
				res, err := g.GenerateContent(ctx, map[string]any{"prompt": input})
				if err != nil {
					return "", err
				}
				return describe(res), nil
			})
	}
	return tools
}

func describe(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
