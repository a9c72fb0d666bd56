package modules

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nidhogg/droid/internal/config"
	"github.com/nidhogg/droid/internal/crew"
	"github.com/nidhogg/droid/internal/memory"
	"github.com/nidhogg/droid/internal/orchestrator"
)

// fakeModels answers every prompt with reply, or fails when err is set.
type fakeModels struct {
	mu      sync.Mutex
	reply   string
	err     error
	known   map[string]bool
	prompts []string
	names   []string
}

func (f *fakeModels) HasModel(name string) bool { return f.known[name] }

func (f *fakeModels) DefaultName() string { return "llama-3.1" }

func (f *fakeModels) Run(_ context.Context, name, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeModels) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type posterFunc func(ctx context.Context, params map[string]any) (any, error)

func (f posterFunc) PostContent(ctx context.Context, params map[string]any) (any, error) {
	return f(ctx, params)
}

type fixture struct {
	set    *Set
	mem    *memory.Local
	models *fakeModels
	sched  *orchestrator.Scheduler
}

func newFixture(t *testing.T, reply string) *fixture {
	t.Helper()
	cfg := config.Default()
	mem := memory.NewLocal()
	models := &fakeModels{reply: reply, known: map[string]bool{"llama-3.1": true}}

	set, gw, err := Build(cfg, models, mem, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { gw.Close() })

	reg := orchestrator.NewRegistry(nil)
	RegisterBuiltins(reg)
	env := orchestrator.Env{Modules: set, Models: models, Memory: mem}
	return &fixture{
		set:    set,
		mem:    mem,
		models: models,
		sched:  orchestrator.NewScheduler(reg, env, nil),
	}
}

func (f *fixture) submit(t *testing.T, name string, params map[string]any) (any, error) {
	t.Helper()
	res, err := f.sched.Submit(context.Background(), name, params)
	return res.Value, err
}

func TestBuildRegistersModules(t *testing.T) {
	f := newFixture(t, "ok")
	want := []string{CommentReplyName, ContentName, InfluencerName, SocialMediaName}
	got := f.set.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("modules = %v, want %v", got, want)
	}
}

func TestBuildSlackRequiresToken(t *testing.T) {
	cfg := config.Default()
	cfg.Platforms.Slack.Enabled = true
	if _, _, err := Build(cfg, &fakeModels{}, nil, nil); err == nil {
		t.Fatal("expected error for slack without token")
	}
}

func TestBuildLivePlatformPoster(t *testing.T) {
	cfg := config.Default()
	cfg.Platforms.Slack = config.SlackConfig{Enabled: true, BotToken: "xoxb-test", Channel: "C1"}
	set, gw, err := Build(cfg, &fakeModels{}, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer gw.Close()
	m, ok := set.Lookup("slack_posting")
	if !ok {
		t.Fatal("slack_posting not registered")
	}
	if p, ok := m.(PlatformPoster); !ok || p.Platform != "slack" {
		t.Fatalf("slack_posting = %#v", m)
	}
}

func TestPostContent(t *testing.T) {
	f := newFixture(t, "")
	v, err := f.submit(t, TaskPostContent, map[string]any{
		"platform": "twitter",
		"content":  "hello world",
	})
	if err != nil {
		t.Fatalf("post_content: %v", err)
	}
	res := v.(*PostResult)
	if !res.Success || res.PostID != "twitter_post_1" || res.Platform != "twitter" {
		t.Fatalf("result = %+v", res)
	}

	items, _ := f.mem.List(context.Background(), InteractionCategory)
	if len(items) != 1 || items[0].Value != "hello world" {
		t.Fatalf("interactions = %+v", items)
	}
	if !strings.HasPrefix(items[0].Key, "twitter/post/twitter_post_1/") || !strings.HasSuffix(items[0].Key, "/create") {
		t.Fatalf("key = %q", items[0].Key)
	}
}

func TestPostContentDefaultsToTwitter(t *testing.T) {
	f := newFixture(t, "")
	v, err := f.submit(t, TaskPostContent, map[string]any{"content": "hi"})
	if err != nil {
		t.Fatalf("post_content: %v", err)
	}
	if got := v.(*PostResult).Platform; got != "twitter" {
		t.Fatalf("platform = %q", got)
	}
}

func TestPostContentPrefersPlatformModule(t *testing.T) {
	f := newFixture(t, "")
	var got map[string]any
	f.set.Register("custom_posting", posterFunc(func(_ context.Context, params map[string]any) (any, error) {
		got = params
		return "custom", nil
	}))

	v, err := f.submit(t, TaskPostContent, map[string]any{"platform": "custom", "content": "x"})
	if err != nil {
		t.Fatalf("post_content: %v", err)
	}
	if v != "custom" || got["content"] != "x" {
		t.Fatalf("value = %v, params = %v", v, got)
	}
}

func TestPostContentErrors(t *testing.T) {
	f := newFixture(t, "")
	if _, err := f.submit(t, TaskPostContent, map[string]any{"platform": "twitter"}); !errors.Is(err, ErrMissingParam) {
		t.Fatalf("missing content: err = %v", err)
	}
	if _, err := f.submit(t, TaskPostContent, map[string]any{"platform": "myspace", "content": "x"}); err == nil {
		t.Fatal("expected error for unconfigured platform")
	}
}

func TestHandlersWithoutModules(t *testing.T) {
	reg := orchestrator.NewRegistry(nil)
	RegisterBuiltins(reg)
	s := orchestrator.NewScheduler(reg, orchestrator.Env{}, nil)
	_, err := s.Submit(context.Background(), TaskPostContent, map[string]any{"content": "x"})
	if !errors.Is(err, ErrNoModule) {
		t.Fatalf("err = %v, want ErrNoModule", err)
	}
}

func TestInteractGeneratesComment(t *testing.T) {
	f := newFixture(t, `  "Love this!"  `)
	params := map[string]any{
		"platform":      "instagram",
		"influencer_id": "alice",
		"post_content":  "sunset photo",
	}
	v, err := f.submit(t, TaskInteract, params)
	if err != nil {
		t.Fatalf("interact: %v", err)
	}
	res := v.(*InteractionResult)
	if res.Content != "Love this!" || res.InteractionID != "instagram_comment_1" {
		t.Fatalf("result = %+v", res)
	}
	if p := f.models.lastPrompt(); !strings.Contains(p, "Post content: sunset photo") || strings.Contains(p, "Previous interactions") {
		t.Fatalf("first prompt = %q", p)
	}

	if _, err := f.submit(t, TaskInteract, params); err != nil {
		t.Fatalf("second interact: %v", err)
	}
	if p := f.models.lastPrompt(); !strings.Contains(p, "- comment: Love this!") {
		t.Fatalf("second prompt lacks history: %q", p)
	}
}

func TestInteractLikeSkipsGeneration(t *testing.T) {
	f := newFixture(t, "unused")
	v, err := f.submit(t, TaskInteract, map[string]any{
		"platform":         "twitter",
		"influencer_id":    "bob",
		"interaction_type": "like",
	})
	if err != nil {
		t.Fatalf("interact: %v", err)
	}
	if v.(*InteractionResult).InteractionID != "twitter_like_1" {
		t.Fatalf("result = %+v", v)
	}
	if len(f.models.prompts) != 0 {
		t.Fatalf("unexpected generation: %v", f.models.prompts)
	}
}

func TestInteractRequiresInfluencer(t *testing.T) {
	f := newFixture(t, "")
	if _, err := f.submit(t, TaskInteract, map[string]any{}); !errors.Is(err, ErrMissingParam) {
		t.Fatalf("err = %v", err)
	}
}

func TestReplyFallback(t *testing.T) {
	f := newFixture(t, "")
	f.models.err = errors.New("model down")
	v, err := f.submit(t, TaskReplyComment, map[string]any{
		"platform":   "facebook",
		"comment_id": "c1",
		"comment":    "Nice!",
		"tone":       "witty",
	})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	res := v.(*ReplyResult)
	if res.Content != defaultReply || res.ReplyID != "facebook_reply_1" {
		t.Fatalf("result = %+v", res)
	}
	if p := f.models.lastPrompt(); !strings.HasPrefix(p, "Generate a witty reply") {
		t.Fatalf("prompt = %q", p)
	}
}

func TestReplyErrors(t *testing.T) {
	f := newFixture(t, "")
	if _, err := f.submit(t, TaskReplyComment, map[string]any{"comment": "x"}); !errors.Is(err, ErrMissingParam) {
		t.Fatalf("missing comment_id: err = %v", err)
	}
	if _, err := f.submit(t, TaskReplyComment, map[string]any{"comment_id": "c1"}); !errors.Is(err, ErrMissingParam) {
		t.Fatalf("missing content: err = %v", err)
	}
}

func TestGenerateText(t *testing.T) {
	f := newFixture(t, "a poem")
	v, err := f.submit(t, TaskGenerate, map[string]any{"prompt": "write a poem"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	res := v.(*ContentResult)
	if res.Output != "a poem" || res.Model != "llama-3.1" || res.Type != "text" {
		t.Fatalf("result = %+v", res)
	}
	it, err := f.mem.Get(context.Background(), ContentCategory, res.ContentID)
	if err != nil {
		t.Fatalf("stored content: %v", err)
	}
	if !strings.Contains(it.Value, `"output":"a poem"`) {
		t.Fatalf("stored value = %s", it.Value)
	}
}

func TestGenerateImageUsesDiffusionModel(t *testing.T) {
	f := newFixture(t, "img")
	if _, err := f.submit(t, TaskGenerate, map[string]any{"content_type": "image", "prompt": "a cat"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := f.models.names[len(f.models.names)-1]; got != DefaultImageModel {
		t.Fatalf("model = %q", got)
	}
}

func TestGenerateEnhance(t *testing.T) {
	f := newFixture(t, "better prompt")
	v, err := f.submit(t, TaskGenerate, map[string]any{"prompt": "cat", "enhance": true})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := v.(*ContentResult).Prompt; got != "better prompt" {
		t.Fatalf("prompt = %q", got)
	}
	if len(f.models.prompts) != 2 || !strings.Contains(f.models.prompts[0], "'cat'") {
		t.Fatalf("prompts = %v", f.models.prompts)
	}
}

func TestGenerateMeme(t *testing.T) {
	f := newFixture(t, "When the build passes\n\nOn the first try\nextra line")
	v, err := f.submit(t, TaskGenerate, map[string]any{"content_type": "meme", "topic": "ci"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	res := v.(*ContentResult)
	if len(res.Parts) != 2 || res.Parts[0] != "When the build passes" || res.Parts[1] != "On the first try" {
		t.Fatalf("parts = %q", res.Parts)
	}

	f.models.err = errors.New("down")
	v, err = f.submit(t, TaskGenerate, map[string]any{"content_type": "meme", "topic": "ci"})
	if err != nil {
		t.Fatalf("generate fallback: %v", err)
	}
	if got := v.(*ContentResult).Parts; got[0] != "Top text" || got[1] != "Bottom text" {
		t.Fatalf("fallback parts = %q", got)
	}
}

func TestGenerateErrors(t *testing.T) {
	f := newFixture(t, "")
	if _, err := f.submit(t, TaskGenerate, map[string]any{}); !errors.Is(err, ErrMissingParam) {
		t.Fatalf("missing prompt: err = %v", err)
	}
	if _, err := f.submit(t, TaskGenerate, map[string]any{"content_type": "meme"}); !errors.Is(err, ErrMissingParam) {
		t.Fatalf("missing topic: err = %v", err)
	}
	if _, err := f.submit(t, TaskGenerate, map[string]any{"content_type": "video", "prompt": "x"}); err == nil {
		t.Fatal("expected unsupported content type error")
	}
}

const crewYAML = `
process: sequential
agents:
  - name: writer
    role: Writer
    goal: Write copy
    model: llama-3.1
  - name: editor
    role: Editor
    goal: Polish copy
    tools: [post_content]
tasks:
  - description: Draft a tweet about {topic}
    agent: writer
  - description: Review the draft
    agent: editor
`

func TestRunCrew(t *testing.T) {
	f := newFixture(t, "drafted")
	v, err := f.submit(t, TaskRunCrew, map[string]any{
		"definition": crewYAML,
		"inputs":     map[string]any{"topic": "go"},
	})
	if err != nil {
		t.Fatalf("run_crew: %v", err)
	}
	res := v.(*CrewRunResult)
	if res.Status != crew.StatusCompleted || res.Process != crew.ProcessSequential {
		t.Fatalf("result = %+v", res)
	}
	if res.Results["Writer"] != "drafted" {
		t.Fatalf("writer result = %q", res.Results["Writer"])
	}
	if len(res.Items) != 2 || res.Items[1].Agent != "Editor" || res.Items[1].Status != crew.StatusCompleted {
		t.Fatalf("items = %+v", res.Items)
	}
	if p := f.models.prompts[0]; !strings.Contains(p, "topic: go") {
		t.Fatalf("writer prompt lacks inputs: %q", p)
	}
	if _, err := f.mem.Get(context.Background(), crew.MemoryCategory, "task_result_"+res.Items[0].ID); err != nil {
		t.Fatalf("agent result not logged: %v", err)
	}
	if len(res.Memory) != 2 {
		t.Fatalf("crew memory = %+v", res.Memory)
	}
}

func TestRunCrewDefinitionObject(t *testing.T) {
	f := newFixture(t, "done")
	def := map[string]any{
		"agents": []any{map[string]any{"name": "a", "role": "Analyst", "goal": "Analyze"}},
		"tasks":  []any{map[string]any{"description": "Analyze trends", "agent": "a"}},
	}
	v, err := f.submit(t, TaskRunCrew, map[string]any{"definition": def})
	if err != nil {
		t.Fatalf("run_crew: %v", err)
	}
	if got := v.(*CrewRunResult).Results["Analyst"]; got != "done" {
		t.Fatalf("result = %q", got)
	}
}

func TestRunCrewErrors(t *testing.T) {
	f := newFixture(t, "")
	if _, err := f.submit(t, TaskRunCrew, map[string]any{}); !errors.Is(err, ErrMissingParam) {
		t.Fatalf("missing definition: err = %v", err)
	}
	bad := "tasks:\n  - description: x\n    agent: nobody\n"
	if _, err := f.submit(t, TaskRunCrew, map[string]any{"definition": bad}); err == nil {
		t.Fatal("expected unknown agent error")
	}
	if _, err := f.submit(t, TaskRunCrew, map[string]any{"crew": "marketing"}); !errors.Is(err, crew.ErrUnknownCrew) {
		t.Fatalf("unknown crew: err = %v", err)
	}
}

func TestRunPredefinedCrew(t *testing.T) {
	f := newFixture(t, "notes")
	v, err := f.submit(t, TaskRunCrew, map[string]any{
		"crew":   "content_research",
		"inputs": map[string]any{"topic": "generics"},
	})
	if err != nil {
		t.Fatalf("run_crew: %v", err)
	}
	res := v.(*CrewRunResult)
	if len(res.Items) != 3 || res.Items[2].Agent != "Content Editor" {
		t.Fatalf("items = %+v", res.Items)
	}
	if res.Results["Research Specialist"] != "notes" {
		t.Fatalf("results = %v", res.Results)
	}
	if p := f.models.prompts[2]; !strings.Contains(p, "topic: generics") || !strings.Contains(p, "Result from Content Writer: notes") {
		t.Fatalf("editor prompt = %q", p)
	}
}

func TestTools(t *testing.T) {
	f := newFixture(t, "generated")
	tools := Tools(f.set)
	if len(tools) != 2 {
		t.Fatalf("tools = %v", tools)
	}
	out, err := tools[TaskPostContent].Run(context.Background(), "tool post", nil)
	if err != nil {
		t.Fatalf("post tool: %v", err)
	}
	if !strings.Contains(out, `"post_id":"twitter_post_1"`) {
		t.Fatalf("post tool output = %s", out)
	}
	out, err = tools[TaskGenerate].Run(context.Background(), "idea", nil)
	if err != nil {
		t.Fatalf("generate tool: %v", err)
	}
	if !strings.Contains(out, `"output":"generated"`) {
		t.Fatalf("generate tool output = %s", out)
	}
}
