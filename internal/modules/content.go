package modules

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"go.uber.org/zap"
)

// ContentCategory holds generated content in the memory store.
const ContentCategory = "generated_content"

// ContentResult is returned by ContentGenerator.GenerateContent.
type ContentResult struct {
	Success   bool     `json:"success"`
	ContentID string   `json:"content_id"`
	Type      string   `json:"content_type"`
	Prompt    string   `json:"prompt"`
	Output    string   `json:"output"`
	Parts     []string `json:"parts,omitempty"`
	Model     string   `json:"model"`
}

// ContentGenerator produces text, image and meme content through named
// models.
type ContentGenerator struct {
	models     ModelRunner
	textModel  string
	imageModel string
	mem        Memory
	logger     *zap.Logger
}

// NewContentGenerator creates the content module.
func NewContentGenerator(models ModelRunner, textModel, imageModel string, mem Memory, logger *zap.Logger) *ContentGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentGenerator{
		models:     models,
		textModel:  textModel,
		imageModel: imageModel,
		mem:        mem,
		logger:     logger.With(zap.String("module", ContentName)),
	}
}

// GenerateContent dispatches on params["content_type"] (text, image, meme).
func (g *ContentGenerator) GenerateContent(ctx context.Context, params map[string]any) (any, error) {
	contentType := stringParam(params, "content_type", "text")
	if contentType == "meme" {
		return g.meme(ctx, params)
	}
	if contentType != "text" && contentType != "image" {
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}

	prompt, err := requireString(params, "prompt")
	if err != nil {
		return nil, err
	}
	def := g.textModel
	if contentType == "image" {
		def = g.imageModel
	}
	model := stringParam(params, "model", def)
	if enhance, _ := params["enhance"].(bool); enhance {
		prompt = g.EnhancePrompt(ctx, prompt, contentType)
	}

	out, err := g.models.Run(ctx, model, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate %s with %s: %w", contentType, model, err)
	}
	res := &ContentResult{
		Success:   true,
		ContentID: contentID(contentType, prompt),
		Type:      contentType,
		Prompt:    prompt,
		Output:    out,
		Model:     model,
	}
	g.store(ctx, res)
	return res, nil
}

// EnhancePrompt asks the text model to improve prompt. The original prompt
// is returned on failure.
func (g *ContentGenerator) EnhancePrompt(ctx context.Context, prompt, contentType string) string {
	var ask string
	switch contentType {
	case "text":
		ask = fmt.Sprintf("Enhance the following prompt for text generation: '%s'", prompt)
	case "image":
		ask = fmt.Sprintf("Enhance the following prompt for image generation, adding details about lighting, style, and composition: '%s'", prompt)
	default:
		return prompt
	}
	out, err := g.models.Run(ctx, g.textModel, ask)
	if err != nil || strings.TrimSpace(out) == "" {
		if err != nil {
			g.logger.Error("enhance prompt failed", zap.Error(err))
		}
		return prompt
	}
	return strings.TrimSpace(out)
}

func (g *ContentGenerator) meme(ctx context.Context, params map[string]any) (any, error) {
	topic, err := requireString(params, "topic")
	if err != nil {
		return nil, err
	}
	style := stringParam(params, "style", "funny")
	template := stringParam(params, "template", "classic")
	regions := intParam(params, "text_regions", 2)
	if regions <= 0 {
		regions = 2
	}

	prompt := fmt.Sprintf("Generate a %s meme about %s for the template '%s'. ", style, topic, template) +
		fmt.Sprintf("The meme should have %d text parts. ", regions) +
		"Return only the text parts, one per line, without any additional explanation."

	parts := []string{"Top text", "Bottom text"}
	out, err := g.models.Run(ctx, g.textModel, prompt)
	if err != nil {
		g.logger.Error("generate meme text failed", zap.Error(err))
	} else {
		parts = splitParts(out, regions)
	}

	res := &ContentResult{
		Success:   true,
		ContentID: contentID("meme", prompt),
		Type:      "meme",
		Prompt:    prompt,
		Output:    strings.Join(parts, "\n"),
		Parts:     parts,
		Model:     g.textModel,
	}
	g.store(ctx, res)
	return res, nil
}

func (g *ContentGenerator) store(ctx context.Context, res *ContentResult) {
	if g.mem == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := g.mem.Add(ctx, ContentCategory, res.ContentID, string(data)); err != nil {
		g.logger.Warn("store generated content failed", zap.String("content_id", res.ContentID), zap.Error(err))
	}
}

func splitParts(out string, n int) []string {
	var parts []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	for len(parts) < n {
		parts = append(parts, "")
	}
	return parts[:n]
}

func contentID(kind, prompt string) string {
	h := fnv.New64a()
	h.Write([]byte(prompt))
	return fmt.Sprintf("%s_%x", kind, h.Sum64())
}
