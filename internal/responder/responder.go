// Package responder drafts public replies to comments. Gemini asks a Google
// Gemini model for a reply grounded in the brand FAQ; Template renders a
// fixed message for deployments without a model key.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/tbourn/go-engage-backend/internal/knowledge"
	"github.com/tbourn/go-engage-backend/internal/services"
)

// MaxReplyRunes is Instagram's comment length limit.
const MaxReplyRunes = 2200

// ErrNoCandidate is returned when the model produced no usable text.
var ErrNoCandidate = errors.New("responder: model returned no text")

// Generator is the subset of *genai.Models used here.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini implements services.Responder.
type Gemini struct {
	Models      Generator
	Model       string
	Knowledge   *knowledge.Base // optional
	Facts       int             // FAQ facts per prompt, default 3
	Temperature float32
	MaxTokens   int32
}

var (
	_ services.Responder = (*Gemini)(nil)
	_ services.Responder = Template{}
)

// NewGemini dials the Gemini API with apiKey.
func NewGemini(ctx context.Context, apiKey, model string, kb *knowledge.Base) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("responder: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Gemini{Models: client.Models, Model: model, Knowledge: kb, Temperature: 0.4, MaxTokens: 256}, nil
}

// GenerateReply implements services.Responder.
func (g *Gemini) GenerateReply(ctx context.Context, rc services.ReplyContext) (string, error) {
	ctx, span := otel.Tracer("responder").Start(ctx, "Gemini.GenerateReply",
		trace.WithAttributes(
			attribute.String("comment.id", rc.CommentID),
			attribute.String("model", g.Model),
		))
	defer span.End()

	facts := g.Facts
	if facts <= 0 {
		facts = 3
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt(rc.Post), genai.RoleUser),
		Temperature:       genai.Ptr(g.Temperature),
	}
	if g.MaxTokens > 0 {
		cfg.MaxOutputTokens = g.MaxTokens
	}
	prompt := UserPrompt(rc, g.Knowledge.Lookup(rc.CommentText, facts))

	resp, err := g.Models.GenerateContent(ctx, g.Model, genai.Text(prompt), cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := Clean(firstText(resp))
	if text == "" {
		span.SetStatus(codes.Error, "empty candidate")
		return "", ErrNoCandidate
	}
	return text, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Clean trims whitespace and wrapping quotes and caps the reply at
// MaxReplyRunes.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if utf8.RuneCountInString(s) > MaxReplyRunes {
		s = string([]rune(s)[:MaxReplyRunes])
	}
	return s
}

// Template implements services.Responder with a fixed message. A single %s
// in Format is replaced by the commenter's name.
type Template struct {
	Format string
}

// GenerateReply implements services.Responder.
func (t Template) GenerateReply(_ context.Context, rc services.ReplyContext) (string, error) {
	if strings.TrimSpace(t.Format) == "" {
		return "", errors.New("responder: empty template")
	}
	if strings.Count(t.Format, "%s") != 1 {
		return Clean(t.Format), nil
	}
	name := strings.TrimPrefix(rc.AuthorName, "@")
	if name == "" {
		name = "there"
	}
	return Clean(strings.Replace(t.Format, "%s", name, 1)), nil
}
