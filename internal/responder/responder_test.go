package responder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/tbourn/go-engage-backend/internal/knowledge"
	"github.com/tbourn/go-engage-backend/internal/services"
)

type fakeGenerator struct {
	resp   *genai.GenerateContentResponse
	err    error
	model  string
	prompt string
	system string
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if cfg != nil && cfg.SystemInstruction != nil && len(cfg.SystemInstruction.Parts) > 0 {
		f.system = cfg.SystemInstruction.Parts[0].Text
	}
	return f.resp, f.err
}

func textResponse(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}}}
}

func sampleContext() services.ReplyContext {
	return services.ReplyContext{
		CommentID:   "c3",
		CommentText: "Do you ship to the EU?",
		AuthorName:  "maria",
		Post: services.PostContext{
			PostID:        "p1",
			Platform:      "instagram",
			OwnerUsername: "acme",
			Caption:       "New summer drop",
		},
		Thread: []services.ThreadEntry{
			{AuthorName: "maria", Text: "Love these"},
			{AuthorName: "acme", Text: "Thank you!", IsOwner: true},
		},
	}
}

func TestGemini_GenerateReply(t *testing.T) {
	kb := knowledge.FromFacts([]string{"EU delivery takes 3-5 days", "Store hours are nine to five"})
	gen := &fakeGenerator{resp: textResponse(
		&genai.Part{Text: "thinking...", Thought: true},
		&genai.Part{Text: `"Yes, we ship to the EU in 3-5 days!"`},
	)}
	g := &Gemini{Models: gen, Model: "gemini-test", Knowledge: kb}

	got, err := g.GenerateReply(context.Background(), sampleContext())
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if got != "Yes, we ship to the EU in 3-5 days!" {
		t.Fatalf("reply = %q", got)
	}
	if gen.model != "gemini-test" {
		t.Fatalf("model = %q", gen.model)
	}
	for _, want := range []string{"New summer drop", "- EU delivery takes 3-5 days", "@acme (you): Thank you!", "Comment from @maria:\nDo you ship to the EU?"} {
		if !strings.Contains(gen.prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, gen.prompt)
		}
	}
	if strings.Contains(gen.prompt, "Store hours") {
		t.Fatalf("unrelated fact leaked into prompt:\n%s", gen.prompt)
	}
	if !strings.Contains(gen.system, "Instagram comments on behalf of @acme") {
		t.Fatalf("system prompt = %q", gen.system)
	}
}

func TestGemini_Errors(t *testing.T) {
	rc := sampleContext()

	g := &Gemini{Models: &fakeGenerator{err: errors.New("quota exhausted")}, Model: "m"}
	if _, err := g.GenerateReply(context.Background(), rc); err == nil || !strings.Contains(err.Error(), "quota exhausted") {
		t.Fatalf("want wrapped generate error, got %v", err)
	}

	for name, resp := range map[string]*genai.GenerateContentResponse{
		"nil":          nil,
		"no candidate": {},
		"blank text":   textResponse(&genai.Part{Text: "   "}),
	} {
		g := &Gemini{Models: &fakeGenerator{resp: resp}, Model: "m"}
		if _, err := g.GenerateReply(context.Background(), rc); !errors.Is(err, ErrNoCandidate) {
			t.Fatalf("%s: want ErrNoCandidate, got %v", name, err)
		}
	}
}

func TestNewGemini_RequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), " ", "", nil); err == nil {
		t.Fatalf("expected error for missing key")
	}
}

func TestTemplate(t *testing.T) {
	rc := sampleContext()
	cases := []struct {
		format, author, want string
	}{
		{"Thanks @%s!", "maria", "Thanks @maria!"},
		{"Thanks @%s!", "@maria", "Thanks @maria!"},
		{"Thanks %s!", "", "Thanks there!"},
		{"Thanks for reaching out!", "maria", "Thanks for reaching out!"},
	}
	for _, tc := range cases {
		rc.AuthorName = tc.author
		got, err := Template{Format: tc.format}.GenerateReply(context.Background(), rc)
		if err != nil || got != tc.want {
			t.Fatalf("Template(%q, %q) = %q, %v; want %q", tc.format, tc.author, got, err, tc.want)
		}
	}
	if _, err := (Template{}).GenerateReply(context.Background(), rc); err == nil {
		t.Fatalf("empty template should error")
	}
}

func TestClean(t *testing.T) {
	if got := Clean("  \"hi there\"  "); got != "hi there" {
		t.Fatalf("Clean = %q", got)
	}
	long := strings.Repeat("é", MaxReplyRunes+10)
	if got := Clean(long); len([]rune(got)) != MaxReplyRunes {
		t.Fatalf("Clean did not cap length: %d", len([]rune(got)))
	}
}

func TestUserPrompt_NoCaptionNoFacts(t *testing.T) {
	rc := services.ReplyContext{CommentText: "hi", AuthorName: "bob"}
	got := UserPrompt(rc, nil)
	want := "Post caption:\n(none)\n\nComment from @bob:\nhi\n"
	if got != want {
		t.Fatalf("UserPrompt = %q, want %q", got, want)
	}
	if !strings.Contains(SystemPrompt(services.PostContext{}), "social media comments on behalf of the brand") {
		t.Fatalf("fallback system prompt = %q", SystemPrompt(services.PostContext{}))
	}
}
