// Package knowledge holds a brand's FAQ as an in-memory, read-only index of
// short facts. Responders look up the facts most similar to an incoming
// comment and hand them to the model as grounding.
//
// Scoring is Jaccard similarity between the query token set and each fact's
// token set: score = |Q ∩ F| / |Q ∪ F|. Ties break on shorter fact, then
// lexical order, so lookups are deterministic.
package knowledge

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Snippet is a ranked fact with its similarity score.
type Snippet struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Option configures a Base.
type Option func(*config)

type config struct {
	minFactRunes int
	stopwords    map[string]struct{}
	maxFacts     int
	minScore     float64
}

func defaultConfig() config {
	return config{minFactRunes: 8, stopwords: defaultStopwords(), minScore: 0.05}
}

// WithMinFactRunes drops facts shorter than n runes.
func WithMinFactRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minFactRunes = n
		}
	}
}

// WithStopwords replaces the built-in English stop words.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = cases.Fold().String(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		c.stopwords = m
	}
}

// WithMaxFacts caps the number of indexed facts.
func WithMaxFacts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxFacts = n
		}
	}
}

// WithMinScore drops matches scoring below s.
func WithMinScore(s float64) Option {
	return func(c *config) {
		if s >= 0 {
			c.minScore = s
		}
	}
}

type fact struct {
	text   string
	tokens map[string]struct{}
	runes  int
}

// Base is safe for concurrent use once built.
type Base struct {
	cfg   config
	facts []fact
}

// Load reads a Markdown FAQ from path. Table rows become standalone facts.
func Load(path string, opts ...Option) (*Base, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromReader(bytes.NewReader(b), opts...)
}

// FromReader builds a Base from Markdown read from r.
func FromReader(r io.Reader, opts ...Option) (*Base, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return FromFacts(Flatten(string(raw)), opts...), nil
}

// FromFacts builds a Base from already-split facts.
func FromFacts(facts []string, opts ...Option) *Base {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	kb := &Base{cfg: cfg, facts: make([]fact, 0, len(facts))}
	for _, raw := range facts {
		t := strings.TrimSpace(collapseSpace(raw))
		if t == "" {
			continue
		}
		n := utf8.RuneCountInString(t)
		if n < cfg.minFactRunes {
			continue
		}
		toks := tokenize(t, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		kb.facts = append(kb.facts, fact{text: t, tokens: toks, runes: n})
		if cfg.maxFacts > 0 && len(kb.facts) >= cfg.maxFacts {
			break
		}
	}
	return kb
}

// Len returns the number of indexed facts.
func (b *Base) Len() int {
	if b == nil {
		return 0
	}
	return len(b.facts)
}

// Lookup returns up to k facts most similar to query. k <= 0 means 3.
// A nil Base returns nil.
func (b *Base) Lookup(query string, k int) []Snippet {
	if b == nil || len(b.facts) == 0 || strings.TrimSpace(query) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	q := tokenize(query, b.cfg.stopwords)
	if len(q) == 0 {
		return nil
	}

	type scored struct {
		text  string
		score float64
		runes int
	}
	var buf []scored
	for _, f := range b.facts {
		over := overlap(q, f.tokens)
		if over == 0 {
			continue
		}
		score := float64(over) / float64(len(q)+len(f.tokens)-over)
		if score < b.cfg.minScore {
			continue
		}
		buf = append(buf, scored{text: f.text, score: score, runes: f.runes})
	}
	if len(buf) == 0 {
		return nil
	}
	sort.SliceStable(buf, func(i, j int) bool {
		if buf[i].score != buf[j].score {
			return buf[i].score > buf[j].score
		}
		if buf[i].runes != buf[j].runes {
			return buf[i].runes < buf[j].runes
		}
		return buf[i].text < buf[j].text
	})
	k = min(k, len(buf))
	out := make([]Snippet, k)
	for i := range out {
		out[i] = Snippet{Text: buf[i].text, Score: buf[i].score}
	}
	return out
}

var (
	wordRE  = regexp.MustCompile(`\p{L}[\p{L}\p{N}']*|\p{N}+`)
	spaceRE = regexp.MustCompile(`[ \t\r]+`)
)

// tokenize case-folds s. A Caser is stateful, so one is built per call.
func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(cases.Fold().String(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func collapseSpace(s string) string { return spaceRE.ReplaceAllString(s, " ") }

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "but", "by", "can", "do",
		"does", "for", "from", "have", "how", "i", "if", "in", "is", "it",
		"me", "my", "of", "on", "or", "our", "so", "that", "the", "this",
		"to", "was", "we", "what", "when", "where", "which", "who", "will",
		"with", "you", "your",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
