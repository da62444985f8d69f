// Package analysis provides a simple, deterministic, concurrency-safe keyword
// classifier for customer problem descriptions. It is intentionally small and
// dependency-free, but engineered with production-grade ergonomics:
//
//   - No logging in the library (callers decide how/what to log)
//   - Clear, documented types and functional options (Option pattern)
//   - Unicode-aware tokenization with optional stop-word removal
//   - Immutable, read-only classifier after construction (safe for concurrent use)
//   - Deterministic scoring and tie-breaking (stable order for ties)
//
// Scoring uses Jaccard similarity between the message token set and each
// category's keyword set: score = |M ∩ C| / |M ∪ C|. The best-scoring
// category becomes the problem type; the score becomes the confidence.
package analysis

import (
	"regexp"
	"sort"
	"strings"

	"github.com/uslugibg/chat-backend/internal/convo"
)

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	stopwords      map[string]struct{}
	requiredFields []string
	minConfidence  float64
}

func defaultConfig() config {
	return config{
		stopwords:      nil,
		requiredFields: []string{FieldDescription, FieldAddress, FieldTiming},
		minConfidence:  0.0,
	}
}

// WithStopwords removes the given words from both message and keyword sets
// before scoring.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithRequiredFields overrides the set of fields a complete description must
// contain.
func WithRequiredFields(fields []string) Option {
	return func(c *config) {
		if len(fields) > 0 {
			c.requiredFields = fields
		}
	}
}

// WithMinConfidence sets the floor below which the problem type falls back
// to ProblemGeneral.
func WithMinConfidence(f float64) Option {
	return func(c *config) {
		if f >= 0 && f <= 1 {
			c.minConfidence = f
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type category struct {
	name   string
	tokens map[string]struct{}
	tLen   int
}

// Classifier scores customer text against a fixed category lexicon.
type Classifier struct {
	cfg        config
	cats       []category
	urgent     map[string]struct{}
	emergency  map[string]struct{}
	escalation map[string]struct{}
	address    map[string]struct{}
	timing     map[string]struct{}
}

// New builds a Classifier over the built-in Bulgarian lexicon.
func New(opts ...Option) *Classifier {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	cats := make([]category, 0, len(categoryLexicon))
	for name, words := range categoryLexicon {
		toks := keywordSet(words, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		cats = append(cats, category{name: name, tokens: toks, tLen: len(toks)})
	}
	sort.Slice(cats, func(a, b int) bool { return cats[a].name < cats[b].name })

	return &Classifier{
		cfg:        cfg,
		cats:       cats,
		urgent:     keywordSet(urgentLexicon, nil),
		emergency:  keywordSet(emergencyLexicon, nil),
		escalation: keywordSet(escalationLexicon, nil),
		address:    keywordSet(addressLexicon, nil),
		timing:     keywordSet(timingLexicon, nil),
	}
}

// Analyze classifies one customer message. It never fails; an empty or
// unrecognized message yields ProblemGeneral with zero confidence and all
// required fields missing.
func (c *Classifier) Analyze(text string) convo.ConversationAnalysis {
	toks := tokenize(text, c.cfg.stopwords)
	a := convo.ConversationAnalysis{
		ProblemType: ProblemGeneral,
		Urgency:     convo.UrgencyNormal,
	}
	if len(toks) == 0 {
		a.MissingFields = append([]string(nil), c.cfg.requiredFields...)
		return a
	}

	best, score := c.bestCategory(toks)
	if best != "" && score >= c.cfg.minConfidence {
		a.ProblemType = best
	}
	a.Confidence = score

	a.Urgency = c.urgency(toks)
	a.EscalationRequested = overlap(toks, c.escalation) > 0
	a.MissingFields = c.missingFields(toks)
	return a
}

func (c *Classifier) bestCategory(toks map[string]struct{}) (string, float64) {
	bestName := ""
	bestScore := 0.0
	for _, cat := range c.cats {
		over := overlap(toks, cat.tokens)
		if over == 0 {
			continue
		}
		union := float64(len(toks) + cat.tLen - over)
		if union <= 0 {
			continue
		}
		score := float64(over) / union
		// ties resolve to the lexicographically first category name,
		// which the sorted cats slice already guarantees
		if score > bestScore {
			bestName, bestScore = cat.name, score
		}
	}
	return bestName, bestScore
}

func (c *Classifier) urgency(toks map[string]struct{}) string {
	if overlap(toks, c.emergency) > 0 {
		return convo.UrgencyEmergency
	}
	if overlap(toks, c.urgent) > 0 {
		return convo.UrgencyHigh
	}
	return convo.UrgencyNormal
}

// minDescriptionTokens is the token count below which a message does not
// count as a usable problem description.
const minDescriptionTokens = 4

func (c *Classifier) missingFields(toks map[string]struct{}) []string {
	var missing []string
	for _, f := range c.cfg.requiredFields {
		switch f {
		case FieldDescription:
			if len(toks) < minDescriptionTokens {
				missing = append(missing, f)
			}
		case FieldAddress:
			if overlap(toks, c.address) == 0 {
				missing = append(missing, f)
			}
		case FieldTiming:
			if overlap(toks, c.timing) == 0 {
				missing = append(missing, f)
			}
		default:
			missing = append(missing, f)
		}
	}
	return missing
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	s = strings.ToLower(s)
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func keywordSet(words []string, stop map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
