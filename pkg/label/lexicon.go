package label

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
)

// LabelNeutral is assigned when no lexicon term matches.
const LabelNeutral = "neutral"

// defaultLexicon is used when no lexicon file is configured. Raw
// labels feed Normalize for display.
var defaultLexicon = map[string][]string{
	"bad language": {"damn", "crap", "stupid", "idiot", "moron", "shut up"},
	"hate":         {"hate", "disgusting people", "vermin", "subhuman"},
	"terror":       {"bomb", "attack", "kill them", "explosive", "hostage"},
}

// LexiconClassifier matches segment text against per-label term lists.
// The lexicon loads exactly once for the process lifetime.
type LexiconClassifier struct {
	path string

	once    sync.Once
	loadErr error
	terms   map[string]string // lowercased term -> raw label
}

func NewLexiconClassifier(path string) *LexiconClassifier {
	return &LexiconClassifier{path: path}
}

func (c *LexiconClassifier) Load(_ context.Context) error {
	c.once.Do(func() {
		lexicon := defaultLexicon
		if c.path != "" {
			raw, err := os.ReadFile(c.path)
			if err != nil {
				c.loadErr = err
				return
			}
			lexicon = map[string][]string{}
			if err := json.Unmarshal(raw, &lexicon); err != nil {
				c.loadErr = err
				return
			}
		}

		c.terms = map[string]string{}
		for lbl, terms := range lexicon {
			for _, term := range terms {
				c.terms[strings.ToLower(term)] = lbl
			}
		}
	})
	return c.loadErr
}

func (c *LexiconClassifier) Predict(ctx context.Context, texts []string) ([]string, error) {
	if err := c.Load(ctx); err != nil {
		return nil, err
	}

	labels := make([]string, len(texts))
	for i, text := range texts {
		labels[i] = c.classify(text)
	}
	return labels, nil
}

func (c *LexiconClassifier) classify(text string) string {
	lowered := strings.ToLower(text)
	best := LabelNeutral
	bestHits := 0
	for term, lbl := range c.terms {
		if !strings.Contains(lowered, term) {
			continue
		}
		hits := strings.Count(lowered, term)
		if hits > bestHits {
			best = lbl
			bestHits = hits
		}
	}
	return best
}
