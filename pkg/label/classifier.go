package label

import (
	"context"
	"fmt"
	"strings"
)

// Classifier assigns a content-moderation label to each input text.
// Predict returns exactly one label per text, in input order. Load is
// idempotent and safe to call from concurrent executors.
type Classifier interface {
	Load(ctx context.Context) error
	Predict(ctx context.Context, texts []string) ([]string, error)
}

// New selects the configured classifier backend.
func New(backend, lexiconPath, remoteURL string) (Classifier, error) {
	switch backend {
	case "", "lexicon":
		return NewLexiconClassifier(lexiconPath), nil
	case "remote":
		return NewRemoteClassifier(remoteURL), nil
	default:
		return nil, fmt.Errorf("unknown label backend %q", backend)
	}
}

// Normalize maps raw model labels onto the display vocabulary.
func Normalize(label string) string {
	ll := strings.ToLower(strings.TrimSpace(label))
	switch {
	case ll == "":
		return ""
	case strings.Contains(ll, "terror"):
		return "Abuse"
	case strings.Contains(ll, "hate"):
		return "Hate speech"
	case strings.Contains(ll, "bad"):
		return "Bad language"
	default:
		return label
	}
}
