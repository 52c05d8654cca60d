package categorize

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
)

// ErrNoTokens indicates a description with no scorable words
var ErrNoTokens = errors.New("description contains no scorable tokens")

// Classifier is the statistical fallback tier: a single inference operation
// from description to category. Implementations are fit offline; this core
// only runs inference.
type Classifier interface {
	Predict(description string) (string, error)
}

// classWeights holds the log-space parameters of one class
type classWeights struct {
	// Prior is the class log-prior.
	Prior float64 `json:"prior"`
	// Tokens maps a token to its log-likelihood under the class.
	Tokens map[string]float64 `json:"tokens"`
	// Default is the log-likelihood of tokens absent from the vocabulary
	// (the smoothed out-of-vocabulary mass).
	Default float64 `json:"default"`
}

// NaiveBayes is a multinomial naive bayes text classifier loaded from a
// pre-trained JSON artifact. It is read-only after load and safe for
// concurrent use.
type NaiveBayes struct {
	classes map[string]classWeights
	// names keeps a sorted class order so ties break deterministically.
	names []string
}

// LoadModel reads the classifier artifact from path. A missing or corrupt
// artifact is an error: the caller treats it as startup-fatal, not as a
// per-request condition.
func LoadModel(path string) (*NaiveBayes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read classifier artifact: %w", err)
	}

	var artifact struct {
		Classes map[string]classWeights `json:"classes"`
	}
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to parse classifier artifact: %w", err)
	}
	if len(artifact.Classes) == 0 {
		return nil, fmt.Errorf("classifier artifact %s defines no classes", path)
	}

	names := make([]string, 0, len(artifact.Classes))
	for name := range artifact.Classes {
		names = append(names, name)
	}
	sort.Strings(names)

	return &NaiveBayes{classes: artifact.Classes, names: names}, nil
}

// Predict returns the highest-scoring class for the description
func (nb *NaiveBayes) Predict(description string) (string, error) {
	tokens := tokenize(description)
	if len(tokens) == 0 {
		return "", ErrNoTokens
	}

	best := ""
	bestScore := 0.0
	for _, name := range nb.names {
		weights := nb.classes[name]
		score := weights.Prior
		for _, token := range tokens {
			if logProb, ok := weights.Tokens[token]; ok {
				score += logProb
			} else {
				score += weights.Default
			}
		}
		if best == "" || score > bestScore {
			best = name
			bestScore = score
		}
	}

	return best, nil
}

// tokenize lowercases the text and splits it on anything that is not a
// letter or digit, mirroring the vectorizer the artifact was fit with.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
