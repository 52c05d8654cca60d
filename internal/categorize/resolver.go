package categorize

import (
	"log/slog"
	"strings"
)

// Unresolved is the explicit marker meaning no category could be determined.
// It is a legitimate resolution outcome, distinct from an error.
const Unresolved = "Uncategorized"

// ambiguityKeywords flag descriptions whose direction or counterparty is
// unclear and should be confirmed by the user.
var ambiguityKeywords = []string{"withdraw", "agent", "transfer", "peer"}

// Source identifies which tier produced a resolution
type Source string

// Resolution sources, ordered by trust: explicit human input, prior human
// correction, hand-authored rules, statistical guess.
const (
	SourceSupplied   Source = "supplied"
	SourceMemory     Source = "memory"
	SourceRule       Source = "rule"
	SourceModel      Source = "model"
	SourceUnresolved Source = "unresolved"
)

// Resolution is the explicit result of one categorization. Err is set only
// when the classifier tier failed at call time; callers can log model
// outages apart from legitimately unresolved descriptions.
type Resolution struct {
	Category string
	Source   Source
	Err      error
}

// Resolver orchestrates the categorization tiers in strict priority order:
// supplied category, memory, rule table, classifier. Swapping tiers changes
// outcomes and is a regression.
type Resolver struct {
	memory     *Memory
	rules      *RuleTable
	classifier Classifier
	logger     *slog.Logger
}

// NewResolver creates a resolver over the given tiers
func NewResolver(memory *Memory, rules *RuleTable, classifier Classifier, logger *slog.Logger) *Resolver {
	return &Resolver{
		memory:     memory,
		rules:      rules,
		classifier: classifier,
		logger:     logger,
	}
}

// Resolve produces a category for the description. A non-empty supplied
// category is kept verbatim; otherwise memory, then the rule table, then the
// classifier are consulted. The classifier also re-resolves any result equal
// to the Unresolved marker. Classifier failure degrades to Unresolved
// instead of propagating, so one unresolvable row never aborts a batch.
func (r *Resolver) Resolve(description, supplied string) Resolution {
	category := strings.TrimSpace(supplied)
	source := SourceSupplied

	if category == "" {
		if remembered, ok := r.memory.Lookup(description); ok {
			category, source = remembered, SourceMemory
		} else if matched, ok := r.rules.Match(description); ok {
			category, source = matched, SourceRule
		} else {
			category, source = Unresolved, SourceUnresolved
		}
	}

	if category == Unresolved {
		predicted, err := r.classifier.Predict(description)
		if err != nil {
			r.logger.Warn("classifier unavailable, leaving transaction unresolved",
				"description", description, "error", err)
			return Resolution{Category: Unresolved, Source: SourceUnresolved, Err: err}
		}
		r.logger.Debug("transaction categorized by classifier",
			"description", description, "category", predicted)
		return Resolution{Category: predicted, Source: SourceModel}
	}

	r.logger.Debug("transaction categorized",
		"description", description, "category", category, "source", source)
	return Resolution{Category: category, Source: source}
}

// NeedsConfirmation reports whether the description matches the fixed
// ambiguity keyword set. Computed independently of category resolution.
func NeedsConfirmation(description string) bool {
	lowered := strings.ToLower(description)
	for _, keyword := range ambiguityKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}
