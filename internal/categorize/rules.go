// Package categorize implements the categorization pipeline: the keyword
// rule table, the learned memory store, the statistical classifier, and the
// resolver that orchestrates them in strict priority order.
package categorize

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Rule associates a lowercase keyword with a category
type Rule struct {
	Keyword  string
	Category string
}

// RuleTable holds the keyword rules in file order. It is loaded once from a
// flat JSON object and immutable afterwards, so it is safe to share across
// goroutines without locking.
type RuleTable struct {
	rules []Rule
}

// LoadRuleTable reads a flat keyword->category JSON object, preserving the
// key order of the file. Match scans rules in that order, so earlier entries
// take precedence over later ones.
func LoadRuleTable(path string) (*RuleTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule table: %w", err)
	}
	defer f.Close()

	// encoding/json map decoding discards key order; walk the tokens instead.
	dec := json.NewDecoder(f)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to parse rule table: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("rule table must be a JSON object, got %v", tok)
	}

	var rules []Rule
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to parse rule table: %w", err)
		}
		keyword, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("rule table key must be a string, got %v", keyTok)
		}

		var category string
		if err := dec.Decode(&category); err != nil {
			return nil, fmt.Errorf("rule table value for %q must be a string: %w", keyword, err)
		}

		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" || category == "" {
			continue
		}
		rules = append(rules, Rule{Keyword: keyword, Category: category})
	}

	return &RuleTable{rules: rules}, nil
}

// NewRuleTable builds a table directly from ordered rules (used in tests)
func NewRuleTable(rules []Rule) *RuleTable {
	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		r.Keyword = strings.ToLower(strings.TrimSpace(r.Keyword))
		if r.Keyword == "" || r.Category == "" {
			continue
		}
		normalized = append(normalized, r)
	}
	return &RuleTable{rules: normalized}
}

// Match returns the category of the first keyword that is a case-insensitive
// substring of the description, in table order.
func (t *RuleTable) Match(description string) (string, bool) {
	lowered := strings.ToLower(description)
	for _, rule := range t.rules {
		if strings.Contains(lowered, rule.Keyword) {
			return rule.Category, true
		}
	}
	return "", false
}

// Len returns the number of loaded rules
func (t *RuleTable) Len() int {
	return len(t.rules)
}
