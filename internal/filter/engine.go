// Package filter implements the feed item matching engine.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"crop_notify/internal/model"
)

// View selects a slice of the feed.
type View string

// Supported views.
const (
	ViewAll         View = "all"
	ViewUnread      View = "unread"
	ViewMessages    View = "messages"
	ViewFiles       View = "files"
	ViewPredictions View = "predictions"
)

// Views lists every view in display order.
var Views = []View{ViewAll, ViewUnread, ViewMessages, ViewFiles, ViewPredictions}

// ParseView parses a view name. An empty name selects ViewAll.
func ParseView(s string) (View, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ViewAll, nil
	}
	for _, v := range Views {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// RuleKind is the matching mode of a text rule.
type RuleKind string

// Rule kinds.
const (
	RuleInclude   RuleKind = "include"
	RuleExclude   RuleKind = "exclude"
	RuleIncludeRe RuleKind = "include_re"
	RuleExcludeRe RuleKind = "exclude_re"
)

// Rule matches an item's text.
type Rule struct {
	Kind  RuleKind
	Value string
	re    *regexp.Regexp
}

// ParseRules parses search terms: "word" includes, "-word" excludes,
// "re:pattern" and "-re:pattern" are case-insensitive regexes.
func ParseRules(terms []string) ([]Rule, error) {
	var rules []Rule
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" || term == "-" {
			continue
		}
		exclude := strings.HasPrefix(term, "-")
		term = strings.TrimPrefix(term, "-")

		if pattern, ok := strings.CutPrefix(term, "re:"); ok {
			if err := ValidateRegex(pattern); err != nil {
				return nil, err
			}
			kind := RuleIncludeRe
			if exclude {
				kind = RuleExcludeRe
			}
			rules = append(rules, Rule{Kind: kind, Value: pattern, re: regexp.MustCompile("(?i)" + pattern)})
			continue
		}

		kind := RuleInclude
		if exclude {
			kind = RuleExclude
		}
		rules = append(rules, Rule{Kind: kind, Value: term})
	}
	return rules, nil
}

// Criteria combines a view with text rules.
type Criteria struct {
	View  View
	Rules []Rule
	// IsRead resolves read state for ViewUnread. Required for that view.
	IsRead func(model.NotificationItem) bool
}

// Keep returns the predicate selecting items that satisfy c.
func (c Criteria) Keep() func(model.NotificationItem) bool {
	return func(item model.NotificationItem) bool {
		return MatchView(item, c.View, c.IsRead) && Match(item, c.Rules)
	}
}

// MatchView reports whether item belongs to view.
func MatchView(item model.NotificationItem, view View, isRead func(model.NotificationItem) bool) bool {
	switch view {
	case ViewUnread:
		return isRead == nil || !isRead(item)
	case ViewMessages:
		return item.Source == model.SourceMessage
	case ViewFiles:
		return item.Source == model.SourceFileUpload
	case ViewPredictions:
		return item.Source == model.SourcePrediction
	}
	return true
}

// Match checks whether an item passes the given set of rules.
// If no rules are provided, the item always passes.
// Include rules use OR logic (at least one must match).
// Exclude rules use AND logic (none must match).
func Match(item model.NotificationItem, rules []Rule) bool {
	if len(rules) == 0 {
		return true
	}

	text := strings.ToLower(Text(item))
	hasIncludes := false
	anyIncludeMatched := false

	for _, r := range rules {
		switch r.Kind {
		case RuleInclude, RuleIncludeRe:
			hasIncludes = true
			if matchesRule(text, r) {
				anyIncludeMatched = true
			}
		case RuleExclude, RuleExcludeRe:
			if matchesRule(text, r) {
				return false
			}
		}
	}

	return !hasIncludes || anyIncludeMatched
}

func matchesRule(text string, r Rule) bool {
	switch r.Kind {
	case RuleInclude, RuleExclude:
		return strings.Contains(text, strings.ToLower(r.Value))
	case RuleIncludeRe, RuleExcludeRe:
		re := r.re
		if re == nil {
			var err error
			if re, err = regexp.Compile("(?i)" + r.Value); err != nil {
				return false
			}
		}
		return re.MatchString(text)
	}
	return false
}

// Text returns the searchable text of an item.
func Text(item model.NotificationItem) string {
	var parts []string
	for _, key := range []string{"text", "original_name", "category", "notes", "crop_name", "title"} {
		if s, ok := item.Payload[key].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	_, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}
