package bot

import (
	"fmt"
	"strconv"
	"strings"

	"crop_notify/internal/filter"
	"crop_notify/internal/model"
)

// MaxFeedPage bounds the page accepted from /feed and the "more" button.
const MaxFeedPage = 1000

// FeedArgs holds the parsed arguments of /feed.
type FeedArgs struct {
	Page     int
	Criteria filter.Criteria
}

// ParseFeedArgs parses arguments for /feed.
// Format: [page] [all|unread|messages|files|predictions] [word|-word|re:pat|-re:pat ...]
func ParseFeedArgs(args string) (FeedArgs, error) {
	out := FeedArgs{Page: 1, Criteria: filter.Criteria{View: filter.ViewAll}}
	rest := strings.Fields(args)

	if len(rest) > 0 {
		if n, err := strconv.Atoi(rest[0]); err == nil {
			if n < 1 || n > MaxFeedPage {
				return FeedArgs{}, fmt.Errorf("page must be between 1 and %d", MaxFeedPage)
			}
			out.Page = n
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		if v, err := filter.ParseView(rest[0]); err == nil {
			out.Criteria.View = v
			rest = rest[1:]
		}
	}

	rules, err := filter.ParseRules(rest)
	if err != nil {
		return FeedArgs{}, err
	}
	out.Criteria.Rules = rules
	return out, nil
}

// ParseFamilies parses an optional countdown family. An empty argument
// selects both families.
func ParseFamilies(args string) ([]model.EventKind, error) {
	s := strings.ToLower(strings.TrimSpace(args))
	switch s {
	case "":
		return []model.EventKind{model.KindFertilizer, model.KindAppointment}, nil
	case "fert", "fertilizer":
		return []model.EventKind{model.KindFertilizer}, nil
	case "appt", "appointment":
		return []model.EventKind{model.KindAppointment}, nil
	}
	return nil, fmt.Errorf("unknown countdown %q, use: fert, appt", s)
}

// ParseSource parses a feed item kind.
func ParseSource(s string) (model.SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "message", "msg":
		return model.SourceMessage, nil
	case "file", "user_file":
		return model.SourceFileUpload, nil
	case "prediction", "pred":
		return model.SourcePrediction, nil
	}
	return "", fmt.Errorf("unknown kind %q, use: message, file, prediction", s)
}

// ParseItemArgs extracts an item kind and id from command arguments.
func ParseItemArgs(args string) (model.SourceType, string, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return "", "", fmt.Errorf("usage: <message|file|prediction> <id>")
	}
	src, err := ParseSource(parts[0])
	if err != nil {
		return "", "", err
	}
	return src, parts[1], nil
}

// ParseLimit extracts an optional positive count capped at max.
func ParseLimit(args string, def, max int) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.Fields(s)[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("count must be a positive number")
	}
	if n > max {
		n = max
	}
	return n, nil
}
