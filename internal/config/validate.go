package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Validate performs business-rule validation on the loaded configuration
// and resolves the derived fields. Load calls it automatically.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}

	users, err := ParseUserIDs(c.Telegram.AllowedUsersRaw)
	if err != nil {
		return fmt.Errorf("telegram.allowed_users: %w", err)
	}
	c.Telegram.AllowedUsers = users

	if err := c.API.validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Reminder.validate(); err != nil {
		return fmt.Errorf("reminder: %w", err)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}
	if c.Feed.PageSize < 1 {
		return fmt.Errorf("feed.page_size must be > 0 (got %d)", c.Feed.PageSize)
	}
	return nil
}

func (a *APIConfig) validate() error {
	if a.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	u, err := url.Parse(a.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q is not an absolute URL", a.BaseURL)
	}
	if a.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if a.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0 (got %v)", a.Timeout)
	}
	return nil
}

func (r *ReminderConfig) validate() error {
	if r.RescanInterval <= 0 {
		return fmt.Errorf("rescan_interval must be > 0 (got %v)", r.RescanInterval)
	}
	if r.Days < 1 {
		return fmt.Errorf("days must be >= 1 (got %d)", r.Days)
	}
	if r.RetentionDays < 0 {
		return fmt.Errorf("retention_days must be >= 0 (got %d)", r.RetentionDays)
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	r.Location = loc
	return nil
}

// ParseUserIDs parses a comma-separated list of Telegram user IDs.
// Blank entries are skipped; an empty string returns a nil slice.
func ParseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q: %w", s, err)
		}
		ids = append(ids, uid)
	}
	return ids, nil
}
