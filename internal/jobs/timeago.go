package jobs

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const lookbackParam = "f_TPR"

var timeAgoRe = regexp.MustCompile(`(?i)(\d+)\s*(second|sec|minute|min|hour|hr|day|week|month|year)s?\b`)

// ParseTimeAgo converts relative text such as "3 hours ago" into an absolute
// time relative to now. It returns nil when the text carries no usable signal.
func ParseTimeAgo(text string, now time.Time) *time.Time {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil
	}

	if strings.Contains(text, "just now") || strings.Contains(text, "moments ago") {
		t := now
		return &t
	}

	m := timeAgoRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}

	var t time.Time
	switch m[2] {
	case "second", "sec":
		t = now.Add(-time.Duration(n) * time.Second)
	case "minute", "min":
		t = now.Add(-time.Duration(n) * time.Minute)
	case "hour", "hr":
		t = now.Add(-time.Duration(n) * time.Hour)
	case "day":
		t = now.AddDate(0, 0, -n)
	case "week":
		t = now.AddDate(0, 0, -7*n)
	case "month":
		t = now.AddDate(0, -n, 0)
	case "year":
		t = now.AddDate(-n, 0, 0)
	default:
		return nil
	}

	return &t
}

// LookbackURL sets the posted-within window on a search URL, replacing any
// existing value.
func LookbackURL(base string, window time.Duration) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse search url: %w", err)
	}
	if window <= 0 {
		return u.String(), nil
	}

	q := u.Query()
	q.Set(lookbackParam, fmt.Sprintf("r%d", int64(window/time.Second)))
	u.RawQuery = q.Encode()

	return u.String(), nil
}
