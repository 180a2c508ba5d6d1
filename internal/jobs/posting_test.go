package jobs

import (
	"net/url"
	"os"
	"testing"
	"time"
)

func TestIDIgnoresTrackingParameters(t *testing.T) {
	t.Parallel()

	base := "https://www.linkedin.com/jobs/view/data-engineer-at-acme-4012345678"
	variants := []string{
		base,
		base + "/",
		base + "?refId=abc&trackingId=xyz",
		base + "?trk=public_jobs_topcard-title#section",
		"HTTPS://WWW.LinkedIn.com/jobs/view/data-engineer-at-acme-4012345678?position=3",
	}

	want := ID(base)
	for _, v := range variants {
		if got := ID(v); got != want {
			t.Fatalf("expected %s for %q, got %s", want, v, got)
		}
	}

	if ID("https://www.linkedin.com/jobs/view/other-4099999999") == want {
		t.Fatalf("different paths must not collide")
	}
}

func TestNewPostingUsesCanonicalURL(t *testing.T) {
	p := NewPosting(" https://example.com/jobs/1?utm_source=x ", " Data Engineer ", "Acme ")
	if p.URL != "https://example.com/jobs/1" {
		t.Fatalf("unexpected canonical url: %s", p.URL)
	}
	if p.ID != ID("https://example.com/jobs/1") {
		t.Fatalf("unexpected id: %s", p.ID)
	}
	if p.Title != "Data Engineer" || p.Company != "Acme" {
		t.Fatalf("expected trimmed fields, got %+v", p)
	}
}

func TestCanonicalURLKeepsUnparseableInput(t *testing.T) {
	if got := CanonicalURL("not a url"); got != "not a url" {
		t.Fatalf("unexpected canonical form: %q", got)
	}
}

func TestPostingsExcludeAndDedup(t *testing.T) {
	postings := &Postings{Items: []*Posting{
		{ID: "1", Company: "Acme"},
		{ID: "2", Company: "Globex"},
		{ID: "1", Company: "Acme"},
		{ID: "3", Company: "initech"},
	}}

	if dropped := postings.Dedup(); dropped != 1 {
		t.Fatalf("expected 1 duplicate dropped, got %d", dropped)
	}

	removed := postings.Exclude(PostingCompanyField, []string{"ACME", " Initech "})
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed, got %v", removed)
	}
	if postings.Len() != 1 || postings.Items[0].ID != "2" {
		t.Fatalf("unexpected remaining postings: %v", postings.IDs())
	}
}

func TestReportByCompany(t *testing.T) {
	posted := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	count := 12
	postings := &Postings{Items: []*Posting{
		{ID: "1", Title: "Data Engineer", Company: "Acme", URL: "https://example.com/1", PostedAt: &posted, ApplicantCount: &count},
		{ID: "2", Title: "ETL Engineer"},
	}}

	report := postings.ReportByCompany()
	entry := report["Acme"][0]
	if entry["posted_at"] != "2024-05-01 10:30" || entry["applicants"] != "12" {
		t.Fatalf("unexpected report entry: %v", entry)
	}
	if len(report["unknown"]) != 1 {
		t.Fatalf("expected posting without company under unknown")
	}
}

func TestDumpToTmpFile(t *testing.T) {
	postings := &Postings{Items: []*Posting{{ID: "1", Title: "Data Engineer"}}}
	name, err := postings.DumpToTmpFile()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer os.Remove(name)

	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("reading dump: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected dump to be non-empty")
	}
}

func TestParseTimeAgo(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		input  string
		expect *time.Time
	}{
		{name: "empty", input: "", expect: nil},
		{name: "no signal", input: "Reposted", expect: nil},
		{name: "just now", input: "Just now", expect: ptr(now)},
		{name: "minutes", input: "15 minutes ago", expect: ptr(now.Add(-15 * time.Minute))},
		{name: "hours", input: "3 hours ago", expect: ptr(now.Add(-3 * time.Hour))},
		{name: "single hour", input: "1 hour ago", expect: ptr(now.Add(-time.Hour))},
		{name: "days", input: "Reposted 2 days ago", expect: ptr(now.AddDate(0, 0, -2))},
		{name: "weeks", input: "1 week ago", expect: ptr(now.AddDate(0, 0, -7))},
		{name: "months", input: "2 months ago", expect: ptr(now.AddDate(0, -2, 0))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseTimeAgo(tt.input, now)
			switch {
			case tt.expect == nil && got != nil:
				t.Fatalf("expected nil, got %v", got)
			case tt.expect != nil && got == nil:
				t.Fatalf("expected %v, got nil", tt.expect)
			case tt.expect != nil && !got.Equal(*tt.expect):
				t.Fatalf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestLookbackURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		base   string
		window time.Duration
		expect string
	}{
		{
			name:   "appends window",
			base:   "https://www.linkedin.com/jobs/search/?keywords=data%20engineer",
			window: time.Hour,
			expect: "r3600",
		},
		{
			name:   "replaces existing window",
			base:   "https://www.linkedin.com/jobs/search/?f_TPR=r86400&keywords=data",
			window: 12 * time.Hour,
			expect: "r43200",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := LookbackURL(tt.base, tt.window)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			u, err := url.Parse(got)
			if err != nil {
				t.Fatalf("result is not a url: %v", err)
			}
			values := u.Query()[lookbackParam]
			if len(values) != 1 || values[0] != tt.expect {
				t.Fatalf("expected single %s=%s, got %v", lookbackParam, tt.expect, values)
			}
			if u.Query().Get("keywords") == "" {
				t.Fatalf("expected other parameters to be preserved: %s", got)
			}
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }
