package jobs

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

const (
	PostingIDField      = "ID"
	PostingCompanyField = "Company"
)

// Posting is a single job posting as scraped from the source.
type Posting struct {
	ID             string     `json:"job_id"`
	URL            string     `json:"url"`
	Title          string     `json:"title"`
	Company        string     `json:"company"`
	Location       string     `json:"location,omitempty"`
	Description    string     `json:"description,omitempty"`
	EmploymentType string     `json:"employment_type,omitempty"`
	WorkplaceType  string     `json:"workplace_type,omitempty"`
	SeniorityLevel string     `json:"seniority_level,omitempty"`
	TimePostedText string     `json:"time_posted_text,omitempty"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
	ApplicantCount *int       `json:"applicant_count,omitempty"`
	ScrapedAt      time.Time  `json:"scraped_at"`

	FilterMeta      *FilterMeta `json:"filter_meta,omitempty"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
}

// FilterMeta records why a posting passed the keyword pre-filter.
type FilterMeta struct {
	TitleMatch    bool     `json:"title_match"`
	MatchedSkills []string `json:"matched_skills"`
	SkillCount    int      `json:"skill_count"`
	Reason        string   `json:"reason"`
}

// NewPosting builds a posting with a canonical URL and a derived ID.
func NewPosting(rawURL, title, company string) *Posting {
	canonical := CanonicalURL(rawURL)
	return &Posting{
		ID:      ID(canonical),
		URL:     canonical,
		Title:   strings.TrimSpace(title),
		Company: strings.TrimSpace(company),
	}
}

// Text returns the title and description joined for keyword scanning.
func (p *Posting) Text() string {
	if p == nil {
		return ""
	}
	return p.Title + " " + p.Description
}

// CanonicalURL strips the query string and fragment so tracking parameters
// do not change the identity of a posting.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	path := strings.TrimRight(u.EscapedPath(), "/")
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
}

// ID returns the hex MD5 digest of the canonical form of rawURL.
func ID(rawURL string) string {
	sum := md5.Sum([]byte(CanonicalURL(rawURL)))
	return hex.EncodeToString(sum[:])
}
