package jobs

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
)

type Postings struct {
	Items []*Posting
}

func (p *Postings) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Items)
}

// IDs returns the posting IDs in their current order.
func (p *Postings) IDs() []string {
	ids := make([]string, 0, p.Len())
	for _, item := range p.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

// Exclude removes postings whose field value is in values and returns the
// IDs of removed postings. Comparison is case-insensitive.
func (p *Postings) Exclude(field string, values []string) []string {
	if p == nil || len(values) == 0 {
		return nil
	}

	normalized := make([]string, 0, len(values))
	for _, v := range values {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(v)))
	}

	var removed []string
	kept := p.Items[:0]
	for _, item := range p.Items {
		value := strings.ToLower(strings.TrimSpace(item.GetStringField(field)))
		if value != "" && slices.Contains(normalized, value) {
			removed = append(removed, item.ID)
			continue
		}
		kept = append(kept, item)
	}

	clear(p.Items[len(kept):])
	p.Items = kept

	return removed
}

// Dedup removes postings with repeated IDs keeping the first occurrence.
func (p *Postings) Dedup() int {
	if p == nil {
		return 0
	}

	seen := make(map[string]struct{}, len(p.Items))
	kept := p.Items[:0]
	for _, item := range p.Items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		kept = append(kept, item)
	}

	dropped := len(p.Items) - len(kept)
	clear(p.Items[len(kept):])
	p.Items = kept

	return dropped
}

// ReportByCompany groups postings by company for log output.
func (p *Postings) ReportByCompany() map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	if p == nil {
		return report
	}

	for _, item := range p.Items {
		company := item.Company
		if company == "" {
			company = "unknown"
		}

		entry := map[string]string{
			"title": item.Title,
			"url":   item.URL,
		}
		if item.Location != "" {
			entry["location"] = item.Location
		}
		if item.PostedAt != nil {
			entry["posted_at"] = item.PostedAt.Format("2006-01-02 15:04")
		}
		if item.ApplicantCount != nil {
			entry["applicants"] = fmt.Sprintf("%d", *item.ApplicantCount)
		}

		report[company] = append(report[company], entry)
	}

	return report
}

// DumpToTmpFile writes the postings as indented JSON to a temp file.
func (p *Postings) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "postings_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return "", err
	}
	return file.Name(), nil
}

func (p *Posting) GetStringField(name string) string {
	switch name {
	case PostingIDField:
		return p.ID
	case PostingCompanyField:
		return p.Company
	default:
		return ""
	}
}
