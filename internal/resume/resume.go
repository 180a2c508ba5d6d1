// Package resume builds a candidate profile from a plain-text resume.
package resume

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/spigell/jobhound/internal/skills"
)

var (
	PrimarySkills = []string{
		"PySpark", "Databricks", "AWS", "Python", "SQL", "Apache Spark", "Spark", "Unity Catalog",
	}
	SecondarySkills = []string{
		"Terraform", "Docker", "Git", "Linux", "Airflow", "ETL", "Data Warehousing",
		"Redshift", "S3", "Azure", "Snowflake",
	}
	AdditionalSkills = []string{
		"JavaScript", "C++", "Java", "Node.js", "React", "Looker", "Splunk", "Tableau", "Kafka", "Flink",
	}
	ExpertiseKeywords = []string{
		"pipeline", "migration", "optimization", "consolidation", "cost reduction", "performance",
		"zero-downtime", "real-time", "streaming", "ETL", "data warehouse",
	}
)

var emailRe = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)

// Profile is the candidate profile derived from a resume.
type Profile struct {
	Name              string   `json:"name"`
	Email             string   `json:"email,omitempty"`
	ExperienceYears   int      `json:"experience_years"`
	PrimarySkills     []string `json:"primary_skills"`
	SecondarySkills   []string `json:"secondary_skills"`
	AdditionalSkills  []string `json:"additional_skills"`
	AllSkills         []string `json:"all_skills"`
	ExpertiseKeywords []string `json:"expertise_keywords"`
	RawText           string   `json:"-"`
}

// ParseFile reads a text or markdown resume from path.
func ParseFile(path string) (*Profile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("resume path is not configured")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading resume %q: %w", path, err)
	}

	profile := Parse(string(data))
	if profile.RawText == "" {
		return nil, fmt.Errorf("resume %q is empty", path)
	}

	return profile, nil
}

// Parse extracts a profile from resume text. The name is taken from the
// first non-empty line.
func Parse(text string) *Profile {
	text = strings.TrimSpace(text)

	p := &Profile{
		RawText:           text,
		ExperienceYears:   skills.ExperienceYears(text),
		PrimarySkills:     skills.ExtractEach(text, PrimarySkills),
		SecondarySkills:   skills.ExtractEach(text, SecondarySkills),
		AdditionalSkills:  skills.ExtractEach(text, AdditionalSkills),
		ExpertiseKeywords: skills.Extract(text, ExpertiseKeywords),
	}

	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(strings.TrimLeft(line, "# ")); line != "" {
			p.Name = line
			break
		}
	}

	p.Email = emailRe.FindString(text)

	all := slices.Concat(p.PrimarySkills, p.SecondarySkills, p.AdditionalSkills)
	slices.Sort(all)
	p.AllSkills = slices.Compact(all)

	return p
}

// Skills returns the profile skills lowercased for comparison with the taxonomy.
func (p *Profile) Skills() []string {
	if p == nil {
		return nil
	}
	return skills.Normalize(p.AllSkills)
}
