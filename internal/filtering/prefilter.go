package filtering

import (
	"fmt"
	"strings"

	"github.com/spigell/jobhound/internal/jobs"
	"github.com/spigell/jobhound/internal/skills"
)

const DefaultMinSkillMatches = 3

var (
	DefaultTitleKeywords = []string{
		"data engineer",
		"analytics engineer",
		"data engineering",
		"analytics engineering",
		"etl engineer",
		"ml engineer",
	}

	DefaultRequiredSkills = []string{
		"databricks", "pyspark", "spark", "sql", "python", "etl", "aws", "gcp", "azure",
	}
)

// KeywordsConfig holds the keyword pre-filter thresholds.
type KeywordsConfig struct {
	TitleKeywords   []string
	RequiredSkills  []string
	MinSkillMatches int
}

func (c *KeywordsConfig) withDefaults() KeywordsConfig {
	out := KeywordsConfig{}
	if c != nil {
		out = *c
	}
	if len(out.TitleKeywords) == 0 {
		out.TitleKeywords = DefaultTitleKeywords
	}
	if len(out.RequiredSkills) == 0 {
		out.RequiredSkills = DefaultRequiredSkills
	}
	if out.MinSkillMatches <= 0 {
		out.MinSkillMatches = DefaultMinSkillMatches
	}
	return out
}

// Result is the outcome of evaluating a single posting.
type Result struct {
	Passed        bool
	TitleMatch    bool
	TitleKeywords []string
	SkillMatches  []string
	SkillCount    int
	Reason        string
}

// Evaluate decides whether a posting is worth a full analysis. A posting
// passes when its title contains a title keyword or when at least
// MinSkillMatches required skills appear in its title and description.
// Evaluate has no side effects.
func Evaluate(p *jobs.Posting, cfg *KeywordsConfig) Result {
	c := cfg.withDefaults()
	if p == nil {
		return Result{Reason: "empty posting", SkillMatches: []string{}}
	}

	title := strings.ToLower(p.Title)
	var titleKeywords []string
	for _, kw := range c.TitleKeywords {
		if title != "" && strings.Contains(title, strings.ToLower(kw)) {
			titleKeywords = append(titleKeywords, kw)
		}
	}

	matched := skills.Extract(p.Text(), c.RequiredSkills)

	res := Result{
		TitleMatch:    len(titleKeywords) > 0,
		TitleKeywords: titleKeywords,
		SkillMatches:  matched,
		SkillCount:    len(matched),
	}

	if res.TitleMatch || res.SkillCount >= c.MinSkillMatches {
		res.Passed = true
		res.Reason = fmt.Sprintf("title match: %t, skills: %s", res.TitleMatch, strings.Join(matched, ", "))
	} else {
		res.Reason = fmt.Sprintf("insufficient matches: %d of %d skills (%s)", res.SkillCount, c.MinSkillMatches, strings.Join(matched, ", "))
	}

	return res
}

// Partition splits postings into passed and rejected, recording filter
// metadata on passed postings and a rejection reason on rejected ones.
func Partition(postings []*jobs.Posting, cfg *KeywordsConfig) (passed, rejected []*jobs.Posting) {
	for _, p := range postings {
		if p == nil {
			continue
		}
		res := Evaluate(p, cfg)
		if res.Passed {
			p.FilterMeta = &jobs.FilterMeta{
				TitleMatch:    res.TitleMatch,
				MatchedSkills: res.SkillMatches,
				SkillCount:    res.SkillCount,
				Reason:        res.Reason,
			}
			p.RejectionReason = ""
			passed = append(passed, p)
			continue
		}
		p.FilterMeta = nil
		p.RejectionReason = res.Reason
		rejected = append(rejected, p)
	}
	return passed, rejected
}
