// Package match defines match results and the ordered strategy chain used to
// score postings against a candidate profile.
package match

import (
	"math"
	"strings"
	"time"
)

type Classification string

const (
	Poor      Classification = "POOR"
	Fair      Classification = "FAIR"
	Good      Classification = "GOOD"
	Excellent Classification = "EXCELLENT"
)

var classificationRank = map[Classification]int{Poor: 0, Fair: 1, Good: 2, Excellent: 3}

// rank orders classifications; unknown values rank below POOR.
func (c Classification) rank() int {
	if r, ok := classificationRank[c]; ok {
		return r
	}
	return -1
}

func (c Classification) Valid() bool {
	return c.rank() >= 0
}

type Recommendation string

const (
	Skip             Recommendation = "SKIP"
	Consider         Recommendation = "CONSIDER"
	Apply            Recommendation = "APPLY"
	ApplyImmediately Recommendation = "APPLY_IMMEDIATELY"
)

func (r Recommendation) Valid() bool {
	switch r {
	case Skip, Consider, Apply, ApplyImmediately:
		return true
	default:
		return false
	}
}

const (
	WeightTechnical  = 0.6
	WeightExperience = 0.3
	WeightCulture    = 0.1

	MaxReasoningLength = 150
	MaxSkillList       = 10
)

type Scores struct {
	Technical  float64 `json:"technical" mapstructure:"technical"`
	Experience float64 `json:"experience" mapstructure:"experience"`
	Culture    float64 `json:"culture" mapstructure:"culture"`
	Total      float64 `json:"total" mapstructure:"total"`
}

// JobDetails holds requirements parsed from the posting during matching.
type JobDetails struct {
	RequiredExperienceYears *int     `json:"required_experience_years,omitempty" mapstructure:"required_experience_years"`
	KeyTechnologies         []string `json:"key_technologies" mapstructure:"key_technologies"`
	TeamSize                *string  `json:"team_size,omitempty" mapstructure:"team_size"`
	RoleLevel               *string  `json:"role_level,omitempty" mapstructure:"role_level"`
}

// Result is the scored match of one posting against the candidate profile.
type Result struct {
	JobID              string         `json:"job_id" mapstructure:"job_id"`
	Scores             Scores         `json:"scores" mapstructure:"scores"`
	Classification     Classification `json:"classification" mapstructure:"classification"`
	Recommendation     Recommendation `json:"recommendation" mapstructure:"recommendation"`
	MatchedSkills      []string       `json:"matched_skills" mapstructure:"matched_skills"`
	SkillGaps          []string       `json:"skill_gaps" mapstructure:"skill_gaps"`
	TransferableSkills []string       `json:"transferable_skills" mapstructure:"transferable_skills"`
	Strengths          []string       `json:"strengths" mapstructure:"strengths"`
	Weaknesses         []string       `json:"weaknesses" mapstructure:"weaknesses"`
	InterviewTips      []string       `json:"interview_tips" mapstructure:"interview_tips"`
	DealBreakers       []string       `json:"deal_breakers" mapstructure:"deal_breakers"`
	Reasoning          string         `json:"reasoning" mapstructure:"reasoning"`
	JobDetails         JobDetails     `json:"parsed_job_details" mapstructure:"parsed_job_details"`

	LLMAnalysis    bool      `json:"llm_analysis" mapstructure:"-"`
	LLMModel       string    `json:"llm_model,omitempty" mapstructure:"-"`
	FallbackReason string    `json:"fallback_reason,omitempty" mapstructure:"-"`
	MatchedAt      time.Time `json:"matched_at" mapstructure:"-"`
}

// Total combines sub-scores with the fixed weights.
func Total(technical, experience, culture float64) float64 {
	return Round(WeightTechnical*technical + WeightExperience*experience + WeightCulture*culture)
}

// Classify maps a total score and deal breakers to a tier and recommendation.
// Any deal breaker downgrades EXCELLENT to GOOD and forces CONSIDER.
func Classify(total float64, dealBreakers []string) (Classification, Recommendation) {
	var (
		c Classification
		r Recommendation
	)

	switch {
	case total >= 80:
		c, r = Excellent, Apply
	case total >= 65:
		c, r = Good, Apply
	case total >= 50:
		c, r = Fair, Consider
	default:
		c, r = Poor, Skip
	}

	if len(dealBreakers) > 0 {
		if c == Excellent {
			c = Good
		}
		r = Consider
	}

	return c, r
}

// Normalize clamps scores, keeps the total consistent with the sub-scores,
// repairs invalid enums and caps list lengths.
func (r *Result) Normalize() {
	r.Scores.Technical = Clamp(r.Scores.Technical)
	r.Scores.Experience = Clamp(r.Scores.Experience)
	r.Scores.Culture = Clamp(r.Scores.Culture)

	derived := Total(r.Scores.Technical, r.Scores.Experience, r.Scores.Culture)
	if math.Abs(Clamp(r.Scores.Total)-derived) > 1 {
		r.Scores.Total = derived
	} else {
		r.Scores.Total = Round(Clamp(r.Scores.Total))
	}

	r.DealBreakers = Cap(r.DealBreakers, MaxSkillList)

	// Classification always follows the total; a valid recommendation from
	// the source is kept unless deal breakers force CONSIDER.
	c, rec := Classify(r.Scores.Total, r.DealBreakers)
	r.Classification = c
	r.Recommendation = Recommendation(strings.ToUpper(strings.TrimSpace(string(r.Recommendation))))
	if !r.Recommendation.Valid() || len(r.DealBreakers) > 0 {
		r.Recommendation = rec
	}

	r.MatchedSkills = Cap(r.MatchedSkills, MaxSkillList)
	r.SkillGaps = Cap(r.SkillGaps, MaxSkillList)
	r.TransferableSkills = Cap(r.TransferableSkills, 5)
	r.Strengths = Cap(r.Strengths, 4)
	r.Weaknesses = Cap(r.Weaknesses, 3)
	r.InterviewTips = Cap(r.InterviewTips, 3)
	r.JobDetails.KeyTechnologies = Cap(r.JobDetails.KeyTechnologies, 8)
	r.Reasoning = TruncateRunes(strings.TrimSpace(r.Reasoning), MaxReasoningLength)
}

// Clamp bounds v to [0, 100]; NaN becomes 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// Round rounds to one decimal place.
func Round(v float64) float64 {
	return math.Round(v*10) / 10
}

// Cap returns at most n non-empty entries of in. It never returns nil.
func Cap(in []string, n int) []string {
	out := make([]string, 0, min(len(in), n))
	for _, s := range in {
		if len(out) == n {
			break
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// TruncateRunes shortens s to at most n runes.
func TruncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
