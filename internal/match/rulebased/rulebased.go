// Package rulebased scores postings with deterministic keyword rules. It has
// no external dependencies and always produces a result.
package rulebased

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobhound/internal/jobs"
	"github.com/spigell/jobhound/internal/match"
	"github.com/spigell/jobhound/internal/resume"
	"github.com/spigell/jobhound/internal/skills"
)

const (
	Name = "rule_based"

	DefaultFallbackReason = "rule-based analysis (LLM unavailable)"

	cultureScore       = 80.0
	criticalBoost      = 10.0
	neutralSkillMatch  = 50.0
	maxTransferable    = 5
	maxKeyTechnologies = 8
)

var cloudPlatforms = []string{"aws", "azure", "gcp"}

// Matcher implements match.Strategy.
type Matcher struct {
	logger *zap.Logger
	now    func() time.Time
	score  func(*jobs.Posting, *resume.Profile) *match.Result
}

func New(logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{logger: logger, now: time.Now, score: Score}
}

func (m *Matcher) Name() string { return Name }

// Match scores every posting. A failure for one posting yields a neutral
// fallback result for that posting only; Outcome.Err is always nil.
func (m *Matcher) Match(_ context.Context, postings []*jobs.Posting, profile *resume.Profile) match.Outcome {
	results := make(map[string]*match.Result, len(postings))
	for _, p := range postings {
		if p == nil {
			continue
		}
		results[p.ID] = m.matchOne(p, profile)
	}
	return match.Outcome{Results: results}
}

func (m *Matcher) matchOne(p *jobs.Posting, profile *resume.Profile) (res *match.Result) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("rule-based matching failed", zap.String("job_id", p.ID), zap.Any("panic", r))
			res = errorResult(p.ID, fmt.Sprint(r), m.now())
		}
	}()

	res = m.score(p, profile)
	res.MatchedAt = m.now()

	m.logger.Debug("rule-based match complete",
		zap.String("job_id", p.ID),
		zap.Float64("total", res.Scores.Total),
		zap.String("classification", string(res.Classification)),
	)

	return res
}

// Score computes the rule-based result for one posting.
func Score(p *jobs.Posting, profile *resume.Profile) *match.Result {
	description := p.Description
	jobSkills := skills.Extract(p.Text(), skills.All())
	resumeSkills := profile.Skills()

	skillPct, matched, missing := skillMatch(resumeSkills, jobSkills)

	requiredYears := skills.ExperienceYears(description)
	level := skills.SeniorityLevel(description)
	candidateYears := 0
	if profile != nil {
		candidateYears = profile.ExperienceYears
	}
	experience := ExperienceScore(candidateYears, requiredYears, level)

	technical := skillPct
	critical := 0
	for _, s := range matched {
		if slices.Contains(skills.CriticalSkills, s) {
			critical++
		}
	}
	if critical >= 2 {
		technical = min(technical+criticalBoost, 100)
	}

	redFlags := skills.RedFlags(description)
	total := match.Total(technical, experience, cultureScore)
	classification, recommendation := match.Classify(total, redFlags)

	details := match.JobDetails{
		KeyTechnologies: keyTechnologies(description),
	}
	if requiredYears > 0 {
		details.RequiredExperienceYears = &requiredYears
	}
	roleLevel := string(level)
	details.RoleLevel = &roleLevel

	return &match.Result{
		JobID: p.ID,
		Scores: match.Scores{
			Technical:  match.Round(technical),
			Experience: match.Round(experience),
			Culture:    cultureScore,
			Total:      total,
		},
		Classification:     classification,
		Recommendation:     recommendation,
		MatchedSkills:      match.Cap(matched, match.MaxSkillList),
		SkillGaps:          match.Cap(missing, match.MaxSkillList),
		TransferableSkills: transferable(resumeSkills, jobSkills),
		Strengths:          strengths(matched, experience),
		Weaknesses:         weaknesses(missing, experience, redFlags),
		InterviewTips:      interviewTips(matched, missing),
		DealBreakers:       match.Cap(redFlags, match.MaxSkillList),
		Reasoning:          reasoning(total, len(matched), experience),
		JobDetails:         details,
		FallbackReason:     DefaultFallbackReason,
	}
}

// ExperienceScore compares candidate years with the requirement. A zero
// requirement is replaced with the default for the seniority level.
func ExperienceScore(candidate, required int, level skills.Seniority) float64 {
	if required <= 0 {
		required = skills.DefaultYears[level]
		if required == 0 {
			required = skills.DefaultYears[skills.SeniorityMid]
		}
	}

	ratio := float64(candidate) / float64(required)
	switch {
	case ratio >= 1:
		return 100
	case ratio >= 0.7:
		return 80
	case ratio >= 0.5:
		return 60
	default:
		return 40
	}
}

func skillMatch(resumeSkills, jobSkills []string) (float64, []string, []string) {
	if len(jobSkills) == 0 {
		return neutralSkillMatch, []string{}, []string{}
	}

	matched := []string{}
	missing := []string{}
	for _, s := range jobSkills {
		if slices.Contains(resumeSkills, s) {
			matched = append(matched, s)
		} else {
			missing = append(missing, s)
		}
	}

	return float64(len(matched)) / float64(len(jobSkills)) * 100, matched, missing
}

func transferable(resumeSkills, jobSkills []string) []string {
	out := []string{}
	for _, family := range skills.Families {
		var jobInFamily bool
		for _, s := range jobSkills {
			if slices.Contains(family, s) {
				jobInFamily = true
				break
			}
		}
		if !jobInFamily {
			continue
		}
		for _, s := range resumeSkills {
			if slices.Contains(family, s) && !slices.Contains(jobSkills, s) && !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return match.Cap(out, maxTransferable)
}

func keyTechnologies(description string) []string {
	found := skills.Extract(description, skills.All())
	out := []string{}
	for _, category := range skills.KeyTechnologyOrder {
		for _, s := range found {
			if slices.Contains(skills.Taxonomy[category], s) && !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return match.Cap(out, maxKeyTechnologies)
}

func strengths(matched []string, experience float64) []string {
	var out []string

	switch n := len(matched); {
	case n >= 5:
		out = append(out, fmt.Sprintf("Strong technical match with %d relevant skills", n))
	case n >= 3:
		out = append(out, fmt.Sprintf("Good skill alignment with %d key technologies", n))
	}

	if experience >= 80 {
		out = append(out, "Experience level matches or exceeds requirements")
	}

	var premium, cloud []string
	for _, s := range matched {
		if slices.Contains(skills.PremiumSkills, s) {
			premium = append(premium, s)
		}
		if slices.Contains(cloudPlatforms, s) {
			cloud = append(cloud, s)
		}
	}
	if len(premium) > 0 {
		out = append(out, "Expertise in high-demand tools: "+strings.Join(premium[:min(2, len(premium))], ", "))
	}
	if len(cloud) > 0 {
		out = append(out, "Cloud platform experience: "+strings.Join(cloud, ", "))
	}

	if len(out) == 0 {
		return []string{"Profile shows relevant technical background"}
	}
	return match.Cap(out, 4)
}

func weaknesses(missing []string, experience float64, redFlags []string) []string {
	var out []string

	switch {
	case len(missing) >= 3:
		out = append(out, fmt.Sprintf("Missing %d required skills: %s", len(missing), strings.Join(missing[:3], ", ")))
	case len(missing) > 0:
		out = append(out, "Skill gap in: "+strings.Join(missing, ", "))
	}

	if experience < 60 {
		out = append(out, "Experience level below requirement")
	}

	if len(redFlags) > 0 {
		out = append(out, "Potential concerns: "+redFlags[0])
	}

	if len(out) == 0 {
		return []string{"Limited information to assess full fit"}
	}
	return match.Cap(out, 3)
}

func interviewTips(matched, missing []string) []string {
	var out []string
	if len(matched) > 0 {
		out = append(out, "Emphasize experience with "+strings.Join(matched[:min(3, len(matched))], ", "))
	}
	if len(missing) > 0 {
		out = append(out, "Prepare to discuss how you'd learn: "+strings.Join(missing[:min(2, len(missing))], ", "))
	}
	out = append(out, "Research company's data infrastructure and recent projects")
	return match.Cap(out, 3)
}

func reasoning(total float64, matched int, experience float64) string {
	var s string
	switch {
	case total >= 70:
		s = fmt.Sprintf("Strong fit: %d matching skills, %d%% exp match", matched, int(experience))
	case total >= 50:
		s = fmt.Sprintf("Moderate fit: %d skills match, consider skill gaps", matched)
	default:
		s = fmt.Sprintf("Weak fit: only %d skills match, significant gaps", matched)
	}
	return match.TruncateRunes(s, match.MaxReasoningLength)
}

func errorResult(jobID, msg string, now time.Time) *match.Result {
	return &match.Result{
		JobID:              jobID,
		Scores:             match.Scores{Technical: 50, Experience: 50, Culture: 50, Total: 50},
		Classification:     match.Fair,
		Recommendation:     match.Consider,
		MatchedSkills:      []string{},
		SkillGaps:          []string{},
		TransferableSkills: []string{},
		Strengths:          []string{"Analysis failed - manual review needed"},
		Weaknesses:         []string{"Could not complete automated analysis"},
		InterviewTips:      []string{"Review job description manually"},
		DealBreakers:       []string{},
		Reasoning:          "Automated analysis encountered errors",
		JobDetails:         match.JobDetails{KeyTechnologies: []string{}},
		FallbackReason:     "rule-based analysis error: " + match.TruncateRunes(msg, 50),
		MatchedAt:          now,
	}
}
