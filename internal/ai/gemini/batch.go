package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/jobhound/internal/ai"
	"github.com/spigell/jobhound/internal/jobs"
	"github.com/spigell/jobhound/internal/logger"
	"github.com/spigell/jobhound/internal/match"
	"github.com/spigell/jobhound/internal/resume"
	"github.com/spigell/jobhound/internal/utils"
)

// ErrInvalidShape is returned when the response lacks the results array.
var ErrInvalidShape = errors.New("invalid response shape")

//go:embed prompt.md
var promptTemplate string

const (
	DefaultDescriptionBudget = 2500
	defaultMaxLogLength      = 200
)

// BatchStrategy scores a batch of postings with a single completion request.
type BatchStrategy struct {
	generator         ai.Generator
	logger            *zap.Logger
	descriptionBudget int
	maxLogLen         int
	now               func() time.Time
}

var _ match.Strategy = (*BatchStrategy)(nil)

func NewBatchStrategy(generator ai.Generator, log *zap.Logger, descriptionBudget, maxLogLength int) *BatchStrategy {
	if descriptionBudget <= 0 {
		descriptionBudget = DefaultDescriptionBudget
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &BatchStrategy{
		generator:         generator,
		logger:            logger.WithCommonFields(log, "gemini", generator.Model()),
		descriptionBudget: descriptionBudget,
		maxLogLen:         maxLogLength,
		now:               time.Now,
	}
}

func (s *BatchStrategy) Name() string {
	return s.generator.Model()
}

func (s *BatchStrategy) Match(ctx context.Context, postings []*jobs.Posting, profile *resume.Profile) match.Outcome {
	if len(postings) == 0 {
		return match.Outcome{Results: map[string]*match.Result{}}
	}

	prompt, err := s.buildPrompt(postings, profile)
	if err != nil {
		return match.Outcome{Err: err}
	}

	s.logger.Debug("gemini batch request",
		zap.Int("jobs", len(postings)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, s.maxLogLen)),
	)

	raw, err := s.generator.Complete(ctx, prompt, responseSchema)
	if err != nil {
		return match.Outcome{Err: err}
	}

	s.logger.Debug("gemini batch response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, s.maxLogLen)),
	)

	entries, err := parseResponse(raw)
	if err != nil {
		return match.Outcome{Err: err}
	}

	known := make(map[string]struct{}, len(postings))
	for _, p := range postings {
		known[p.ID] = struct{}{}
	}

	now := s.now()
	results := make(map[string]*match.Result, len(entries))
	for i, entry := range entries {
		res, err := decodeResult(entry)
		if err != nil {
			s.logger.Warn("skipping malformed result entry", zap.Int("index", i), zap.Error(err))
			continue
		}
		res.JobID = strings.TrimSpace(res.JobID)
		if _, ok := known[res.JobID]; !ok {
			s.logger.Warn("skipping result for unknown job", zap.String("job_id", res.JobID))
			continue
		}

		res.Normalize()
		res.LLMAnalysis = true
		res.LLMModel = s.generator.Model()
		res.FallbackReason = ""
		res.MatchedAt = now
		results[res.JobID] = res
	}

	s.logger.Info("gemini batch analysis completed",
		zap.Int("jobs", len(postings)),
		zap.Int("results", len(results)),
	)

	return match.Outcome{Results: results}
}

type promptJob struct {
	JobID          string `json:"job_id"`
	Title          string `json:"title"`
	Company        string `json:"company"`
	Location       string `json:"location,omitempty"`
	Description    string `json:"description"`
	EmploymentType string `json:"employment_type,omitempty"`
	SeniorityLevel string `json:"seniority_level,omitempty"`
	WorkplaceType  string `json:"workplace_type,omitempty"`
}

type promptCandidate struct {
	ExperienceYears   int      `json:"experience_years"`
	PrimarySkills     []string `json:"primary_skills"`
	SecondarySkills   []string `json:"secondary_skills"`
	AdditionalSkills  []string `json:"additional_skills"`
	ExpertiseKeywords []string `json:"expertise"`
}

func (s *BatchStrategy) buildPrompt(postings []*jobs.Posting, profile *resume.Profile) (string, error) {
	payload := make([]promptJob, 0, len(postings))
	for _, p := range postings {
		payload = append(payload, promptJob{
			JobID:          p.ID,
			Title:          p.Title,
			Company:        p.Company,
			Location:       p.Location,
			Description:    match.TruncateRunes(p.Description, s.descriptionBudget),
			EmploymentType: p.EmploymentType,
			SeniorityLevel: p.SeniorityLevel,
			WorkplaceType:  p.WorkplaceType,
		})
	}

	jobsJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal jobs payload: %w", err)
	}

	var candidate promptCandidate
	if profile != nil {
		candidate = promptCandidate{
			ExperienceYears:   profile.ExperienceYears,
			PrimarySkills:     profile.PrimarySkills,
			SecondarySkills:   profile.SecondarySkills,
			AdditionalSkills:  profile.AdditionalSkills,
			ExpertiseKeywords: profile.ExpertiseKeywords,
		}
	}
	candidateJSON, err := json.MarshalIndent(candidate, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidate payload: %w", err)
	}

	prompt := strings.ReplaceAll(promptTemplate, "{{JOB_COUNT}}", strconv.Itoa(len(postings)))
	prompt = strings.ReplaceAll(prompt, "{{CANDIDATE_JSON}}", string(candidateJSON))
	prompt = strings.ReplaceAll(prompt, "{{JOBS_JSON}}", string(jobsJSON))
	return prompt, nil
}

func parseResponse(raw string) ([]map[string]any, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	items, ok := data["results"].([]any)
	if !ok {
		return nil, ErrInvalidShape
	}

	entries := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if entry, ok := item.(map[string]any); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func decodeResult(entry map[string]any) (*match.Result, error) {
	res := &match.Result{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           res,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(entry); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return res, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

var (
	stringList   = &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
	nullableText = &genai.Schema{Type: genai.TypeString, Nullable: genai.Ptr(true)}

	responseSchema = &genai.Schema{
		Type:     genai.TypeObject,
		Required: []string{"results"},
		Properties: map[string]*genai.Schema{
			"results": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Required: []string{
						"job_id", "scores", "classification", "recommendation", "matched_skills",
						"skill_gaps", "reasoning",
					},
					Properties: map[string]*genai.Schema{
						"job_id": {Type: genai.TypeString},
						"scores": {
							Type:     genai.TypeObject,
							Required: []string{"technical", "experience", "culture", "total"},
							Properties: map[string]*genai.Schema{
								"technical":  {Type: genai.TypeNumber},
								"experience": {Type: genai.TypeNumber},
								"culture":    {Type: genai.TypeNumber},
								"total":      {Type: genai.TypeNumber},
							},
						},
						"classification": {
							Type: genai.TypeString,
							Enum: []string{string(match.Excellent), string(match.Good), string(match.Fair), string(match.Poor)},
						},
						"recommendation": {
							Type: genai.TypeString,
							Enum: []string{string(match.ApplyImmediately), string(match.Apply), string(match.Consider), string(match.Skip)},
						},
						"matched_skills":      stringList,
						"skill_gaps":          stringList,
						"transferable_skills": stringList,
						"strengths":           stringList,
						"weaknesses":          stringList,
						"interview_tips":      stringList,
						"deal_breakers":       stringList,
						"reasoning":           {Type: genai.TypeString},
						"parsed_job_details": {
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"required_experience_years": {Type: genai.TypeInteger, Nullable: genai.Ptr(true)},
								"key_technologies":          stringList,
								"team_size":                 nullableText,
								"role_level":                nullableText,
							},
						},
					},
				},
			},
		},
	}
)
