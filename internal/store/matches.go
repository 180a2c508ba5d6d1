package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/jobhound/internal/match"
)

type matchRow struct {
	JobID              string    `db:"job_id"`
	Technical          float64   `db:"technical"`
	Experience         float64   `db:"experience"`
	Culture            float64   `db:"culture"`
	Total              float64   `db:"total"`
	Classification     string    `db:"classification"`
	Recommendation     string    `db:"recommendation"`
	MatchedSkills      string    `db:"matched_skills"`
	SkillGaps          string    `db:"skill_gaps"`
	TransferableSkills string    `db:"transferable_skills"`
	Strengths          string    `db:"strengths"`
	Weaknesses         string    `db:"weaknesses"`
	InterviewTips      string    `db:"interview_tips"`
	DealBreakers       string    `db:"deal_breakers"`
	Reasoning          string    `db:"reasoning"`
	JobDetails         string    `db:"job_details"`
	LLMAnalysis        bool      `db:"llm_analysis"`
	LLMModel           string    `db:"llm_model"`
	FallbackReason     string    `db:"fallback_reason"`
	MatchedAt          time.Time `db:"matched_at"`
}

const upsertMatchQuery = `
	INSERT INTO matches (
		job_id, technical, experience, culture, total, classification, recommendation,
		matched_skills, skill_gaps, transferable_skills, strengths, weaknesses, interview_tips,
		deal_breakers, reasoning, job_details, llm_analysis, llm_model, fallback_reason, matched_at
	) VALUES (
		:job_id, :technical, :experience, :culture, :total, :classification, :recommendation,
		:matched_skills, :skill_gaps, :transferable_skills, :strengths, :weaknesses, :interview_tips,
		:deal_breakers, :reasoning, :job_details, :llm_analysis, :llm_model, :fallback_reason, :matched_at
	)
	ON CONFLICT (job_id) DO UPDATE SET
		technical = excluded.technical,
		experience = excluded.experience,
		culture = excluded.culture,
		total = excluded.total,
		classification = excluded.classification,
		recommendation = excluded.recommendation,
		matched_skills = excluded.matched_skills,
		skill_gaps = excluded.skill_gaps,
		transferable_skills = excluded.transferable_skills,
		strengths = excluded.strengths,
		weaknesses = excluded.weaknesses,
		interview_tips = excluded.interview_tips,
		deal_breakers = excluded.deal_breakers,
		reasoning = excluded.reasoning,
		job_details = excluded.job_details,
		llm_analysis = excluded.llm_analysis,
		llm_model = excluded.llm_model,
		fallback_reason = excluded.fallback_reason,
		matched_at = excluded.matched_at
`

// UpsertMatch stores the latest match result for a job.
func (s *Store) UpsertMatch(ctx context.Context, r *match.Result) error {
	if r == nil || r.JobID == "" {
		return errors.New("match result without job id")
	}

	row := matchRow{
		JobID:          r.JobID,
		Technical:      r.Scores.Technical,
		Experience:     r.Scores.Experience,
		Culture:        r.Scores.Culture,
		Total:          r.Scores.Total,
		Classification: string(r.Classification),
		Recommendation: string(r.Recommendation),
		Reasoning:      r.Reasoning,
		LLMAnalysis:    r.LLMAnalysis,
		LLMModel:       r.LLMModel,
		FallbackReason: r.FallbackReason,
		MatchedAt:      r.MatchedAt.UTC(),
	}
	if row.MatchedAt.IsZero() {
		row.MatchedAt = s.now().UTC()
	}

	var err error
	encode := func(dst *string, v any) {
		if err != nil {
			return
		}
		var b []byte
		b, err = json.Marshal(v)
		*dst = string(b)
	}
	encode(&row.MatchedSkills, nonNil(r.MatchedSkills))
	encode(&row.SkillGaps, nonNil(r.SkillGaps))
	encode(&row.TransferableSkills, nonNil(r.TransferableSkills))
	encode(&row.Strengths, nonNil(r.Strengths))
	encode(&row.Weaknesses, nonNil(r.Weaknesses))
	encode(&row.InterviewTips, nonNil(r.InterviewTips))
	encode(&row.DealBreakers, nonNil(r.DealBreakers))
	encode(&row.JobDetails, r.JobDetails)
	if err != nil {
		return fmt.Errorf("encoding match %s: %w", r.JobID, err)
	}

	if _, err := s.db.NamedExecContext(ctx, upsertMatchQuery, row); err != nil {
		return fmt.Errorf("upserting match %s: %w", r.JobID, err)
	}
	return nil
}

func (s *Store) GetMatch(ctx context.Context, jobID string) (*match.Result, error) {
	var row matchRow
	query := s.db.Rebind("SELECT * FROM matches WHERE job_id = ?")
	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting match %s: %w", jobID, err)
	}

	r := &match.Result{
		JobID: row.JobID,
		Scores: match.Scores{
			Technical:  row.Technical,
			Experience: row.Experience,
			Culture:    row.Culture,
			Total:      row.Total,
		},
		Classification: match.Classification(row.Classification),
		Recommendation: match.Recommendation(row.Recommendation),
		Reasoning:      row.Reasoning,
		LLMAnalysis:    row.LLMAnalysis,
		LLMModel:       row.LLMModel,
		FallbackReason: row.FallbackReason,
		MatchedAt:      row.MatchedAt,
	}

	fields := []struct {
		raw string
		dst any
	}{
		{row.MatchedSkills, &r.MatchedSkills},
		{row.SkillGaps, &r.SkillGaps},
		{row.TransferableSkills, &r.TransferableSkills},
		{row.Strengths, &r.Strengths},
		{row.Weaknesses, &r.Weaknesses},
		{row.InterviewTips, &r.InterviewTips},
		{row.DealBreakers, &r.DealBreakers},
		{row.JobDetails, &r.JobDetails},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("decoding match %s: %w", jobID, err)
		}
	}

	return r, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
