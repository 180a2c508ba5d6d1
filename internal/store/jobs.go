package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobhound/internal/jobs"
)

type jobRow struct {
	JobID          string     `db:"job_id"`
	URL            string     `db:"url"`
	Title          string     `db:"title"`
	Company        string     `db:"company"`
	Location       string     `db:"location"`
	Description    string     `db:"description"`
	EmploymentType string     `db:"employment_type"`
	WorkplaceType  string     `db:"workplace_type"`
	SeniorityLevel string     `db:"seniority_level"`
	TimePostedText string     `db:"time_posted_text"`
	PostedAt       *time.Time `db:"posted_at"`
	ApplicantCount *int       `db:"applicant_count"`
	ScrapedAt      time.Time  `db:"scraped_at"`
	CreatedAt      time.Time  `db:"created_at"`
}

const insertJobQuery = `
	INSERT INTO jobs (
		job_id, url, title, company, location, description, employment_type, workplace_type,
		seniority_level, time_posted_text, posted_at, applicant_count, scraped_at, created_at
	) VALUES (
		:job_id, :url, :title, :company, :location, :description, :employment_type, :workplace_type,
		:seniority_level, :time_posted_text, :posted_at, :applicant_count, :scraped_at, :created_at
	)
	ON CONFLICT (job_id) DO NOTHING
`

// IsNotified reports whether a notification record exists for the job.
func (s *Store) IsNotified(ctx context.Context, jobID string) (bool, error) {
	var count int
	query := s.db.Rebind("SELECT COUNT(1) FROM notifications WHERE job_id = ?")
	if err := s.db.GetContext(ctx, &count, query, jobID); err != nil {
		return false, fmt.Errorf("checking notification for %s: %w", jobID, err)
	}
	return count > 0, nil
}

func (s *Store) IsNew(ctx context.Context, jobID string) (bool, error) {
	notified, err := s.IsNotified(ctx, jobID)
	if err != nil {
		return false, err
	}
	return !notified, nil
}

// PersistJobIfAbsent inserts the posting unless a row with the same job_id
// exists. For existing rows only a missing posted_at is filled in.
func (s *Store) PersistJobIfAbsent(ctx context.Context, p *jobs.Posting) (bool, error) {
	if p == nil || p.ID == "" {
		return false, errors.New("posting without job id")
	}

	now := s.now().UTC()
	row := jobRow{
		JobID:          p.ID,
		URL:            p.URL,
		Title:          p.Title,
		Company:        p.Company,
		Location:       p.Location,
		Description:    p.Description,
		EmploymentType: p.EmploymentType,
		WorkplaceType:  p.WorkplaceType,
		SeniorityLevel: p.SeniorityLevel,
		TimePostedText: p.TimePostedText,
		PostedAt:       utcPtr(p.PostedAt),
		ApplicantCount: p.ApplicantCount,
		ScrapedAt:      p.ScrapedAt.UTC(),
		CreatedAt:      now,
	}
	if row.ScrapedAt.IsZero() {
		row.ScrapedAt = now
	}

	res, err := s.db.NamedExecContext(ctx, insertJobQuery, row)
	if err != nil {
		return false, fmt.Errorf("persisting job %s: %w", p.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("persisting job %s: %w", p.ID, err)
	}
	if affected > 0 {
		return true, nil
	}

	if row.PostedAt != nil {
		query := s.db.Rebind("UPDATE jobs SET posted_at = ? WHERE job_id = ? AND posted_at IS NULL")
		res, err := s.db.ExecContext(ctx, query, *row.PostedAt, p.ID)
		if err != nil {
			return false, fmt.Errorf("back-filling posted_at for %s: %w", p.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			s.logger.Debug("back-filled posted_at", zap.String("job_id", p.ID))
		}
	}

	return false, nil
}

// GetJob loads a persisted posting.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.Posting, error) {
	var row jobRow
	query := s.db.Rebind("SELECT * FROM jobs WHERE job_id = ?")
	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting job %s: %w", jobID, err)
	}

	return &jobs.Posting{
		ID:             row.JobID,
		URL:            row.URL,
		Title:          row.Title,
		Company:        row.Company,
		Location:       row.Location,
		Description:    row.Description,
		EmploymentType: row.EmploymentType,
		WorkplaceType:  row.WorkplaceType,
		SeniorityLevel: row.SeniorityLevel,
		TimePostedText: row.TimePostedText,
		PostedAt:       row.PostedAt,
		ApplicantCount: row.ApplicantCount,
		ScrapedAt:      row.ScrapedAt,
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
