package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Notification statuses. The first three mirror the notifier results.
const (
	StatusSuccess         = "success"
	StatusErrorNoWebhook  = "error_no_webhook"
	StatusErrorSendFailed = "error_send_failed"
	StatusSkippedLowScore = "skipped_low_score"
	StatusError           = "error"
)

// Notification is the per-job outcome record. It is written once per job.
type Notification struct {
	JobID          string    `db:"job_id" json:"job_id"`
	RunID          string    `db:"run_id" json:"run_id"`
	RunType        string    `db:"run_type" json:"run_type"`
	Title          string    `db:"title" json:"title"`
	Company        string    `db:"company" json:"company"`
	Location       string    `db:"location" json:"location"`
	Score          float64   `db:"score" json:"score"`
	Classification string    `db:"classification" json:"classification"`
	Recommendation string    `db:"recommendation" json:"recommendation"`
	LLMAnalysis    bool      `db:"llm_analysis" json:"llm_analysis"`
	Status         string    `db:"status" json:"status"`
	Detail         string    `db:"detail" json:"detail,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

const insertNotificationQuery = `
	INSERT INTO notifications (
		job_id, run_id, run_type, title, company, location, score, classification,
		recommendation, llm_analysis, status, detail, created_at
	) VALUES (
		:job_id, :run_id, :run_type, :title, :company, :location, :score, :classification,
		:recommendation, :llm_analysis, :status, :detail, :created_at
	)
	ON CONFLICT (job_id) DO NOTHING
`

// RecordNotification inserts n. A second record for the same job is
// rejected with ErrNotificationExists and leaves the first one intact.
func (s *Store) RecordNotification(ctx context.Context, n Notification) error {
	if n.JobID == "" {
		return errors.New("notification without job id")
	}
	if n.Status == "" {
		return fmt.Errorf("notification for %s without status", n.JobID)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	n.CreatedAt = n.CreatedAt.UTC()

	res, err := s.db.NamedExecContext(ctx, insertNotificationQuery, n)
	if err != nil {
		return fmt.Errorf("recording notification for %s: %w", n.JobID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("recording notification for %s: %w", n.JobID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", n.JobID, ErrNotificationExists)
	}

	return nil
}

func (s *Store) GetNotification(ctx context.Context, jobID string) (*Notification, error) {
	var n Notification
	query := s.db.Rebind("SELECT * FROM notifications WHERE job_id = ?")
	if err := s.db.GetContext(ctx, &n, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting notification %s: %w", jobID, err)
	}
	return &n, nil
}

// CountNotifications counts records with the given status, or all records
// when status is empty.
func (s *Store) CountNotifications(ctx context.Context, status string) (int, error) {
	var (
		count int
		err   error
	)
	if status == "" {
		err = s.db.GetContext(ctx, &count, "SELECT COUNT(1) FROM notifications")
	} else {
		err = s.db.GetContext(ctx, &count, s.db.Rebind("SELECT COUNT(1) FROM notifications WHERE status = ?"), status)
	}
	if err != nil {
		return 0, fmt.Errorf("counting notifications: %w", err)
	}
	return count, nil
}
