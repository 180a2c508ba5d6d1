// Package notify delivers match and run summary notifications.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobhound/internal/jobs"
	"github.com/spigell/jobhound/internal/match"
)

type Status string

const (
	StatusSuccess         Status = "success"
	StatusErrorNoWebhook  Status = "error_no_webhook"
	StatusErrorSendFailed Status = "error_send_failed"
)

func (s Status) OK() bool { return s == StatusSuccess }

// Notifier delivers notifications and reports the delivery outcome as a
// status. Sinks never return errors for delivery failures.
type Notifier interface {
	NotifyMatch(ctx context.Context, posting *jobs.Posting, result *match.Result) Status
	NotifySummary(ctx context.Context, summary *RunSummary) Status
}

type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

type TopMatch struct {
	JobID   string  `json:"job_id"`
	Title   string  `json:"title"`
	Company string  `json:"company"`
	Score   float64 `json:"score"`
}

// RunSummary describes one pipeline run.
type RunSummary struct {
	RunID     string        `json:"run_id"`
	RunType   string        `json:"run_type"`
	Status    RunStatus     `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`

	Scraped           int `json:"scraped"`
	New               int `json:"new"`
	AlreadyNotified   int `json:"already_notified"`
	CompanyExcluded   int `json:"company_excluded"`
	PrefilterPassed   int `json:"prefilter_passed"`
	PrefilterRejected int `json:"prefilter_rejected"`
	Matched           int `json:"matched"`
	LLMAnalyzed       int `json:"llm_analyzed"`
	Fallbacks         int `json:"fallbacks"`
	Notified          int `json:"notified"`
	BelowThreshold    int `json:"below_threshold"`
	Failed            int `json:"failed"`

	TopMatches []TopMatch `json:"top_matches"`
	Errors     []string   `json:"errors"`
}

// Multi fans out to several sinks. The first sink's status is returned; the
// rest are best effort.
type Multi struct {
	sinks  []Notifier
	logger *zap.Logger
}

func NewMulti(logger *zap.Logger, sinks ...Notifier) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Multi{sinks: sinks, logger: logger}
}

func (m *Multi) NotifyMatch(ctx context.Context, posting *jobs.Posting, result *match.Result) Status {
	return m.fanOut("match", func(n Notifier) Status { return n.NotifyMatch(ctx, posting, result) })
}

func (m *Multi) NotifySummary(ctx context.Context, summary *RunSummary) Status {
	return m.fanOut("summary", func(n Notifier) Status { return n.NotifySummary(ctx, summary) })
}

func (m *Multi) fanOut(kind string, send func(Notifier) Status) Status {
	if len(m.sinks) == 0 {
		return StatusErrorNoWebhook
	}

	primary := send(m.sinks[0])
	for i, sink := range m.sinks[1:] {
		if status := send(sink); !status.OK() {
			m.logger.Warn("secondary notifier failed",
				zap.String("kind", kind),
				zap.Int("sink", i+1),
				zap.String("status", string(status)),
			)
		}
	}
	return primary
}
