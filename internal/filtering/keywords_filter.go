package filtering

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/jobhound/internal/jobs"
)

const KeywordsName = "keywords"

type keywordsFilter struct {
	cfg    *KeywordsConfig
	logger *zap.Logger

	disabled bool
	reason   string
	rejected []*jobs.Posting
}

// NewKeywords creates the keyword pre-filter step.
func NewKeywords(cfg *KeywordsConfig, logger *zap.Logger) Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cfg.withDefaults()
	return &keywordsFilter{cfg: &c, logger: logger}
}

func (f *keywordsFilter) Name() string { return KeywordsName }

func (f *keywordsFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *keywordsFilter) IsEnabled() bool { return !f.disabled }

func (f *keywordsFilter) Validate() error { return nil }

func (f *keywordsFilter) Apply(_ context.Context, p *jobs.Postings) (*jobs.Postings, Step, error) {
	initial := p.Len()

	passed, rejected := Partition(p.Items, f.cfg)
	f.rejected = rejected

	for _, r := range rejected {
		f.logger.Debug("posting rejected by pre-filter",
			zap.String("job_id", r.ID),
			zap.String("title", r.Title),
			zap.String("reason", r.RejectionReason),
		)
	}

	p.Items = passed

	return p, Step{Initial: initial, Dropped: len(rejected), Left: p.Len()}, nil
}

// Rejected returns postings dropped by the last Apply call.
func (f *keywordsFilter) Rejected() []*jobs.Posting { return f.rejected }

func (f *keywordsFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"min_skill_matches": strconv.Itoa(f.cfg.MinSkillMatches)},
	}
}
