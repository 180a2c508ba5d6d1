package filtering

import (
	"context"
	"fmt"

	"github.com/spigell/jobhound/internal/jobs"
	"go.uber.org/zap"
)

// ForceReason is the disable reason used when force notify bypasses a step.
const ForceReason = "force flag is set"

// Filter represents a single filtering step applied to postings.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate() error
	Apply(ctx context.Context, p *jobs.Postings) (*jobs.Postings, Step, error)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Report maps step names to their results for a single pass.
type Report map[string]Step

// Dropped returns the number of postings the named step dropped.
func (r Report) Dropped(name string) int {
	return r[name].Dropped
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// rejecter is implemented by filters that keep the postings they dropped.
type rejecter interface {
	Rejected() []*jobs.Posting
}

// Rejected collects the postings dropped by the last Apply of every step
// that keeps them.
func Rejected(steps []Filter) []*jobs.Posting {
	var out []*jobs.Posting
	for _, step := range steps {
		if r, ok := step.(rejecter); ok {
			out = append(out, r.Rejected()...)
		}
	}
	return out
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run validates all enabled filters and then applies them in order.
func Run(ctx context.Context, logger *zap.Logger, steps []Filter, p *jobs.Postings) (*jobs.Postings, Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if p == nil {
		p = &jobs.Postings{}
	}

	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	report := make(Report, len(steps))
	for _, step := range steps {
		if !step.IsEnabled() {
			logger.Info("filter disabled", zap.String("name", step.Name()))
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		next, info, err := step.Apply(ctx, p)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		logger.Info("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		report[step.Name()] = info
		p = next
	}

	return p, report, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}
