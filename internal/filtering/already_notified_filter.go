package filtering

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/jobhound/internal/jobs"
)

const AlreadyNotifiedName = "already_notified"

// SeenStore is the part of the persistence layer the dedup step needs.
type SeenStore interface {
	IsNotified(ctx context.Context, jobID string) (bool, error)
	PersistJobIfAbsent(ctx context.Context, p *jobs.Posting) (bool, error)
}

type alreadyNotifiedFilter struct {
	deps *AlreadyNotifiedDeps

	disabled  bool
	reason    string
	persisted int
}

type AlreadyNotifiedDeps struct {
	Store  SeenStore
	Logger *zap.Logger
}

// NewAlreadyNotified creates a filter that drops postings with a notification
// record and stores postings seen for the first time.
func NewAlreadyNotified(deps *AlreadyNotifiedDeps) Filter {
	return &alreadyNotifiedFilter{deps: deps}
}

func (f *alreadyNotifiedFilter) Name() string { return AlreadyNotifiedName }

func (f *alreadyNotifiedFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *alreadyNotifiedFilter) IsEnabled() bool { return !f.disabled }

func (f *alreadyNotifiedFilter) Validate() error {
	if f.deps == nil || f.deps.Store == nil {
		return fmt.Errorf("store is required")
	}

	if f.deps.Logger == nil {
		return fmt.Errorf("logger is required")
	}

	return nil
}

func (f *alreadyNotifiedFilter) Apply(ctx context.Context, p *jobs.Postings) (*jobs.Postings, Step, error) {
	initial := p.Len()

	var notified []string
	for _, posting := range p.Items {
		seen, err := f.deps.Store.IsNotified(ctx, posting.ID)
		if err != nil {
			return p, Step{}, fmt.Errorf("checking notification for %s: %w", posting.ID, err)
		}
		if seen {
			notified = append(notified, posting.ID)
		}
	}

	excluded := p.Exclude(jobs.PostingIDField, notified)
	if len(excluded) > 0 {
		f.deps.Logger.Info("excluding already notified postings",
			zap.Strings("excluded_postings", excluded),
			zap.Int("postings_left", p.Len()),
		)
	}

	for _, posting := range p.Items {
		inserted, err := f.deps.Store.PersistJobIfAbsent(ctx, posting)
		if err != nil {
			return p, Step{}, fmt.Errorf("persisting %s: %w", posting.ID, err)
		}
		if inserted {
			f.persisted++
		}
	}

	return p, Step{Initial: initial, Dropped: len(excluded), Left: p.Len()}, nil
}

// Persisted returns how many postings were stored for the first time.
func (f *alreadyNotifiedFilter) Persisted() int { return f.persisted }

func (f *alreadyNotifiedFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"persisted": strconv.Itoa(f.persisted)},
	}
}
