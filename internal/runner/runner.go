// Package runner drives one scrape, dedup, pre-filter, match and notify pass.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/jobhound/internal/filtering"
	"github.com/spigell/jobhound/internal/jobs"
	"github.com/spigell/jobhound/internal/lock"
	"github.com/spigell/jobhound/internal/logger"
	"github.com/spigell/jobhound/internal/match"
	"github.com/spigell/jobhound/internal/notify"
	"github.com/spigell/jobhound/internal/resume"
	"github.com/spigell/jobhound/internal/store"
)

// State is a stage of a run.
type State string

const (
	StateScrape       State = "SCRAPE"
	StateDedupCheck   State = "DEDUP_CHECK"
	StatePrefilter    State = "PREFILTER"
	StateBatchMatch   State = "BATCH_MATCH"
	StatePerJobDecide State = "PER_JOB_DECIDE"
	StateSummary      State = "SUMMARY"
)

type RunType string

const (
	RunManual  RunType = "manual"
	RunStartup RunType = "startup"
	RunMorning RunType = "morning"
	RunHourly  RunType = "hourly"
)

func ParseRunType(s string) (RunType, error) {
	switch t := RunType(strings.ToLower(strings.TrimSpace(s))); t {
	case RunManual, RunStartup, RunMorning, RunHourly:
		return t, nil
	case "":
		return RunManual, nil
	default:
		return "", fmt.Errorf("unknown run type %q", s)
	}
}

const (
	DefaultMinScore        = 50
	DefaultStartupLookback = 6 * time.Hour
	DefaultMorningLookback = 12 * time.Hour
	DefaultHourlyLookback  = time.Hour

	topMatchesLimit = 5
	summaryTimeout  = 30 * time.Second
	maxErrorLength  = 100
	maxTitleLength  = 50
)

type Lookback struct {
	Startup time.Duration `mapstructure:"startup"`
	Morning time.Duration `mapstructure:"morning"`
	Hourly  time.Duration `mapstructure:"hourly"`
}

// Window returns the posted-within window for t. Manual runs keep the
// configured search URL untouched.
func (l Lookback) Window(t RunType) time.Duration {
	switch t {
	case RunStartup:
		return orDefault(l.Startup, DefaultStartupLookback)
	case RunMorning:
		return orDefault(l.Morning, DefaultMorningLookback)
	case RunHourly:
		return orDefault(l.Hourly, DefaultHourlyLookback)
	default:
		return 0
	}
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

type Config struct {
	SearchURL        string
	MaxJobs          int
	Lookback         Lookback
	MinScore         float64
	ForceNotify      bool
	ExcludeCompanies []string
	ExcludeFile      string
	Keywords         filtering.KeywordsConfig
	DumpPostings     bool
}

type Scraper interface {
	Scrape(ctx context.Context, url string, limit int) ([]*jobs.Posting, error)
}

type Matcher interface {
	MatchWithStats(ctx context.Context, postings []*jobs.Posting, profile *resume.Profile) (map[string]*match.Result, match.Stats)
}

// Store is the persistence the runner needs.
type Store interface {
	filtering.SeenStore
	RecordNotification(ctx context.Context, n store.Notification) error
	UpsertMatch(ctx context.Context, r *match.Result) error
}

// ProfileLoader returns the candidate profile for a run.
type ProfileLoader func() (*resume.Profile, error)

type Deps struct {
	Scraper  Scraper
	Matcher  Matcher
	Store    Store
	Notifier notify.Notifier
	Locker   lock.Locker
	Profile  ProfileLoader
	Logger   *zap.Logger
}

type Runner struct {
	cfg  Config
	deps Deps
	now  func() time.Time
}

func New(cfg Config, deps Deps) (*Runner, error) {
	switch {
	case deps.Scraper == nil:
		return nil, errors.New("scraper is required")
	case deps.Matcher == nil:
		return nil, errors.New("matcher is required")
	case deps.Store == nil:
		return nil, errors.New("store is required")
	case deps.Notifier == nil:
		return nil, errors.New("notifier is required")
	case deps.Profile == nil:
		return nil, errors.New("profile loader is required")
	}
	if deps.Locker == nil {
		deps.Locker = lock.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Runner{cfg: cfg, deps: deps, now: time.Now}, nil
}

// run holds the state of a single pass.
type run struct {
	*Runner
	id       string
	runType  RunType
	logger   *zap.Logger
	summary  *notify.RunSummary
	critical bool
	top      []notify.TopMatch
}

// Run executes one pass and returns its summary. The summary is sent to the
// notifier exactly once, whatever stage the run stopped at.
func (r *Runner) Run(ctx context.Context, runType RunType) (summary *notify.RunSummary) {
	id := uuid.NewString()
	rn := &run{
		Runner:  r,
		id:      id,
		runType: runType,
		logger:  logger.WithRun(r.deps.Logger, id, string(runType)),
		summary: &notify.RunSummary{
			RunID:     id,
			RunType:   string(runType),
			StartedAt: r.now(),
		},
	}
	summary = rn.summary

	defer rn.finish(ctx)
	defer func() {
		if rec := recover(); rec != nil {
			rn.logger.Error("run panicked", zap.Any("panic", rec))
			rn.fail("Critical error: " + truncate(fmt.Sprint(rec), maxErrorLength))
		}
	}()

	rn.logger.Info("run started")

	release, err := r.deps.Locker.Acquire(ctx)
	if err != nil {
		rn.logger.Error("acquiring run lock", zap.Error(err))
		rn.fail("Critical error: " + truncate(err.Error(), maxErrorLength))
		return summary
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			rn.logger.Warn("releasing run lock", zap.Error(err))
		}
	}()

	rn.execute(ctx)
	return summary
}

func (rn *run) execute(ctx context.Context) {
	profile, err := rn.deps.Profile()
	if err != nil {
		rn.logger.Error("parsing resume", zap.Error(err))
		rn.fail("Resume parsing failed")
		return
	}

	rn.enter(StateScrape)
	postings, err := rn.scrape(ctx)
	if err != nil {
		rn.logger.Error("scraping failed", zap.Error(err))
		rn.fail("Scraping failed: " + truncate(err.Error(), maxErrorLength))
		return
	}
	rn.summary.Scraped = len(postings)
	if len(postings) == 0 {
		rn.logger.Info("no postings scraped")
		return
	}

	rn.enter(StateDedupCheck)
	fresh, err := rn.dedup(ctx, postings)
	if err != nil {
		rn.logger.Error("dedup check failed", zap.Error(err))
		rn.fail("Critical error: " + truncate(err.Error(), maxErrorLength))
		return
	}
	if fresh.Len() == 0 {
		rn.logger.Info("no new postings")
		return
	}

	rn.enter(StatePrefilter)
	passed, err := rn.prefilter(ctx, fresh)
	if err != nil {
		rn.logger.Error("pre-filter failed", zap.Error(err))
		rn.fail("Critical error: " + truncate(err.Error(), maxErrorLength))
		return
	}
	if passed.Len() == 0 {
		rn.logger.Info("no postings passed the pre-filter")
		return
	}

	rn.enter(StateBatchMatch)
	results, stats := rn.deps.Matcher.MatchWithStats(ctx, passed.Items, profile)
	rn.summary.Matched = len(results)
	rn.summary.LLMAnalyzed = stats.LLM
	rn.summary.Fallbacks = stats.Fallback

	rn.enter(StatePerJobDecide)
	for _, p := range passed.Items {
		if err := ctx.Err(); err != nil {
			rn.fail("Critical error: " + truncate(err.Error(), maxErrorLength))
			return
		}
		rn.decide(ctx, p, results[p.ID])
	}
}

func (rn *run) scrape(ctx context.Context) ([]*jobs.Posting, error) {
	url := rn.cfg.SearchURL
	if window := rn.cfg.Lookback.Window(rn.runType); window > 0 {
		var err error
		if url, err = jobs.LookbackURL(url, window); err != nil {
			return nil, err
		}
	}

	rn.logger.Info("scraping", zap.String("url", url), zap.Int("max_jobs", rn.cfg.MaxJobs))
	return rn.deps.Scraper.Scrape(ctx, url, rn.cfg.MaxJobs)
}

func (rn *run) dedup(ctx context.Context, postings []*jobs.Posting) (*jobs.Postings, error) {
	p := &jobs.Postings{Items: postings}
	dropped := p.Dedup()
	if dropped > 0 {
		rn.logger.Debug("dropped duplicate postings", zap.Int("count", dropped))
	}

	steps := []filtering.Filter{
		filtering.NewAlreadyNotified(&filtering.AlreadyNotifiedDeps{Store: rn.deps.Store, Logger: rn.logger}),
	}

	fresh, report, err := filtering.Run(ctx, rn.logger, steps, p)
	if err != nil {
		return nil, err
	}

	rn.summary.AlreadyNotified = report.Dropped(filtering.AlreadyNotifiedName)
	rn.summary.New = fresh.Len()
	return fresh, nil
}

func (rn *run) prefilter(ctx context.Context, p *jobs.Postings) (*jobs.Postings, error) {
	steps := []filtering.Filter{
		filtering.NewExcludeFile(rn.cfg.ExcludeFile, rn.logger),
		filtering.NewExcludedCompanies(rn.cfg.ExcludeCompanies, rn.logger),
		filtering.NewKeywords(&rn.cfg.Keywords, rn.logger),
	}
	if rn.cfg.ForceNotify {
		filtering.DisableByName(steps, filtering.CompaniesName, filtering.ForceReason)
		filtering.DisableByName(steps, filtering.KeywordsName, filtering.ForceReason)
	}
	rn.logger.Debug("pre-filter steps", zap.Any("steps", filtering.Describe(steps)))

	passed, report, err := filtering.Run(ctx, rn.logger, steps, p)
	if err != nil {
		return nil, err
	}

	rn.summary.CompanyExcluded = report.Dropped(filtering.ExcludeFileName) + report.Dropped(filtering.CompaniesName)
	rn.summary.PrefilterRejected = report.Dropped(filtering.KeywordsName)
	rn.summary.PrefilterPassed = passed.Len()

	if rn.logger.Core().Enabled(zap.DebugLevel) {
		for _, r := range filtering.Rejected(steps) {
			rn.logger.Debug("rejected by pre-filter", logger.JobFields(r.ID, r.Title, r.Company)...)
		}
		pretty, _ := json.MarshalIndent(passed.ReportByCompany(), "", "  ")
		rn.logger.Debug(string(pretty), zap.Int("postings", passed.Len()))
	}
	if rn.cfg.DumpPostings {
		filename, err := passed.DumpToTmpFile()
		if err != nil {
			rn.logger.Warn("dumping postings to file", zap.Error(err))
		} else {
			rn.logger.Info("dumping postings to file", zap.String("filename", filename))
		}
	}

	return passed, nil
}

// decide runs the apply or skip path for one posting. Failures are recorded
// against the posting and never stop the loop.
func (rn *run) decide(ctx context.Context, p *jobs.Posting, result *match.Result) {
	log := rn.logger.With(logger.JobFields(p.ID, p.Title, p.Company)...)

	defer func() {
		if rec := recover(); rec != nil {
			rn.jobFailed(ctx, log, p, result, fmt.Errorf("panic: %v", rec))
		}
	}()

	if result == nil {
		rn.jobFailed(ctx, log, p, nil, errors.New("no match result"))
		return
	}

	if result.Scores.Total < rn.cfg.MinScore && !rn.cfg.ForceNotify {
		rn.summary.BelowThreshold++
		log.Info("score below threshold", zap.Float64("score", result.Scores.Total))
		detail := fmt.Sprintf("score %.1f below threshold %g", result.Scores.Total, rn.cfg.MinScore)
		if err := rn.record(ctx, p, result, store.StatusSkippedLowScore, detail); err != nil {
			log.Error("recording skipped posting", zap.Error(err))
			rn.summary.Errors = append(rn.summary.Errors, "Error: "+truncate(p.Title, maxTitleLength))
		}
		return
	}

	rn.top = append(rn.top, notify.TopMatch{JobID: p.ID, Title: p.Title, Company: p.Company, Score: result.Scores.Total})

	if err := rn.deps.Store.UpsertMatch(ctx, result); err != nil {
		rn.jobFailed(ctx, log, p, result, fmt.Errorf("saving match: %w", err))
		return
	}

	status := rn.deps.Notifier.NotifyMatch(ctx, p, result)
	if err := rn.record(ctx, p, result, string(status), ""); err != nil {
		log.Error("recording notification", zap.Error(err))
		rn.summary.Errors = append(rn.summary.Errors, "Error: "+truncate(p.Title, maxTitleLength))
		rn.summary.Failed++
		return
	}

	if !status.OK() {
		log.Warn("notification failed", zap.String("status", string(status)))
		rn.summary.Errors = append(rn.summary.Errors, "Notification failed: "+p.Title)
		rn.summary.Failed++
		return
	}

	log.Info("notification sent", zap.Float64("score", result.Scores.Total))
	rn.summary.Notified++
}

func (rn *run) jobFailed(ctx context.Context, log *zap.Logger, p *jobs.Posting, result *match.Result, err error) {
	log.Error("processing posting", zap.Error(err))
	rn.summary.Failed++
	rn.summary.Errors = append(rn.summary.Errors, "Error: "+truncate(p.Title, maxTitleLength))

	if err := rn.record(ctx, p, result, store.StatusError, truncate(err.Error(), maxErrorLength)); err != nil && !errors.Is(err, store.ErrNotificationExists) {
		log.Error("recording failed posting", zap.Error(err))
	}
}

func (rn *run) record(ctx context.Context, p *jobs.Posting, result *match.Result, status, detail string) error {
	n := store.Notification{
		JobID:    p.ID,
		RunID:    rn.id,
		RunType:  string(rn.runType),
		Title:    p.Title,
		Company:  p.Company,
		Location: p.Location,
		Status:   status,
		Detail:   detail,
	}
	if result != nil {
		n.Score = result.Scores.Total
		n.Classification = string(result.Classification)
		n.Recommendation = string(result.Recommendation)
		n.LLMAnalysis = result.LLMAnalysis
	}
	return rn.deps.Store.RecordNotification(ctx, n)
}

func (rn *run) enter(s State) {
	rn.logger.Info("state", zap.String("state", string(s)))
}

func (rn *run) fail(msg string) {
	rn.critical = true
	rn.summary.Errors = append(rn.summary.Errors, msg)
}

// finish settles the summary status and sends it on a context that outlives
// cancellation of the run.
func (rn *run) finish(ctx context.Context) {
	rn.enter(StateSummary)

	s := rn.summary
	s.Elapsed = rn.now().Sub(s.StartedAt)

	slices.SortStableFunc(rn.top, func(a, b notify.TopMatch) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if len(rn.top) > topMatchesLimit {
		rn.top = rn.top[:topMatchesLimit]
	}
	s.TopMatches = rn.top

	switch {
	case rn.critical:
		s.Status = notify.RunFailed
	case len(s.Errors) > 0:
		s.Status = notify.RunPartial
	default:
		s.Status = notify.RunSuccess
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), summaryTimeout)
	defer cancel()

	status := rn.deps.Notifier.NotifySummary(sendCtx, s)
	if !status.OK() {
		rn.logger.Warn("summary notification failed", zap.String("status", string(status)))
	}

	rn.logger.Info("run finished",
		zap.String("status", string(s.Status)),
		zap.Duration("elapsed", s.Elapsed),
		zap.Int("scraped", s.Scraped),
		zap.Int("new", s.New),
		zap.Int("notified", s.Notified),
		zap.Int("below_threshold", s.BelowThreshold),
		zap.Int("failed", s.Failed),
	)
}

// Abort reports a run that failed before a Runner could be built. notifier
// receives a single failed summary, even when ctx is already cancelled.
func Abort(ctx context.Context, notifier notify.Notifier, runType RunType, cause error, log *zap.Logger) *notify.RunSummary {
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	log = logger.WithRun(log, id, string(runType))

	s := &notify.RunSummary{
		RunID:     id,
		RunType:   string(runType),
		Status:    notify.RunFailed,
		StartedAt: time.Now(),
		Errors:    []string{"Critical error: " + truncate(cause.Error(), maxErrorLength)},
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), summaryTimeout)
	defer cancel()

	if status := notifier.NotifySummary(sendCtx, s); !status.OK() {
		log.Warn("summary notification failed", zap.String("status", string(status)))
	}
	log.Error("run aborted", zap.Error(cause))

	return s
}

func truncate(s string, n int) string {
	return match.TruncateRunes(s, n)
}
