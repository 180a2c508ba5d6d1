package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spigell/jobhound/internal/jobs"
	"github.com/spigell/jobhound/internal/lock"
	"github.com/spigell/jobhound/internal/match"
	"github.com/spigell/jobhound/internal/notify"
	"github.com/spigell/jobhound/internal/resume"
	"github.com/spigell/jobhound/internal/store"
)

type fakeScraper struct {
	postings []*jobs.Posting
	err      error
	urls     []string
}

func (f *fakeScraper) Scrape(_ context.Context, url string, _ int) ([]*jobs.Posting, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	// a fresh copy per call, like a real scrape
	out := make([]*jobs.Posting, 0, len(f.postings))
	for _, p := range f.postings {
		c := *p
		out = append(out, &c)
	}
	return out, nil
}

type fakeMatcher struct {
	scores map[string]float64
	calls  int
	seen   []string
}

func (f *fakeMatcher) MatchWithStats(_ context.Context, postings []*jobs.Posting, _ *resume.Profile) (map[string]*match.Result, match.Stats) {
	f.calls++
	out := make(map[string]*match.Result, len(postings))
	for _, p := range postings {
		f.seen = append(f.seen, p.ID)
		score, ok := f.scores[p.Title]
		if !ok {
			continue
		}
		r := &match.Result{JobID: p.ID, Scores: match.Scores{Total: score}}
		r.Classification, r.Recommendation = match.Classify(score, nil)
		out[p.ID] = r
	}
	return out, match.Stats{LLM: len(out)}
}

type fakeStore struct {
	jobs          map[string]*jobs.Posting
	notifications map[string]store.Notification
	matches       map[string]*match.Result
	panicOn       string
	notifiedErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:          map[string]*jobs.Posting{},
		notifications: map[string]store.Notification{},
		matches:       map[string]*match.Result{},
	}
}

func (f *fakeStore) IsNotified(_ context.Context, id string) (bool, error) {
	if f.notifiedErr != nil {
		return false, f.notifiedErr
	}
	_, ok := f.notifications[id]
	return ok, nil
}

func (f *fakeStore) PersistJobIfAbsent(_ context.Context, p *jobs.Posting) (bool, error) {
	if _, ok := f.jobs[p.ID]; ok {
		return false, nil
	}
	f.jobs[p.ID] = p
	return true, nil
}

func (f *fakeStore) RecordNotification(_ context.Context, n store.Notification) error {
	if _, ok := f.notifications[n.JobID]; ok {
		return fmt.Errorf("%s: %w", n.JobID, store.ErrNotificationExists)
	}
	f.notifications[n.JobID] = n
	return nil
}

func (f *fakeStore) UpsertMatch(_ context.Context, r *match.Result) error {
	if f.panicOn != "" && r.JobID == f.panicOn {
		panic("boom")
	}
	f.matches[r.JobID] = r
	return nil
}

func (f *fakeStore) statusOf(t *testing.T, p *jobs.Posting) string {
	t.Helper()
	n, ok := f.notifications[p.ID]
	require.True(t, ok, "no notification for %s", p.Title)
	return n.Status
}

type fakeNotifier struct {
	status    notify.Status
	matches   []string
	summaries []*notify.RunSummary
}

func (f *fakeNotifier) NotifyMatch(_ context.Context, p *jobs.Posting, _ *match.Result) notify.Status {
	f.matches = append(f.matches, p.Title)
	if f.status == "" {
		return notify.StatusSuccess
	}
	return f.status
}

func (f *fakeNotifier) NotifySummary(ctx context.Context, s *notify.RunSummary) notify.Status {
	if ctx.Err() != nil {
		return notify.StatusErrorSendFailed
	}
	f.summaries = append(f.summaries, s)
	return notify.StatusSuccess
}

type fakeLocker struct {
	err      error
	released int
}

func (f *fakeLocker) Acquire(context.Context) (lock.Release, error) {
	if f.err != nil {
		return nil, f.err
	}
	return func(context.Context) error {
		f.released++
		return nil
	}, nil
}

func posting(path, title, description string) *jobs.Posting {
	p := jobs.NewPosting("https://www.linkedin.com/jobs/view/"+path+"?trk=public", title, "Acme")
	p.Description = description
	return p
}

type fixture struct {
	scraper  *fakeScraper
	matcher  *fakeMatcher
	store    *fakeStore
	notifier *fakeNotifier
	locker   *fakeLocker
	profile  ProfileLoader
}

func newFixture(postings ...*jobs.Posting) *fixture {
	return &fixture{
		scraper:  &fakeScraper{postings: postings},
		matcher:  &fakeMatcher{scores: map[string]float64{}},
		store:    newFakeStore(),
		notifier: &fakeNotifier{},
		locker:   &fakeLocker{},
		profile: func() (*resume.Profile, error) {
			return resume.Parse("Jane Doe\n5 years of experience with Python, SQL and AWS"), nil
		},
	}
}

func testConfig() Config {
	return Config{MinScore: DefaultMinScore}
}

func (f *fixture) runner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	if cfg.SearchURL == "" {
		cfg.SearchURL = "https://www.linkedin.com/jobs/search?keywords=data+engineer"
	}
	r, err := New(cfg, Deps{
		Scraper:  f.scraper,
		Matcher:  f.matcher,
		Store:    f.store,
		Notifier: f.notifier,
		Locker:   f.locker,
		Profile:  f.profile,
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return r
}

func TestRunAppliesAndSkips(t *testing.T) {
	strong := posting("1", "Senior Data Engineer", "python sql aws")
	weak := posting("2", "Data Engineer", "python")
	chef := posting("3", "Chef", "cooking")

	f := newFixture(strong, weak, chef)
	f.matcher.scores = map[string]float64{strong.Title: 82.5, weak.Title: 30}

	summary := f.runner(t, testConfig()).Run(context.Background(), RunHourly)

	require.Len(t, f.notifier.summaries, 1)
	assert.Same(t, summary, f.notifier.summaries[0])
	assert.Equal(t, notify.RunSuccess, summary.Status)
	assert.Empty(t, summary.Errors)

	assert.Equal(t, 3, summary.Scraped)
	assert.Equal(t, 3, summary.New)
	assert.Equal(t, 2, summary.PrefilterPassed)
	assert.Equal(t, 1, summary.PrefilterRejected)
	assert.Equal(t, 2, summary.Matched)
	assert.Equal(t, 1, summary.Notified)
	assert.Equal(t, 1, summary.BelowThreshold)
	assert.Equal(t, 0, summary.Failed)

	require.Len(t, f.scraper.urls, 1)
	assert.Contains(t, f.scraper.urls[0], "f_TPR=r3600")

	assert.Equal(t, []string{strong.Title}, f.notifier.matches)
	assert.Equal(t, store.StatusSuccess, f.store.statusOf(t, strong))
	assert.Equal(t, store.StatusSkippedLowScore, f.store.statusOf(t, weak))
	assert.Equal(t, "score 30.0 below threshold 50", f.store.notifications[weak.ID].Detail)
	assert.NotContains(t, f.store.notifications, chef.ID)
	assert.Contains(t, f.store.matches, strong.ID)
	assert.NotContains(t, f.store.matches, weak.ID)

	require.Len(t, summary.TopMatches, 1)
	assert.Equal(t, strong.ID, summary.TopMatches[0].JobID)
	assert.Equal(t, 1, f.locker.released)
}

func TestRunSkipsAlreadyNotified(t *testing.T) {
	strong := posting("1", "Senior Data Engineer", "python sql aws")
	f := newFixture(strong)
	f.matcher.scores = map[string]float64{strong.Title: 90}

	r := f.runner(t, testConfig())
	first := r.Run(context.Background(), RunHourly)
	second := r.Run(context.Background(), RunHourly)

	assert.Equal(t, 1, first.Notified)
	assert.Equal(t, 1, second.AlreadyNotified)
	assert.Equal(t, 0, second.New)
	assert.Equal(t, notify.RunSuccess, second.Status)
	assert.Equal(t, []string{strong.Title}, f.notifier.matches)
	assert.Equal(t, 1, f.matcher.calls)
	assert.Len(t, f.notifier.summaries, 2)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunFatalSetupErrors(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture)
		prefix string
	}{
		{
			name:   "scrape fails",
			setup:  func(f *fixture) { f.scraper.err = errors.New(strings.Repeat("x", 300)) },
			prefix: "Scraping failed: ",
		},
		{
			name: "resume fails",
			setup: func(f *fixture) {
				f.profile = func() (*resume.Profile, error) { return nil, errors.New("no such file") }
			},
			prefix: "Resume parsing failed",
		},
		{
			name:   "lock is held",
			setup:  func(f *fixture) { f.locker.err = lock.ErrLocked },
			prefix: "Critical error: ",
		},
		{
			name:   "store fails",
			setup:  func(f *fixture) { f.store.notifiedErr = errors.New("database is locked") },
			prefix: "Critical error: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(posting("1", "Senior Data Engineer", "python sql aws"))
			tt.setup(f)

			summary := f.runner(t, testConfig()).Run(context.Background(), RunManual)

			require.Len(t, f.notifier.summaries, 1)
			assert.Equal(t, notify.RunFailed, summary.Status)
			require.Len(t, summary.Errors, 1)
			assert.True(t, strings.HasPrefix(summary.Errors[0], tt.prefix), summary.Errors[0])
			assert.LessOrEqual(t, len(summary.Errors[0]), len(tt.prefix)+maxErrorLength)
			assert.Empty(t, f.notifier.matches)
			assert.Zero(t, f.matcher.calls)
		})
	}
}

func TestRunEmptyScrape(t *testing.T) {
	f := newFixture()

	summary := f.runner(t, testConfig()).Run(context.Background(), RunStartup)

	assert.Equal(t, notify.RunSuccess, summary.Status)
	assert.Zero(t, f.matcher.calls)
	assert.Len(t, f.notifier.summaries, 1)
	assert.Contains(t, f.scraper.urls[0], "f_TPR=r21600")
}

func TestRunNotificationFailureIsPartial(t *testing.T) {
	strong := posting("1", "Senior Data Engineer", "python sql aws")
	f := newFixture(strong)
	f.matcher.scores = map[string]float64{strong.Title: 90}
	f.notifier.status = notify.StatusErrorSendFailed

	summary := f.runner(t, testConfig()).Run(context.Background(), RunHourly)

	assert.Equal(t, notify.RunPartial, summary.Status)
	assert.Equal(t, []string{"Notification failed: Senior Data Engineer"}, summary.Errors)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Notified)
	assert.Equal(t, store.StatusErrorSendFailed, f.store.statusOf(t, strong))
}

func TestRunRecoversPerJobFailures(t *testing.T) {
	panicking := posting("1", "Senior Data Engineer", "python sql aws")
	missing := posting("2", "Analytics Engineer", "python sql aws")
	fine := posting("3", "Data Engineer", "python sql aws")

	f := newFixture(panicking, missing, fine)
	f.matcher.scores = map[string]float64{panicking.Title: 90, fine.Title: 70}
	f.store.panicOn = panicking.ID

	summary := f.runner(t, testConfig()).Run(context.Background(), RunHourly)

	assert.Equal(t, notify.RunPartial, summary.Status)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 1, summary.Notified)
	assert.Equal(t, []string{"Error: Senior Data Engineer", "Error: Analytics Engineer"}, summary.Errors)
	assert.Equal(t, store.StatusError, f.store.statusOf(t, panicking))
	assert.Equal(t, store.StatusError, f.store.statusOf(t, missing))
	assert.Equal(t, store.StatusSuccess, f.store.statusOf(t, fine))
	assert.Len(t, f.notifier.summaries, 1)
}

func TestRunForceNotify(t *testing.T) {
	weak := posting("1", "Chef", "cooking")
	excluded := posting("2", "Data Engineer", "python sql aws")
	excluded.Company = "Blocked Inc"

	f := newFixture(weak, excluded)
	f.matcher.scores = map[string]float64{weak.Title: 10, excluded.Title: 20}

	summary := f.runner(t, Config{
		MinScore:         DefaultMinScore,
		ForceNotify:      true,
		ExcludeCompanies: []string{"blocked inc"},
	}).Run(context.Background(), RunManual)

	assert.Equal(t, notify.RunSuccess, summary.Status)
	assert.Equal(t, 2, summary.Notified)
	assert.Equal(t, 0, summary.BelowThreshold)
	assert.Equal(t, 0, summary.CompanyExcluded)
	assert.ElementsMatch(t, []string{weak.Title, excluded.Title}, f.notifier.matches)
	assert.Equal(t, "https://www.linkedin.com/jobs/search?keywords=data+engineer", f.scraper.urls[0])
}

func TestRunTopMatches(t *testing.T) {
	var postings []*jobs.Posting
	scores := map[string]float64{}
	for i := range 7 {
		title := fmt.Sprintf("Data Engineer %d", i)
		postings = append(postings, posting(fmt.Sprint(i), title, "python sql aws"))
		scores[title] = float64(60 + i)
	}

	f := newFixture(postings...)
	f.matcher.scores = scores

	summary := f.runner(t, testConfig()).Run(context.Background(), RunHourly)

	require.Len(t, summary.TopMatches, topMatchesLimit)
	assert.Equal(t, 66.0, summary.TopMatches[0].Score)
	assert.Equal(t, 62.0, summary.TopMatches[4].Score)
}

func TestRunSummarySurvivesCancellation(t *testing.T) {
	f := newFixture(posting("1", "Senior Data Engineer", "python sql aws"))
	f.matcher.scores = map[string]float64{"Senior Data Engineer": 90}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := f.runner(t, testConfig()).Run(ctx, RunHourly)

	assert.Equal(t, notify.RunFailed, summary.Status)
	require.Len(t, f.notifier.summaries, 1)
	assert.Empty(t, f.notifier.matches)
}

func TestRunZeroMinScoreNotifiesEverything(t *testing.T) {
	low := posting("1", "Data Engineer", "python")

	f := newFixture(low)
	f.matcher.scores = map[string]float64{low.Title: 0}

	summary := f.runner(t, Config{}).Run(context.Background(), RunManual)

	assert.Equal(t, notify.RunSuccess, summary.Status)
	assert.Equal(t, 1, summary.Notified)
	assert.Equal(t, 0, summary.BelowThreshold)
	require.Len(t, f.notifier.matches, 1)
}

func TestAbortSendsFailedSummary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	notifier := &fakeNotifier{}
	summary := Abort(ctx, notifier, RunStartup, errors.New("opening database: no such file"), zaptest.NewLogger(t))

	require.Len(t, notifier.summaries, 1)
	assert.Same(t, summary, notifier.summaries[0])
	assert.Equal(t, notify.RunFailed, summary.Status)
	assert.Equal(t, string(RunStartup), summary.RunType)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, []string{"Critical error: opening database: no such file"}, summary.Errors)
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	require.Error(t, err)
}

func TestParseRunType(t *testing.T) {
	tests := []struct {
		input   string
		want    RunType
		wantErr bool
	}{
		{input: "", want: RunManual},
		{input: "Hourly", want: RunHourly},
		{input: " morning ", want: RunMorning},
		{input: "startup", want: RunStartup},
		{input: "weekly", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRunType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookbackWindow(t *testing.T) {
	l := Lookback{Hourly: 2 * time.Hour}

	assert.Equal(t, time.Duration(0), l.Window(RunManual))
	assert.Equal(t, DefaultStartupLookback, l.Window(RunStartup))
	assert.Equal(t, DefaultMorningLookback, l.Window(RunMorning))
	assert.Equal(t, 2*time.Hour, l.Window(RunHourly))
}
