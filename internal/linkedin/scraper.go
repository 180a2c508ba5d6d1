// Package linkedin scrapes the public LinkedIn guest job search.
package linkedin

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/jobhound/internal/jobs"
	"github.com/spigell/jobhound/internal/utils"
)

const (
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	DefaultRequestsPerSecond = 0.5
	DefaultMaxJobs           = 30

	contentEncoding = "gzip"
	maxBodySize     = 2 << 20
	retryAfter      = 5 * time.Second
)

var applicantsRe = regexp.MustCompile(`(?i)(\d[\d,]*)\s+applicants?`)

type Scraper struct {
	HTTPClient *http.Client
	UserAgent  string

	logger  *zap.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

// New creates a scraper that issues at most rps detail requests per second.
func New(logger *zap.Logger, userAgent string, rps float64) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = DefaultUserAgent
	}
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}

	return &Scraper{
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		UserAgent: userAgent,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		now:       time.Now,
	}
}

// Scrape fetches the search page, then each posting page, and returns up to
// limit postings. Postings whose detail page fails are logged and skipped.
func (s *Scraper) Scrape(ctx context.Context, searchURL string, limit int) ([]*jobs.Posting, error) {
	if limit <= 0 {
		limit = DefaultMaxJobs
	}

	doc, err := s.fetch(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("fetching search page: %w", err)
	}

	cards := parseCards(doc)
	s.logger.Info("found job cards", zap.Int("cards", len(cards)))
	if len(cards) > limit {
		cards = cards[:limit]
	}

	postings := make([]*jobs.Posting, 0, len(cards))
	for _, card := range cards {
		if err := ctx.Err(); err != nil {
			return postings, err
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return postings, err
		}

		if err := s.fillDetails(ctx, card); err != nil {
			s.logger.Warn("skipping posting", zap.String("url", card.URL), zap.Error(err))
			continue
		}
		postings = append(postings, card)
	}

	return postings, nil
}

func parseCards(doc *goquery.Document) []*jobs.Posting {
	var cards []*jobs.Posting
	seen := make(map[string]struct{})

	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		href, ok := li.Find("a.base-card__full-link").Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}

		p := jobs.NewPosting(
			href,
			text(li.Find(".base-search-card__title")),
			text(li.Find(".base-search-card__subtitle")),
		)
		if _, dup := seen[p.ID]; dup {
			return
		}
		seen[p.ID] = struct{}{}

		p.Location = text(li.Find(".job-search-card__location"))
		p.TimePostedText = text(li.Find("time"))
		cards = append(cards, p)
	})

	return cards
}

func (s *Scraper) fillDetails(ctx context.Context, p *jobs.Posting) error {
	doc, err := s.fetch(ctx, p.URL)
	if err != nil {
		return err
	}

	now := s.now()
	p.ScrapedAt = now

	if title := text(doc.Find(".top-card-layout__title").First()); title != "" {
		p.Title = title
	}
	if company := text(doc.Find(".topcard__org-name-link").First()); company != "" {
		p.Company = company
	}
	if location := text(doc.Find(".topcard__flavor--bullet").First()); location != "" {
		p.Location = location
	}
	if posted := text(doc.Find(".posted-time-ago__text").First()); posted != "" {
		p.TimePostedText = posted
	}
	p.PostedAt = jobs.ParseTimeAgo(p.TimePostedText, now)

	applicants := text(doc.Find(".num-applicants__caption").First())
	if applicants == "" {
		applicants = text(doc.Find(".num-applicants__figure").First())
	}
	p.ApplicantCount = parseApplicants(applicants)

	doc.Find(".description__job-criteria-item").Each(func(_ int, item *goquery.Selection) {
		value := text(item.Find(".description__job-criteria-text"))
		switch strings.ToLower(text(item.Find(".description__job-criteria-subheader"))) {
		case "employment type":
			p.EmploymentType = value
		case "seniority level":
			p.SeniorityLevel = value
		case "workplace type":
			p.WorkplaceType = value
		}
	})

	descHTML, err := doc.Find(".show-more-less-html__markup").First().Html()
	if err != nil {
		return fmt.Errorf("reading description: %w", err)
	}
	if strings.TrimSpace(descHTML) == "" {
		descHTML, _ = doc.Find(".description__text").First().Html()
	}
	if strings.TrimSpace(descHTML) != "" {
		md, err := htmltomarkdown.ConvertString(descHTML)
		if err != nil {
			return fmt.Errorf("converting description: %w", err)
		}
		p.Description = strings.TrimSpace(md)
	}

	if p.Title == "" {
		return fmt.Errorf("posting page has no title")
	}

	s.logger.Debug("scraped posting",
		zap.String("job_id", p.ID),
		zap.String("title", p.Title),
		zap.String("company", p.Company),
		zap.Int("description_length", len(p.Description)),
	)

	return nil
}

func (s *Scraper) fetch(ctx context.Context, target string) (*goquery.Document, error) {
	if _, err := url.ParseRequestURI(target); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", target, err)
	}

	resp, err := s.request(ctx, target)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		s.logger.Debug("rate limited, retrying", zap.String("url", target), zap.Duration("delay", retryAfter))
		if err := utils.WaitFor(ctx, retryAfter); err != nil {
			return nil, err
		}
		if resp, err = s.request(ctx, target); err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		body = gz
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	return doc, nil
}

func (s *Scraper) request(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req = s.setHeaders(req)

	s.logger.Debug("make request", zap.String("url", target))
	return s.HTTPClient.Do(req)
}

func (s *Scraper) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("User-Agent", s.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

func parseApplicants(s string) *int {
	m := applicantsRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return nil
	}
	return &n
}

func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}
