package match

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/jobhound/internal/jobs"
	"github.com/spigell/jobhound/internal/resume"
)

const DefaultBatchSize = 5

// Strategy scores a batch of postings. Failures are reported through
// Outcome.Err; a strategy may also return results for a subset of postings.
type Strategy interface {
	Name() string
	Match(ctx context.Context, postings []*jobs.Posting, profile *resume.Profile) Outcome
}

// Outcome is the result of one strategy attempt.
type Outcome struct {
	Results map[string]*Result
	Err     error
}

// Stats counts how results were produced across a Match call.
type Stats struct {
	LLM      int
	Fallback int
}

// Chain tries strategies in order for each batch. Postings left without a
// result by one strategy are handed to the next one. The last strategy is
// expected to be total.
type Chain struct {
	Strategies []Strategy
	BatchSize  int
	Logger     *zap.Logger
}

func NewChain(logger *zap.Logger, batchSize int, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Chain{Strategies: strategies, BatchSize: batchSize, Logger: logger}
}

// Match returns a result for every posting it was given, keyed by job ID.
func (c *Chain) Match(ctx context.Context, postings []*jobs.Posting, profile *resume.Profile) map[string]*Result {
	results, _ := c.MatchWithStats(ctx, postings, profile)
	return results
}

func (c *Chain) MatchWithStats(ctx context.Context, postings []*jobs.Posting, profile *resume.Profile) (map[string]*Result, Stats) {
	results := make(map[string]*Result, len(postings))
	var stats Stats

	size := c.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	for start := 0; start < len(postings); start += size {
		end := min(start+size, len(postings))
		batch := postings[start:end]

		c.Logger.Info("matching batch",
			zap.Int("batch_start", start),
			zap.Int("batch_size", len(batch)),
		)

		for id, res := range c.matchBatch(ctx, batch, profile) {
			results[id] = res
			if res.LLMAnalysis {
				stats.LLM++
			} else {
				stats.Fallback++
			}
		}
	}

	return results, stats
}

func (c *Chain) matchBatch(ctx context.Context, batch []*jobs.Posting, profile *resume.Profile) map[string]*Result {
	results := make(map[string]*Result, len(batch))
	pending := batch

	// reasons records why earlier strategies produced no result.
	reasons := make(map[string]string, len(batch))

	for _, strategy := range c.Strategies {
		if len(pending) == 0 {
			break
		}

		outcome := strategy.Match(ctx, pending, profile)
		if outcome.Err != nil {
			c.Logger.Warn("match strategy failed",
				zap.String("strategy", strategy.Name()),
				zap.Int("postings", len(pending)),
				zap.Error(outcome.Err),
			)
		}

		var next []*jobs.Posting
		for _, p := range pending {
			res, ok := outcome.Results[p.ID]
			if outcome.Err == nil && ok && res != nil {
				res.JobID = p.ID
				if r := reasons[p.ID]; r != "" && !res.LLMAnalysis {
					res.FallbackReason = joinReasons(r, res.FallbackReason)
				}
				results[p.ID] = res
				continue
			}

			if outcome.Err != nil {
				reasons[p.ID] = fmt.Sprintf("%s: %v", strategy.Name(), outcome.Err)
			} else {
				reasons[p.ID] = fmt.Sprintf("missing from %s response", strategy.Name())
			}
			next = append(next, p)
		}

		if outcome.Err == nil && len(next) > 0 {
			c.Logger.Info("backfilling postings missing from strategy response",
				zap.String("strategy", strategy.Name()),
				zap.Int("missing", len(next)),
			)
		}

		pending = next
	}

	for _, p := range pending {
		c.Logger.Error("no strategy produced a result", zap.String("job_id", p.ID))
	}

	return results
}

func joinReasons(upstream, own string) string {
	if own == "" {
		return upstream
	}
	return upstream + "; " + own
}
