package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobhound/internal/jobs"
	"github.com/spigell/jobhound/internal/match"
)

const (
	discordTimeout   = 10 * time.Second
	discordUsername  = "jobhound"
	maxEmbedField    = 1024
	maxEmbedDescText = 4096
)

var classificationColors = map[match.Classification]int{
	match.Excellent: 0x2ecc71,
	match.Good:      0x3498db,
	match.Fair:      0xf1c40f,
	match.Poor:      0xe74c3c,
}

var runStatusColors = map[RunStatus]int{
	RunSuccess: 0x2ecc71,
	RunPartial: 0xf1c40f,
	RunFailed:  0xe74c3c,
}

// Discord posts embeds to a Discord webhook.
type Discord struct {
	webhookURL string
	logger     *zap.Logger
	HTTPClient *http.Client
}

func NewDiscord(webhookURL string, logger *zap.Logger) *Discord {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discord{
		webhookURL: strings.TrimSpace(webhookURL),
		logger:     logger,
		HTTPClient: &http.Client{
			Timeout: discordTimeout,
		},
	}
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	URL         string         `json:"url,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Footer      *discordFooter `json:"footer,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordFooter struct {
	Text string `json:"text"`
}

func (d *Discord) NotifyMatch(ctx context.Context, posting *jobs.Posting, result *match.Result) Status {
	return d.send(ctx, matchEmbed(posting, result))
}

func (d *Discord) NotifySummary(ctx context.Context, summary *RunSummary) Status {
	return d.send(ctx, summaryEmbed(summary))
}

func (d *Discord) send(ctx context.Context, embed discordEmbed) Status {
	if d.webhookURL == "" {
		d.logger.Warn("discord webhook is not configured")
		return StatusErrorNoWebhook
	}

	body, err := json.Marshal(discordPayload{Username: discordUsername, Embeds: []discordEmbed{embed}})
	if err != nil {
		d.logger.Error("failed to encode discord payload", zap.Error(err))
		return StatusErrorSendFailed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		d.logger.Error("failed to build discord request", zap.Error(err))
		return StatusErrorSendFailed
	}
	req.Header.Set("Content-Type", "application/json")

	d.logger.Debug("make request", zap.String("title", embed.Title))
	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		d.logger.Error("discord request failed", zap.Error(err))
		return StatusErrorSendFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Error("discord returned bad status", zap.String("status", resp.Status))
		return StatusErrorSendFailed
	}

	return StatusSuccess
}

func matchEmbed(p *jobs.Posting, r *match.Result) discordEmbed {
	title := fmt.Sprintf("%s at %s", p.Title, p.Company)

	fields := []discordField{
		{Name: "Score", Value: fmt.Sprintf("%.1f%% (%s)", r.Scores.Total, r.Classification), Inline: true},
		{Name: "Recommendation", Value: string(r.Recommendation), Inline: true},
	}
	if p.Location != "" {
		fields = append(fields, discordField{Name: "Location", Value: p.Location, Inline: true})
	}
	if p.ApplicantCount != nil {
		fields = append(fields, discordField{Name: "Applicants", Value: strconv.Itoa(*p.ApplicantCount), Inline: true})
	}
	if p.TimePostedText != "" {
		fields = append(fields, discordField{Name: "Posted", Value: p.TimePostedText, Inline: true})
	}
	fields = appendList(fields, "Matched skills", r.MatchedSkills, ", ")
	fields = appendList(fields, "Skill gaps", r.SkillGaps, ", ")
	fields = appendList(fields, "Strengths", r.Strengths, "\n")
	fields = appendList(fields, "Concerns", r.Weaknesses, "\n")
	fields = appendList(fields, "Interview tips", r.InterviewTips, "\n")

	footer := "rule-based analysis"
	if r.LLMAnalysis {
		footer = "analyzed by " + r.LLMModel
	}

	return discordEmbed{
		Title:       truncate(title, 256),
		URL:         p.URL,
		Description: truncate(r.Reasoning, maxEmbedDescText),
		Color:       classificationColors[r.Classification],
		Fields:      fields,
		Footer:      &discordFooter{Text: footer},
		Timestamp:   r.MatchedAt.UTC().Format(time.RFC3339),
	}
}

func summaryEmbed(s *RunSummary) discordEmbed {
	counters := fmt.Sprintf(
		"Scraped: %d\nNew: %d\nAlready notified: %d\nCompany excluded: %d\nPre-filter passed: %d\nPre-filter rejected: %d\n"+
			"Matched: %d (LLM %d, fallback %d)\nNotified: %d\nBelow threshold: %d\nFailed: %d",
		s.Scraped, s.New, s.AlreadyNotified, s.CompanyExcluded, s.PrefilterPassed, s.PrefilterRejected,
		s.Matched, s.LLMAnalyzed, s.Fallbacks, s.Notified, s.BelowThreshold, s.Failed,
	)

	fields := []discordField{
		{Name: "Status", Value: string(s.Status), Inline: true},
		{Name: "Elapsed", Value: s.Elapsed.Round(time.Second).String(), Inline: true},
		{Name: "Counters", Value: counters},
	}

	if len(s.TopMatches) > 0 {
		lines := make([]string, 0, len(s.TopMatches))
		for i, m := range s.TopMatches {
			lines = append(lines, fmt.Sprintf("%d. %s at %s (%.1f%%)", i+1, m.Title, m.Company, m.Score))
		}
		fields = appendList(fields, "Top matches", lines, "\n")
	}
	fields = appendList(fields, "Errors", s.Errors, "\n")

	return discordEmbed{
		Title:     fmt.Sprintf("Run summary: %s", s.RunType),
		Color:     runStatusColors[s.Status],
		Fields:    fields,
		Footer:    &discordFooter{Text: s.RunID},
		Timestamp: s.StartedAt.UTC().Format(time.RFC3339),
	}
}

func appendList(fields []discordField, name string, items []string, sep string) []discordField {
	if len(items) == 0 {
		return fields
	}
	return append(fields, discordField{Name: name, Value: truncate(strings.Join(items, sep), maxEmbedField)})
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
