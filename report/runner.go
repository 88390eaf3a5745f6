package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"surveyor/config"
	"surveyor/llm"
	"surveyor/research"
	"surveyor/store"
	"surveyor/streamers"
)

// ResearchRunner executes one research query end to end.
// *research.Orchestrator satisfies this.
type ResearchRunner interface {
	Run(ctx context.Context, query string, handler streamers.ResearchHandler) (*research.Result, error)
}

// Runner executes a configured report: it researches each query in turn,
// renders the digest, persists it, and mails it when recipients are set.
type Runner struct {
	runner  ResearchRunner
	reports store.ReportStore
	mailer  Mailer
	retry   llm.RetryPolicy
	logger  hclog.Logger
}

func NewRunner(runner ResearchRunner, reports store.ReportStore, mailer Mailer, logger hclog.Logger) *Runner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Runner{
		runner:  runner,
		reports: reports,
		mailer:  mailer,
		retry:   llm.DefaultRetryPolicy,
		logger:  logger,
	}
}

// SetRetryPolicy overrides the retry policy used for mail delivery.
func (r *Runner) SetRetryPolicy(policy llm.RetryPolicy) {
	r.retry = policy
}

// Execute runs all queries in the report config sequentially. A failed query
// becomes an error section in the digest rather than failing the whole report.
func (r *Runner) Execute(ctx context.Context, cfg *config.ReportConfig) (*store.Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report config: %w", err)
	}

	title := cfg.Title
	if title == "" {
		title = cfg.Name
	}

	digest := &Digest{
		Title:       title,
		GeneratedAt: time.Now(),
	}

	var runIDs []string
	for _, query := range cfg.Queries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		r.logger.Info("researching report query", "report", cfg.Name, "query", query)
		section := Section{Query: query}

		result, err := r.runner.Run(ctx, query, streamers.NullHandler{})
		if err != nil {
			r.logger.Error("report query failed", "query", query, "error", err)
			section.Err = err.Error()
			digest.Sections = append(digest.Sections, section)
			continue
		}

		essay, err := RenderMarkdown(result.Essay)
		if err != nil {
			return nil, err
		}
		section.Essay = essay
		section.Sources = result.Sources
		runIDs = append(runIDs, result.RunID)
		digest.Sections = append(digest.Sections, section)
	}

	html, err := digest.RenderHTML()
	if err != nil {
		return nil, err
	}

	record := digest.ToRecord(uuid.New().String(), html, runIDs)
	if r.reports != nil {
		if err := r.reports.SaveReport(record); err != nil {
			return nil, fmt.Errorf("save report: %w", err)
		}
	}

	if len(cfg.Recipients) > 0 {
		if r.mailer == nil {
			return nil, fmt.Errorf("report has recipients but no mailer configured")
		}
		err := r.retry.Do(ctx, func() error {
			return r.mailer.Send(cfg.Recipients, title, html)
		})
		if err != nil {
			return nil, fmt.Errorf("deliver report: %w", err)
		}
		r.logger.Info("report delivered", "report", cfg.Name, "recipients", len(cfg.Recipients))
	}

	return &record, nil
}
