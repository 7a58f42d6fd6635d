// Package pipeline sequences a user turn through resolution, data fetch,
// chart building and analysis, and assembles the final Answer.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/newsense-analyst/chart"
	"github.com/smallnest/newsense-analyst/kg"
	"github.com/smallnest/newsense-analyst/log"
	"github.com/smallnest/newsense-analyst/resolver"
	"github.com/smallnest/newsense-analyst/series"
)

// State is the stage a turn is in.
type State string

const (
	StateReceived  State = "received"
	StateResolving State = "resolving"
	StateFetching  State = "fetching"
	StateCharting  State = "charting"
	StateAnalyzing State = "analyzing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// analysisPlaceholder replaces the analysis text when the generator fails;
// the chart and data still ship.
const analysisPlaceholder = "Analysis is unavailable for this turn. The chart and data are complete."

// Answer is the immutable result of one turn. The caller owns it; the
// pipeline does not persist it.
type Answer struct {
	TurnID       string                  `json:"turn_id"`
	Question     string                  `json:"question"`
	Resolved     *resolver.ResolvedQuery `json:"resolved_query"`
	Records      []series.Record         `json:"records"`
	Chart        chart.Spec              `json:"chart"`
	AnalysisText string                  `json:"analysis_text"`
	Warnings     []string                `json:"warnings,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
}

// Resolver converts a question into a structured query.
type Resolver interface {
	Resolve(question string) (*resolver.ResolvedQuery, error)
}

// Fetcher retrieves and normalizes data for a resolved query.
type Fetcher interface {
	Fetch(ctx context.Context, q *resolver.ResolvedQuery) ([]series.Record, []string, error)
}

// Analyzer produces a grounded text analysis of the records.
type Analyzer interface {
	Analyze(ctx context.Context, question string, records []series.Record, q *resolver.ResolvedQuery) (string, []string, error)
}

// Orchestrator runs turns through the pipeline stages.
type Orchestrator struct {
	resolver Resolver
	fetcher  Fetcher
	analyzer Analyzer
	logger   log.Logger
}

// NewOrchestrator wires the pipeline stages together. A nil logger disables
// logging.
func NewOrchestrator(r Resolver, f Fetcher, a Analyzer, logger log.Logger) *Orchestrator {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &Orchestrator{resolver: r, fetcher: f, analyzer: a, logger: logger}
}

// Run processes one user turn: Received → Resolving → Fetching →
// {Charting, Analyzing} → Completed|Failed. Resolution and total-fetch
// failures fail the turn; partial fetches and analysis failures degrade it to
// a completed answer with warnings. Charting and analysis run concurrently;
// if the caller cancels, the in-flight analysis call is abandoned rather than
// waited on.
func (o *Orchestrator) Run(ctx context.Context, question string) (*Answer, error) {
	turnID := uuid.NewString()
	o.transition(turnID, StateReceived)

	o.transition(turnID, StateResolving)
	resolved, err := o.resolver.Resolve(question)
	if err != nil {
		o.transition(turnID, StateFailed)
		return nil, fmt.Errorf("resolving question: %w", err)
	}
	o.logger.Debug("turn %s resolved metric=%s filters=%d confidence=%.2f",
		turnID, resolved.MetricID, len(resolved.DimensionFilters), resolved.Confidence)

	o.transition(turnID, StateFetching)
	records, warnings, err := o.fetcher.Fetch(ctx, resolved)
	if err != nil {
		o.transition(turnID, StateFailed)
		return nil, fmt.Errorf("fetching data: %w", err)
	}

	type analysisResult struct {
		text     string
		warnings []string
		err      error
	}
	analysisCh := make(chan analysisResult, 1)
	o.transition(turnID, StateAnalyzing)
	go func() {
		text, warns, err := o.analyzer.Analyze(ctx, question, records, resolved)
		analysisCh <- analysisResult{text: text, warnings: warns, err: err}
	}()

	o.transition(turnID, StateCharting)
	hint := kg.VizLine
	if resolved.Metric != nil {
		hint = resolved.Metric.VizHint
	}
	spec := chart.Build(records, hint)

	answer := &Answer{
		TurnID:    turnID,
		Question:  question,
		Resolved:  resolved,
		Records:   records,
		Chart:     spec,
		Warnings:  warnings,
		CreatedAt: time.Now(),
	}

	select {
	case res := <-analysisCh:
		if res.err != nil {
			o.logger.Warn("turn %s analysis degraded: %v", turnID, res.err)
			answer.AnalysisText = analysisPlaceholder
			answer.Warnings = append(answer.Warnings, fmt.Sprintf("analysis failed: %v", res.err))
		} else {
			answer.AnalysisText = res.text
			answer.Warnings = append(answer.Warnings, res.warnings...)
		}
	case <-ctx.Done():
		// Caller cancelled: abandon the in-flight model call.
		o.transition(turnID, StateFailed)
		return nil, ctx.Err()
	}

	o.transition(turnID, StateCompleted)
	return answer, nil
}

func (o *Orchestrator) transition(turnID string, state State) {
	o.logger.Debug("turn %s -> %s", turnID, state)
}
