// Package analysis produces grounded natural-language summaries of fetched
// data by prompting an external language model and validating that the reply
// only references the data it was given.
package analysis

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/newsense-analyst/log"
	"github.com/smallnest/newsense-analyst/resolver"
	"github.com/smallnest/newsense-analyst/series"
)

// Error kinds carried by AnalysisError.
const (
	KindBackend    = "backend"
	KindUngrounded = "ungrounded"
)

// WarnUnverified marks a reply whose claims could not be extracted for
// grounding checks; the text is passed through unvalidated.
const WarnUnverified = "analysis unverified: reply carried no extractable claims to check"

// AnalysisError is a failed analysis. The orchestrator degrades the turn to
// a partial answer instead of failing it.
type AnalysisError struct {
	Kind string
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed (%s): %v", e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Config configures the generator.
type Config struct {
	// Temperature and MaxTokens are forwarded to the model call.
	Temperature float64
	MaxTokens   int
	// MaxRecords bounds the grounding context sent to the model.
	MaxRecords int
	// MaxRetries and InitialBackoff drive retries on transient call failures.
	MaxRetries     int
	InitialBackoff time.Duration
	// Timeout bounds each individual model call.
	Timeout time.Duration
}

// DefaultConfig returns the default generator configuration.
func DefaultConfig() Config {
	return Config{
		Temperature:    0.0,
		MaxTokens:      1024,
		MaxRecords:     200,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		Timeout:        30 * time.Second,
	}
}

// Generator prompts a language model for a grounded analysis.
type Generator struct {
	llm    llms.Model
	cfg    Config
	logger log.Logger
}

// NewGenerator creates a Generator around any langchaingo model.
func NewGenerator(llm llms.Model, cfg Config, logger log.Logger) *Generator {
	def := DefaultConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = def.MaxRecords
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &Generator{llm: llm, cfg: cfg, logger: logger}
}

// Analyze produces an analysis of the records for the original question.
// It returns the text, any warnings, and an *AnalysisError on failure.
func (g *Generator) Analyze(ctx context.Context, question string, records []series.Record, q *resolver.ResolvedQuery) (string, []string, error) {
	if len(records) == 0 {
		return "No data points were returned for this query, so there is nothing to analyze.", nil, nil
	}

	prompt := buildPrompt(question, records, q, g.cfg.MaxRecords)

	text, err := g.generate(ctx, prompt)
	if err != nil {
		return "", nil, &AnalysisError{Kind: KindBackend, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil, &AnalysisError{Kind: KindBackend, Err: fmt.Errorf("model returned empty analysis")}
	}

	warnings, err := validateGrounding(text, records, q)
	if err != nil {
		return "", nil, err
	}
	return text, warnings, nil
}

// generate calls the model with bounded retries and exponential backoff.
func (g *Generator) generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	delay := g.cfg.InitialBackoff

	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		text, err := llms.GenerateFromSinglePrompt(callCtx, g.llm, prompt,
			llms.WithTemperature(g.cfg.Temperature),
			llms.WithMaxTokens(g.cfg.MaxTokens),
		)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		g.logger.Warn("model call attempt %d/%d failed: %v", attempt, g.cfg.MaxRetries, err)
		if attempt == g.cfg.MaxRetries {
			break
		}

		jitter := time.Duration(float64(delay) * 0.25 * (2*rand.Float64() - 1))
		select {
		case <-time.After(delay + jitter):
			delay *= 2
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("max retries (%d) exceeded: %w", g.cfg.MaxRetries, lastErr)
}
