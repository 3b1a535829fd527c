package genai

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/advisor"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/report"
)

// Finding is one recommendation the advisor deliberately left open.
type Finding struct {
	Table       string
	Column      string
	ValueKind   advisor.ValueKind
	StorageType string
	// AmbiguousNullability and BenchmarkRequired say which decision is open.
	AmbiguousNullability bool
	BenchmarkRequired    bool
	NullRatio            float64
	Rationale            string
}

// Target names the column the way log lines do.
func (f Finding) Target() string {
	return fmt.Sprintf("Column[%s.%s]", f.Table, f.Column)
}

// Question describes the open decision.
func (f Finding) Question() string {
	switch {
	case f.AmbiguousNullability && f.BenchmarkRequired:
		return fmt.Sprintf("nullable vs NOT NULL with a default (null ratio %.2f), and dictionary encoding vs plain storage", f.NullRatio)
	case f.AmbiguousNullability:
		return fmt.Sprintf("nullable vs NOT NULL with a default (null ratio %.2f)", f.NullRatio)
	}
	return "dictionary encoding vs plain storage; needs a benchmark on real data"
}

// FindingsFrom collects every recommendation that needs review.
func FindingsFrom(advice []*advisor.TableAdvice) []Finding {
	var out []Finding
	for _, a := range advice {
		if a == nil {
			continue
		}
		for _, rec := range a.NeedsReview() {
			f := Finding{
				Table:                a.Table,
				Column:               rec.Column,
				ValueKind:            rec.ValueKind,
				StorageType:          rec.Type.String(),
				AmbiguousNullability: rec.Nullability.NeedsReview(),
				NullRatio:            rec.Nullability.NullRatio,
				Rationale:            rec.Rationale,
			}
			if rec.Encoding != nil {
				f.BenchmarkRequired = rec.Encoding.BenchmarkRequired
			}
			out = append(out, f)
		}
	}
	return out
}

// Reviewer turns open findings into advisory report notes.
type Reviewer struct {
	client           LLMClient
	knowledgeContext string
	maxConcurrency   int
	logger           *zap.Logger
}

// NewReviewer creates a reviewer. knowledgeContext is optional free text
// about the data, passed to the model with every finding.
func NewReviewer(client LLMClient, knowledgeContext string, maxConcurrency int, logger *zap.Logger) *Reviewer {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reviewer{
		client:           client,
		knowledgeContext: knowledgeContext,
		maxConcurrency:   maxConcurrency,
		logger:           logger.Named("reviewer"),
	}
}

// Review asks the model about each finding. A failed request is logged and
// skipped; only cancellation of ctx is returned as an error.
func (r *Reviewer) Review(ctx context.Context, findings []Finding) ([]report.Note, error) {
	var (
		notes []report.Note
		mu    sync.Mutex
		wg    sync.WaitGroup
		sem   = make(chan struct{}, r.maxConcurrency)
	)

	for _, f := range findings {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}
		wg.Add(1)
		go func(f Finding) {
			defer wg.Done()
			defer func() { <-sem }()

			text, err := r.client.ReviewFinding(ctx, f, r.knowledgeContext)
			if err != nil {
				r.logger.Warn("Review request failed", zap.String("target", f.Target()), zap.Error(err))
				return
			}
			if text == "" {
				return
			}
			mu.Lock()
			notes = append(notes, report.Note{Table: f.Table, Column: f.Column, Text: text})
			mu.Unlock()
		}(f)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(notes, func(i, j int) bool {
		if notes[i].Table != notes[j].Table {
			return notes[i].Table < notes[j].Table
		}
		return notes[i].Column < notes[j].Column
	})
	r.logger.Info("Review finished", zap.Int("findings", len(findings)), zap.Int("notes", len(notes)))
	return notes, nil
}
