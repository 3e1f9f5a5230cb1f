// ABOUTME: Deal analyzer extracting pain points and next steps from notes
// ABOUTME: Parses completion output into lists and merges them through the deduplicator
package llm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/harperreed/revos/db"
	"github.com/harperreed/revos/models"
)

// Analyzer turns freeform deal notes into structured pain-point and
// next-step lists and folds them into the stored deal.
type Analyzer struct {
	database  *sql.DB
	completer Completer
}

// NewAnalyzer creates a deal analyzer.
func NewAnalyzer(database *sql.DB, completer Completer) *Analyzer {
	return &Analyzer{database: database, completer: completer}
}

// Analysis is the structured output of one analyzer pass.
type Analysis struct {
	PainPoints []string
	NextSteps  []string
}

// AnalyzeDeal extracts pain points and next steps from the notes and
// merges them into the deal. Existing entries win on near-duplicates;
// the merge happens through the same dedup path every writer uses.
func (a *Analyzer) AnalyzeDeal(ctx context.Context, deal *models.Deal, notes string) (*Analysis, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, fmt.Errorf("no notes to analyze")
	}

	completion, err := a.completer.Complete(ctx, buildAnalysisPrompt(deal, notes))
	if err != nil {
		return nil, fmt.Errorf("analysis completion failed: %w", err)
	}

	analysis := parseAnalysis(completion)
	if len(analysis.PainPoints) == 0 && len(analysis.NextSteps) == 0 {
		return analysis, nil
	}

	if err := db.MergeDealAnalysis(a.database, deal.ID, analysis.PainPoints, analysis.NextSteps); err != nil {
		return nil, err
	}

	return analysis, nil
}

func buildAnalysisPrompt(deal *models.Deal, notes string) string {
	var b strings.Builder
	b.WriteString("Extract sales intelligence from these deal notes.\n\n")
	b.WriteString(fmt.Sprintf("Company: %s\n", deal.CompanyName))
	b.WriteString(fmt.Sprintf("Stage: %s\n\n", deal.Stage))
	b.WriteString("Notes:\n")
	b.WriteString(notes)
	b.WriteString("\n\nRespond with exactly two sections:\n")
	b.WriteString("PAIN POINTS:\n- one per line\n")
	b.WriteString("NEXT STEPS:\n- one per line\n")
	b.WriteString("Use only information from the notes. Empty sections are fine.")
	return b.String()
}

// parseAnalysis reads the two-section bullet format back out of the
// completion. Unrecognized lines are ignored rather than guessed at.
func parseAnalysis(completion string) *Analysis {
	analysis := &Analysis{}
	section := ""

	for _, line := range strings.Split(completion, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "PAIN POINTS"):
			section = "pain"
			continue
		case strings.HasPrefix(upper, "NEXT STEPS"):
			section = "next"
			continue
		}

		// Only bullet lines count; surrounding prose is ignored.
		if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "*") && !strings.HasPrefix(line, "•") {
			continue
		}
		item := strings.TrimSpace(strings.TrimLeft(line, "-*• \t"))
		if item == "" {
			continue
		}

		switch section {
		case "pain":
			analysis.PainPoints = append(analysis.PainPoints, item)
		case "next":
			analysis.NextSteps = append(analysis.NextSteps, item)
		}
	}

	return analysis
}
