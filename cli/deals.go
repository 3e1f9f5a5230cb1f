// ABOUTME: Deal CLI commands
// ABOUTME: Lists canonical deals, runs analysis, and dedupes text lists
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/harperreed/revos/db"
	"github.com/harperreed/revos/dedupe"
	"github.com/harperreed/revos/llm"
)

// ListDealsCommand prints canonical deals for an account.
func ListDealsCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("list-deals", flag.ExitOnError)
	account := fs.String("account", defaultAccountID, "Account to list deals for")
	provider := fs.String("provider", "", "Filter by provider")
	limit := fs.Int("limit", 50, "Max results")
	_ = fs.Parse(args)

	deals, err := db.ListDeals(database, *account, *provider, *limit)
	if err != nil {
		return err
	}
	if len(deals) == 0 {
		fmt.Println("No deals found. Run 'revos sync <provider>' to import some.")
		return nil
	}

	fmt.Printf("Deals (%d):\n", len(deals))
	for _, deal := range deals {
		fmt.Printf("  %s  %-30s %-12s %-14s $%d\n",
			deal.ID, truncate(deal.CompanyName, 30), deal.Provider, deal.Stage, deal.Amount/100)
		if len(deal.PainPoints) > 0 {
			fmt.Printf("      pain points: %s\n", strings.Join(deal.PainPoints, "; "))
		}
		if len(deal.NextSteps) > 0 {
			fmt.Printf("      next steps:  %s\n", strings.Join(deal.NextSteps, "; "))
		}
	}
	return nil
}

// AnalyzeCommand runs the LLM analyzer over notes for one deal.
func AnalyzeCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	notes := fs.String("notes", "", "Freeform notes to analyze (required)")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: analyze --notes <text> <deal-id>")
	}
	if *notes == "" {
		return fmt.Errorf("--notes is required")
	}

	dealID, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid deal id: %w", err)
	}

	deal, err := db.GetDeal(database, dealID)
	if err != nil {
		return err
	}
	if deal == nil {
		return fmt.Errorf("deal not found: %s", dealID)
	}

	completer, err := llm.NewHTTPCompleter()
	if err != nil {
		return err
	}

	fmt.Printf("→ Analyzing notes for %s...\n", deal.CompanyName)
	analysis, err := llm.NewAnalyzer(database, completer).AnalyzeDeal(context.Background(), deal, *notes)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Extracted %d pain points, %d next steps\n", len(analysis.PainPoints), len(analysis.NextSteps))
	for _, p := range analysis.PainPoints {
		fmt.Printf("  pain point: %s\n", p)
	}
	for _, n := range analysis.NextSteps {
		fmt.Printf("  next step:  %s\n", n)
	}
	return nil
}

// DedupeCommand dedupes a list of items from the command line, mostly
// useful for eyeballing the matcher's behavior.
func DedupeCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("dedupe", flag.ExitOnError)
	threshold := fs.Float64("threshold", dedupe.DefaultThreshold, "Token-overlap similarity threshold")
	_ = fs.Parse(args)

	items := fs.Args()
	if len(items) == 0 {
		return fmt.Errorf("usage: dedupe [--threshold <t>] <item> [item...]")
	}

	kept := dedupe.Dedupe(items, *threshold)
	fmt.Printf("Kept %d of %d items:\n", len(kept), len(items))
	for _, item := range kept {
		fmt.Printf("  - %s\n", item)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
