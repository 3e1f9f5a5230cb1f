// ABOUTME: Deal MCP tool handlers
// ABOUTME: Implements list_deals, analyze_deal, and dedupe_items tools
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/revos/db"
	"github.com/harperreed/revos/dedupe"
	"github.com/harperreed/revos/llm"
	"github.com/harperreed/revos/models"
)

type DealHandlers struct {
	db        *sql.DB
	completer llm.Completer
}

// NewDealHandlers creates the deal tool handlers. completer may be nil;
// analyze_deal then reports that no LLM is configured.
func NewDealHandlers(database *sql.DB, completer llm.Completer) *DealHandlers {
	return &DealHandlers{db: database, completer: completer}
}

type ListDealsInput struct {
	AccountID string `json:"account_id,omitempty" jsonschema:"Account to list deals for (default: default)"`
	Provider  string `json:"provider,omitempty" jsonschema:"Filter by provider"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Max results (default 50)"`
}

type ContactOutput struct {
	Name            string `json:"name"`
	Email           string `json:"email,omitempty"`
	Role            string `json:"role,omitempty"`
	IsPrimary       bool   `json:"is_primary,omitempty"`
	IsDecisionMaker bool   `json:"is_decision_maker,omitempty"`
}

type DealOutput struct {
	ID          string          `json:"id"`
	Provider    string          `json:"provider"`
	ExternalID  string          `json:"external_id"`
	CompanyName string          `json:"company_name"`
	Amount      int64           `json:"amount,omitempty"`
	Currency    string          `json:"currency"`
	Stage       string          `json:"stage"`
	CloseDate   string          `json:"close_date,omitempty"`
	PainPoints  []string        `json:"pain_points,omitempty"`
	NextSteps   []string        `json:"next_steps,omitempty"`
	Contacts    []ContactOutput `json:"contacts,omitempty"`
}

type ListDealsOutput struct {
	Deals []DealOutput `json:"deals"`
	Count int          `json:"count"`
}

func (h *DealHandlers) ListDeals(_ context.Context, request *mcp.CallToolRequest, input ListDealsInput) (*mcp.CallToolResult, ListDealsOutput, error) {
	accountID := input.AccountID
	if accountID == "" {
		accountID = defaultAccountID
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}

	deals, err := db.ListDeals(h.db, accountID, input.Provider, limit)
	if err != nil {
		return nil, ListDealsOutput{}, err
	}

	output := ListDealsOutput{Count: len(deals)}
	for _, deal := range deals {
		out := dealToOutput(&deal)

		contacts, err := db.GetDealContacts(h.db, deal.ID)
		if err == nil {
			for _, c := range contacts {
				out.Contacts = append(out.Contacts, ContactOutput{
					Name:            c.Name,
					Email:           c.Email,
					Role:            c.Role,
					IsPrimary:       c.IsPrimary,
					IsDecisionMaker: c.IsDecisionMaker,
				})
			}
		}
		output.Deals = append(output.Deals, out)
	}
	return nil, output, nil
}

type AnalyzeDealInput struct {
	DealID string `json:"deal_id" jsonschema:"Deal to analyze (required)"`
	Notes  string `json:"notes" jsonschema:"Freeform call or meeting notes to extract intelligence from (required)"`
}

type AnalyzeDealOutput struct {
	PainPoints []string `json:"pain_points"`
	NextSteps  []string `json:"next_steps"`
}

func (h *DealHandlers) AnalyzeDeal(ctx context.Context, request *mcp.CallToolRequest, input AnalyzeDealInput) (*mcp.CallToolResult, AnalyzeDealOutput, error) {
	if h.completer == nil {
		return nil, AnalyzeDealOutput{}, fmt.Errorf("no LLM configured; set LLM_API_KEY")
	}
	if input.Notes == "" {
		return nil, AnalyzeDealOutput{}, fmt.Errorf("notes is required")
	}

	dealID, err := uuid.Parse(input.DealID)
	if err != nil {
		return nil, AnalyzeDealOutput{}, fmt.Errorf("invalid deal_id: %w", err)
	}

	deal, err := db.GetDeal(h.db, dealID)
	if err != nil {
		return nil, AnalyzeDealOutput{}, err
	}
	if deal == nil {
		return nil, AnalyzeDealOutput{}, fmt.Errorf("deal not found: %s", input.DealID)
	}

	analysis, err := llm.NewAnalyzer(h.db, h.completer).AnalyzeDeal(ctx, deal, input.Notes)
	if err != nil {
		return nil, AnalyzeDealOutput{}, err
	}

	return nil, AnalyzeDealOutput{
		PainPoints: analysis.PainPoints,
		NextSteps:  analysis.NextSteps,
	}, nil
}

type DedupeItemsInput struct {
	Items     []string `json:"items" jsonschema:"Items to dedupe (required)"`
	Threshold float64  `json:"threshold,omitempty" jsonschema:"Token-overlap similarity threshold (default 0.8)"`
}

type DedupeItemsOutput struct {
	Items   []string `json:"items"`
	Removed int      `json:"removed"`
}

func (h *DealHandlers) DedupeItems(_ context.Context, request *mcp.CallToolRequest, input DedupeItemsInput) (*mcp.CallToolResult, DedupeItemsOutput, error) {
	if len(input.Items) == 0 {
		return nil, DedupeItemsOutput{}, fmt.Errorf("items is required")
	}

	threshold := input.Threshold
	if threshold <= 0 {
		threshold = dedupe.DefaultThreshold
	}

	kept := dedupe.Dedupe(input.Items, threshold)
	return nil, DedupeItemsOutput{
		Items:   kept,
		Removed: len(input.Items) - len(kept),
	}, nil
}

func dealToOutput(deal *models.Deal) DealOutput {
	out := DealOutput{
		ID:          deal.ID.String(),
		Provider:    deal.Provider,
		ExternalID:  deal.ExternalID,
		CompanyName: deal.CompanyName,
		Amount:      deal.Amount,
		Currency:    deal.Currency,
		Stage:       deal.Stage,
		PainPoints:  deal.PainPoints,
		NextSteps:   deal.NextSteps,
	}
	if deal.CloseDate != nil {
		out.CloseDate = deal.CloseDate.Format(time.RFC3339)
	}
	return out
}
