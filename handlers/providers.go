// ABOUTME: Provider MCP tool handlers
// ABOUTME: Implements connect_provider, sync_provider, and sync_status tools
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/revos/db"
	"github.com/harperreed/revos/models"
	"github.com/harperreed/revos/providers"
	"github.com/harperreed/revos/sync"
)

const defaultAccountID = "default"

type ProviderHandlers struct {
	db           *sql.DB
	orchestrator *sync.Orchestrator
}

func NewProviderHandlers(database *sql.DB) *ProviderHandlers {
	return &ProviderHandlers{
		db:           database,
		orchestrator: sync.NewOrchestrator(database, providers.DefaultRegistry(), providers.NewRefresher(database)),
	}
}

type ConnectProviderInput struct {
	Provider  string `json:"provider" jsonschema:"Provider to connect: gmail, hubspot, pipedrive, salesforce, zoho, folk, slack"`
	Code      string `json:"code" jsonschema:"OAuth authorization code from the provider's consent screen"`
	AccountID string `json:"account_id,omitempty" jsonschema:"Account to attach the connection to (default: default)"`
}

type ConnectProviderOutput struct {
	Provider    string `json:"provider"`
	Refreshable bool   `json:"refreshable"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

func (h *ProviderHandlers) ConnectProvider(ctx context.Context, request *mcp.CallToolRequest, input ConnectProviderInput) (*mcp.CallToolResult, ConnectProviderOutput, error) {
	if !models.IsValidProvider(input.Provider) {
		return nil, ConnectProviderOutput{}, fmt.Errorf("unknown provider: %s", input.Provider)
	}
	if input.Code == "" {
		return nil, ConnectProviderOutput{}, fmt.Errorf("code is required")
	}

	accountID := input.AccountID
	if accountID == "" {
		accountID = defaultAccountID
	}

	cred, err := providers.Exchange(ctx, accountID, input.Provider, input.Code)
	if err != nil {
		return nil, ConnectProviderOutput{}, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if err := db.UpsertCredential(h.db, cred); err != nil {
		return nil, ConnectProviderOutput{}, fmt.Errorf("failed to store credential: %w", err)
	}

	output := ConnectProviderOutput{
		Provider:    input.Provider,
		Refreshable: providers.Refreshable(input.Provider),
	}
	if cred.ExpiresAt != nil {
		output.ExpiresAt = cred.ExpiresAt.Format(time.RFC3339)
	}
	return nil, output, nil
}

type SyncProviderInput struct {
	Provider  string `json:"provider" jsonschema:"Provider to sync"`
	AccountID string `json:"account_id,omitempty" jsonschema:"Account to sync (default: default)"`
}

type SyncProviderOutput struct {
	RunID    string `json:"run_id"`
	Status   string `json:"status"`
	Pages    int    `json:"pages"`
	Imported int    `json:"imported"`
	Updated  int    `json:"updated"`
	Errors   int    `json:"errors,omitempty"`
}

func (h *ProviderHandlers) SyncProvider(ctx context.Context, request *mcp.CallToolRequest, input SyncProviderInput) (*mcp.CallToolResult, SyncProviderOutput, error) {
	accountID := input.AccountID
	if accountID == "" {
		accountID = defaultAccountID
	}

	result, err := h.orchestrator.Sync(ctx, accountID, input.Provider)
	if err != nil {
		return nil, SyncProviderOutput{}, err
	}

	return nil, SyncProviderOutput{
		RunID:    result.RunID,
		Status:   result.Status,
		Pages:    result.Pages,
		Imported: result.Imported,
		Updated:  result.Updated,
		Errors:   result.Errors,
	}, nil
}

type SyncStatusInput struct {
	AccountID string `json:"account_id,omitempty" jsonschema:"Account to inspect (default: default)"`
}

type WatermarkOutput struct {
	Provider     string `json:"provider"`
	Status       string `json:"status"`
	Cursor       string `json:"cursor,omitempty"`
	LastRunAt    string `json:"last_run_at,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type SyncStatusOutput struct {
	Watermarks []WatermarkOutput `json:"watermarks"`
}

func (h *ProviderHandlers) SyncStatus(_ context.Context, request *mcp.CallToolRequest, input SyncStatusInput) (*mcp.CallToolResult, SyncStatusOutput, error) {
	accountID := input.AccountID
	if accountID == "" {
		accountID = defaultAccountID
	}

	states, err := db.GetAllSyncStates(h.db, accountID)
	if err != nil {
		return nil, SyncStatusOutput{}, err
	}

	output := SyncStatusOutput{}
	for _, state := range states {
		w := WatermarkOutput{
			Provider:     state.Provider,
			Status:       state.Status,
			Cursor:       state.Cursor,
			ErrorMessage: state.ErrorMessage,
		}
		if state.LastRunAt != nil {
			w.LastRunAt = state.LastRunAt.Format(time.RFC3339)
		}
		output.Watermarks = append(output.Watermarks, w)
	}
	return nil, output, nil
}
