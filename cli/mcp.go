// ABOUTME: MCP server subcommand
// ABOUTME: Exposes the integration core as MCP tools on stdio
package cli

import (
	"context"
	"database/sql"
	"log"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/revos/handlers"
	"github.com/harperreed/revos/llm"
)

// MCPCommand starts the MCP server on stdio.
func MCPCommand(db *sql.DB) error {
	log.Println("Starting revos MCP server...")

	// The analyzer is optional; without an API key the analyze_deal tool
	// reports that no LLM is configured.
	var completer llm.Completer
	if c, err := llm.NewHTTPCompleter(); err == nil {
		completer = c
	}

	providerHandlers := handlers.NewProviderHandlers(db)
	dealHandlers := handlers.NewDealHandlers(db, completer)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "revos",
		Version: "0.1.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "connect_provider",
		Description: "Store a provider connection from an OAuth authorization code",
	}, providerHandlers.ConnectProvider)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_provider",
		Description: "Run an incremental sync for one connected provider",
	}, providerHandlers.SyncProvider)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_status",
		Description: "Report the sync watermark and status for every provider",
	}, providerHandlers.SyncStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_deals",
		Description: "List canonical deals with contacts, pain points, and next steps",
	}, dealHandlers.ListDeals)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_deal",
		Description: "Extract pain points and next steps from freeform notes and merge them into a deal",
	}, dealHandlers.AnalyzeDeal)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "dedupe_items",
		Description: "Remove near-duplicate strings from a list using fuzzy matching",
	}, dealHandlers.DedupeItems)

	ctx := context.Background()
	return server.Run(ctx, &mcp.StdioTransport{})
}
