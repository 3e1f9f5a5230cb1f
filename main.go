// ABOUTME: Entry point for the revos MCP server and CLI
// ABOUTME: Routes to MCP server or CLI commands based on arguments
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/harperreed/revos/cli"
	"github.com/harperreed/revos/db"
)

const version = "0.1.0"

func main() {
	// Provider client IDs/secrets and the LLM key come from the
	// environment; a local .env is the easiest way to carry them.
	_ = godotenv.Load()

	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/revos/revos.db)")

	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("revos version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	command := args[0]
	commandArgs := args[1:]

	database, err := db.OpenDatabase(getDatabasePath(*dbPath))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	switch command {
	case "mcp":
		if err := cli.MCPCommand(database); err != nil {
			log.Fatalf("MCP server failed: %v", err)
		}

	case "connect":
		if err := cli.ConnectCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "disconnect":
		if err := cli.DisconnectCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "connections":
		if err := cli.ConnectionsCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "sync":
		if err := cli.SyncCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "sync-status":
		if err := cli.SyncStatusCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "list-deals":
		if err := cli.ListDealsCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "analyze":
		if err := cli.AnalyzeCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "dedupe":
		if err := cli.DedupeCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func getDatabasePath(dbPath string) string {
	if dbPath != "" {
		return dbPath
	}
	return db.DefaultPath()
}

func printUsage() {
	fmt.Printf(`revos v%s - Revenue operating system integration core

USAGE:
  revos [global flags] <command> [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --db-path <path>       Database path (default: ~/.local/share/revos/revos.db)

COMMANDS:
  mcp                    Start MCP server (for Claude Desktop integration)

  connect <provider>     Run the OAuth flow for a provider
    --account <id>         Account to attach the connection to

  disconnect <provider>  Delete a stored provider connection
  connections            List stored provider connections

  sync <provider>        Run an incremental sync for one provider
    --all                  Sync every connected provider
    --account <id>         Account to sync

  sync-status            Show watermark and status per provider

  list-deals             List canonical deals
    --provider <name>      Filter by provider
    --limit <n>            Max results (default: 50)

  analyze <deal-id>      Extract pain points / next steps from notes
    --notes <text>         Notes to analyze (required)

  dedupe <items...>      Dedupe a list of strings
    --threshold <t>        Similarity threshold (default: 0.8)

PROVIDERS:
  gmail, hubspot, pipedrive, salesforce, zoho, folk, slack

EXAMPLES:
  # Connect HubSpot (needs HUBSPOT_CLIENT_ID / HUBSPOT_CLIENT_SECRET)
  revos connect hubspot

  # Import deals
  revos sync hubspot

  # Sync everything that's connected
  revos sync --all

  # Inspect deals
  revos list-deals --provider hubspot

`, version)
}
