// ABOUTME: Provider connection CLI commands
// ABOUTME: Runs the browser OAuth flow and manages stored credentials
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/oauth2"

	"github.com/harperreed/revos/db"
	"github.com/harperreed/revos/models"
	"github.com/harperreed/revos/providers"
)

const defaultAccountID = "default"

const oauthFlowTimeout = 5 * time.Minute

// ConnectCommand runs the OAuth authorization flow for a provider and
// stores the exchanged credential.
func ConnectCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	account := fs.String("account", defaultAccountID, "Account to attach the connection to")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: connect [--account <id>] <provider>")
	}
	provider := fs.Arg(0)
	if !models.IsValidProvider(provider) {
		return fmt.Errorf("unknown provider %q (supported: %v)", provider, models.Providers)
	}

	config, err := providers.OAuthConfig(provider)
	if err != nil {
		return fmt.Errorf("failed to load OAuth config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), oauthFlowTimeout)
	defer cancel()

	codeChan := make(chan string)
	errChan := make(chan error)

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code received")
			return
		}
		_, _ = fmt.Fprintf(w, "Authorization successful! You can close this window.")
		codeChan <- code
	})

	server := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	defer func() { _ = server.Shutdown(context.Background()) }()

	authURL := config.AuthCodeURL("state", oauth2.AccessTypeOffline)

	fmt.Printf("Opening browser for %s OAuth...\n", provider)
	fmt.Printf("\nIf the browser doesn't open, visit this URL:\n%s\n\n", authURL)
	_ = openBrowser(authURL)

	select {
	case code := <-codeChan:
		cred, err := providers.Exchange(ctx, *account, provider, code)
		if err != nil {
			return fmt.Errorf("OAuth exchange failed: %w", err)
		}
		if err := db.UpsertCredential(database, cred); err != nil {
			return fmt.Errorf("failed to store credential: %w", err)
		}

		fmt.Printf("\n✓ Connected %s\n", provider)
		if cred.ExpiresAt != nil {
			fmt.Printf("✓ Access token valid until %s\n", cred.ExpiresAt.Format(time.RFC3339))
		}
		if providers.Refreshable(provider) && cred.RefreshToken == "" {
			fmt.Println("! No refresh token returned; you may need to reconnect when the token expires")
		}
		fmt.Printf("\nReady to sync! Run 'revos sync %s' to import deals.\n", provider)
		return nil

	case err := <-errChan:
		return fmt.Errorf("OAuth flow failed: %w", err)

	case <-ctx.Done():
		return fmt.Errorf("OAuth flow timed out after %s", oauthFlowTimeout)
	}
}

// DisconnectCommand deletes a stored provider credential.
func DisconnectCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("disconnect", flag.ExitOnError)
	account := fs.String("account", defaultAccountID, "Account the connection belongs to")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: disconnect [--account <id>] <provider>")
	}
	provider := fs.Arg(0)

	cred, err := db.GetCredential(database, *account, provider)
	if err != nil {
		return err
	}
	if cred == nil {
		return fmt.Errorf("%s is not connected", provider)
	}

	if err := db.DeleteCredential(database, *account, provider); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	fmt.Printf("✓ Disconnected %s\n", provider)
	return nil
}

// ConnectionsCommand lists the stored provider connections.
func ConnectionsCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("connections", flag.ExitOnError)
	account := fs.String("account", defaultAccountID, "Account to list connections for")
	_ = fs.Parse(args)

	creds, err := db.ListCredentials(database, *account)
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		fmt.Println("No providers connected. Run 'revos connect <provider>' to get started.")
		return nil
	}

	fmt.Printf("Connected providers (%d):\n", len(creds))
	for _, cred := range creds {
		status := "active"
		if cred.Expired(0) {
			if providers.Refreshable(cred.Provider) {
				status = "expired (will refresh on next sync)"
			} else {
				status = "expired (reconnect required)"
			}
		}
		fmt.Printf("  - %-12s %s\n", cred.Provider, status)
	}
	return nil
}

// openBrowser opens a URL in the default browser.
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
	case "windows":
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler"}
	default:
		cmd = "xdg-open"
	}

	args = append(args, url)
	return exec.Command(cmd, args...).Start()
}
