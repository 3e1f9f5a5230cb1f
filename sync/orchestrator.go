// ABOUTME: Sync orchestrator driving the page loop for one (account, provider) run
// ABOUTME: Holds the watermark lease, persists cursors before processing, records outcomes
package sync

import (
	"context"
	"database/sql"
	"fmt"
	gosync "sync"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/harperreed/revos/db"
	"github.com/harperreed/revos/models"
	"github.com/harperreed/revos/normalize"
	"github.com/harperreed/revos/providers"
)

// maxRecordsPerRun caps a single run so a huge first import cannot hold
// the lease indefinitely. The next run resumes from the stored cursor.
const maxRecordsPerRun = 2000

const fetchAttempts = 3

// maxConcurrentRuns bounds SyncAll fan-out across providers.
const maxConcurrentRuns = 4

// Orchestrator runs provider syncs against the local database. Runs for
// different (account, provider) pairs are independent; the watermark
// lease is the only serialization point.
type Orchestrator struct {
	database  *sql.DB
	registry  *providers.Registry
	refresher *providers.Refresher
}

// NewOrchestrator creates a sync orchestrator.
func NewOrchestrator(database *sql.DB, registry *providers.Registry, refresher *providers.Refresher) *Orchestrator {
	return &Orchestrator{
		database:  database,
		registry:  registry,
		refresher: refresher,
	}
}

// Result summarizes one sync run.
type Result struct {
	RunID    string
	Provider string
	Status   string
	Pages    int
	Imported int
	Updated  int
	Errors   int
}

// Sync runs one full sync for an (account, provider) pair: claim the
// lease, page through the adapter, normalize and persist, release the
// lease with a terminal status. Returns an error alongside a failed
// Result when the run ends in an unrecoverable adapter error.
func (o *Orchestrator) Sync(ctx context.Context, accountID, provider string) (*Result, error) {
	if !models.IsValidProvider(provider) {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	adapter, ok := o.registry.Get(provider)
	if !ok {
		return nil, fmt.Errorf("provider %s has no sync adapter", provider)
	}

	cred, err := db.GetCredential(o.database, accountID, provider)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, fmt.Errorf("no %s credential stored; run connect first", provider)
	}

	claimed, err := db.ClaimSyncLease(o.database, accountID, provider)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("a %s sync is already in progress", provider)
	}

	result := &Result{
		RunID:    ulid.Make().String(),
		Provider: provider,
	}
	fmt.Printf("→ Syncing %s (run %s)...\n", provider, result.RunID)

	// Refresh only while holding the lease: a rotated refresh token is
	// single-use, so two overlapping triggers must never both reach the
	// token endpoint for the same (account, provider).
	cred, err = o.refresher.EnsureFresh(ctx, cred)
	if err != nil {
		refreshErr := fmt.Errorf("failed to refresh %s credential: %w", provider, err)
		result.Status = models.SyncStatusFailed
		msg := refreshErr.Error()
		if err := db.FinishSync(o.database, accountID, provider, models.SyncStatusFailed, &msg); err != nil {
			fmt.Printf("  ✗ failed to record sync failure: %v\n", err)
		}
		return result, refreshErr
	}

	// Resume from the stored cursor. The cursor always points at the
	// next unfetched page, so a crashed run never re-fetches pages it
	// already advanced past.
	cursor := ""
	if state, err := db.GetSyncState(o.database, accountID, provider); err == nil && state != nil {
		cursor = state.Cursor
	}

	// Gmail threads from senders the CRMs already know should attach to
	// the existing relationship, not spawn a duplicate deal shell.
	var matcher *ContactMatcher
	if provider == models.ProviderGmail {
		matcher, err = LoadContactMatcher(o.database, accountID)
		if err != nil {
			fmt.Printf("  ✗ contact matcher unavailable, importing without matching: %v\n", err)
			matcher = nil
		}
	}

	runErr := o.runPages(ctx, adapter, cred, accountID, provider, cursor, matcher, result)
	if runErr != nil {
		result.Status = models.SyncStatusFailed
		msg := runErr.Error()
		if err := db.FinishSync(o.database, accountID, provider, models.SyncStatusFailed, &msg); err != nil {
			fmt.Printf("  ✗ failed to record sync failure: %v\n", err)
		}
		fmt.Printf("✗ %s sync failed: %v\n", provider, runErr)
		return result, runErr
	}

	result.Status = models.SyncStatusCompleted
	if err := db.FinishSync(o.database, accountID, provider, models.SyncStatusCompleted, nil); err != nil {
		return result, err
	}

	fmt.Printf("✓ %s sync complete: %d imported, %d updated across %d pages\n",
		provider, result.Imported, result.Updated, result.Pages)
	return result, nil
}

func (o *Orchestrator) runPages(ctx context.Context, adapter providers.Adapter, cred *models.Credential, accountID, provider, cursor string, matcher *ContactMatcher, result *Result) error {
	processed := 0

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sync canceled: %w", err)
		}

		page, fresh, err := o.fetchPage(ctx, adapter, cred, cursor)
		if err != nil {
			return err
		}
		cred = fresh
		result.Pages++

		// The cursor advances before the page is processed. A crash from
		// here on resumes at the next page; callers of the processed
		// records tolerate at-least-once delivery instead.
		if page.HasMore {
			if err := db.UpdateSyncCursor(o.database, accountID, provider, page.NextCursor); err != nil {
				return err
			}
		}

		imported, updated, errs := o.processPage(accountID, provider, matcher, page.Deals)
		result.Imported += imported
		result.Updated += updated
		result.Errors += errs
		processed += len(page.Deals)
		fmt.Printf("  ✓ page %d: %d records (%d new)\n", result.Pages, len(page.Deals), imported)

		if !page.HasMore {
			// The final page carries the provider's incremental
			// watermark; providers without one leave it empty, and the
			// next run starts a fresh fetch.
			return db.UpdateSyncCursor(o.database, accountID, provider, page.Watermark)
		}
		if processed >= maxRecordsPerRun {
			fmt.Printf("  → record cap reached (%d); next run resumes from stored cursor\n", maxRecordsPerRun)
			return nil
		}
		cursor = page.NextCursor
	}
}

// fetchPage fetches one page with bounded retry. A rejected access token
// triggers exactly one refresh-and-retry; a second 401 surfaces to the
// caller as unrecoverable.
func (o *Orchestrator) fetchPage(ctx context.Context, adapter providers.Adapter, cred *models.Credential, cursor string) (*providers.Page, *models.Credential, error) {
	var page *providers.Page

	err := providers.Retry(ctx, fetchAttempts, func() error {
		var fetchErr error
		page, fetchErr = adapter.FetchPage(ctx, cred, cursor)
		return fetchErr
	})

	if providers.IsAuthExpired(err) {
		refreshed, refreshErr := o.refresher.Refresh(ctx, cred)
		if refreshErr != nil {
			return nil, cred, refreshErr
		}
		cred = refreshed

		err = providers.Retry(ctx, fetchAttempts, func() error {
			var fetchErr error
			page, fetchErr = adapter.FetchPage(ctx, cred, cursor)
			return fetchErr
		})
	}

	if err != nil {
		return nil, cred, err
	}
	return page, cred, nil
}

// SyncAll runs one sync per connected provider. Runs execute
// concurrently; each holds only its own watermark lease, so a failure in
// one never cancels the siblings.
func (o *Orchestrator) SyncAll(ctx context.Context, accountID string) ([]*Result, error) {
	creds, err := db.ListCredentials(o.database, accountID)
	if err != nil {
		return nil, err
	}

	var (
		mu      gosync.Mutex
		results []*Result
		g       errgroup.Group
	)
	g.SetLimit(maxConcurrentRuns)

	for _, cred := range creds {
		provider := cred.Provider
		if _, ok := o.registry.Get(provider); !ok {
			continue
		}

		g.Go(func() error {
			result, err := o.Sync(ctx, accountID, provider)
			if result != nil {
				mu.Lock()
				results = append(results, result)
				mu.Unlock()
			}
			return err
		})
	}

	return results, g.Wait()
}

// processPage normalizes and persists one page of raw records. A single
// bad record is skipped, never the page.
func (o *Orchestrator) processPage(accountID, provider string, matcher *ContactMatcher, raws []providers.RawDeal) (imported, updated, errs int) {
	for _, raw := range raws {
		deal, err := normalize.Normalize(accountID, raw)
		if err != nil {
			fmt.Printf("  ✗ skipping %s record %s: %v\n", provider, raw.RawID(), err)
			errs++
			continue
		}

		seen, err := db.CheckSyncLogExists(o.database, provider, raw.RawID())
		if err != nil {
			fmt.Printf("  ✗ sync log check failed for %s: %v\n", raw.RawID(), err)
			errs++
			continue
		}

		// A sender already known to a CRM deal folds into that deal
		// instead of creating a shell record. A new sender at a known
		// company domain groups under that company's deal the same way.
		if matcher != nil && len(deal.Contacts) > 0 {
			email := deal.Contacts[0].Email
			match, found := matcher.FindMatch(email)
			if !found {
				match, found = matcher.FindByDomain(email)
			}
			if found {
				if !seen {
					if err := db.CreateSyncLog(o.database, ulid.Make().String(), accountID, provider, raw.RawID(), "deal", match.DealID.String(), ""); err == nil {
						updated++
					}
				}
				continue
			}
		}

		if err := db.UpsertDeal(o.database, deal); err != nil {
			fmt.Printf("  ✗ failed to persist %s record %s: %v\n", provider, raw.RawID(), err)
			errs++
			continue
		}
		if err := db.ReplaceDealContacts(o.database, deal.ID, deal.Contacts); err != nil {
			fmt.Printf("  ✗ failed to persist contacts for %s: %v\n", raw.RawID(), err)
			errs++
		}
		if matcher != nil {
			for i := range deal.Contacts {
				matcher.AddContact(&deal.Contacts[i])
			}
		}

		if seen {
			updated++
			continue
		}

		if err := db.CreateSyncLog(o.database, ulid.Make().String(), accountID, provider, raw.RawID(), "deal", deal.ID.String(), ""); err != nil {
			fmt.Printf("  ✗ failed to record import of %s: %v\n", raw.RawID(), err)
			errs++
			continue
		}
		imported++
	}
	return imported, updated, errs
}
