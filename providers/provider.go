// ABOUTME: Provider adapter contract, raw deal sum type, and registry
// ABOUTME: Defines the paged fetch interface every provider implements
package providers

import (
	"context"
	"sync"

	"github.com/harperreed/revos/models"
)

// RawDeal is the sum type of provider-specific deal shapes. Exactly one
// variant exists per provider (GmailThread, HubSpotDeal, PipedriveDeal,
// SalesforceOpportunity, ZohoDeal, FolkPerson); raw untyped maps never
// cross the adapter boundary.
type RawDeal interface {
	// RawProvider names the provider that produced this record.
	RawProvider() string
	// RawID is the provider-side identifier of the record.
	RawID() string
}

// Page is one page of raw deals plus the cursor for the next page.
type Page struct {
	Deals      []RawDeal
	NextCursor string
	HasMore    bool

	// Watermark, set on the final page by providers that support
	// incremental fetching, is stored as the cursor for the next run.
	// Left empty, the next run starts a fresh fetch.
	Watermark string
}

// Adapter fetches raw entities from one provider. FetchPage with an
// empty cursor starts a fresh page-1 fetch; re-invoking is never a
// resume of a previous iteration. A 401 surfaces as KindAuthExpired; a
// failed secondary contact-enrichment call degrades to partial contact
// data instead of failing the page.
type Adapter interface {
	Name() string
	FetchPage(ctx context.Context, cred *models.Credential, cursor string) (*Page, error)
}

// Registry holds the configured adapters, keyed by provider name.
// Thread-safe for concurrent sync runs.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its Name. Re-registering replaces.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get retrieves an adapter by provider name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names lists registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// DefaultRegistry builds a registry with every data-fetching provider.
// Slack carries only a credential lifecycle, so it has no adapter.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewHubSpotAdapter())
	r.Register(NewPipedriveAdapter())
	r.Register(NewSalesforceAdapter())
	r.Register(NewZohoAdapter())
	r.Register(NewFolkAdapter())
	r.Register(NewGmailAdapter())
	return r
}
