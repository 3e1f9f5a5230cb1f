// ABOUTME: Zoho CRM provider adapter
// ABOUTME: Fetches deals and contacts as independent bulk collections with page paging
package providers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/harperreed/revos/models"
)

const (
	zohoDefaultBase = "https://www.zohoapis.com"
	zohoPageLimit   = 200

	// zohoMaxContactPages bounds the contacts download per run.
	zohoMaxContactPages = 25
)

// ZohoDeal is the raw Zoho deal shape, one variant of RawDeal. Zoho
// returns deals and contacts as two unassociated top-level collections;
// the only link is the Contact_Name lookup on the deal.
type ZohoDeal struct {
	ID          string  `json:"id"`
	DealName    string  `json:"Deal_Name"`
	Amount      float64 `json:"Amount"`
	Currency    string  `json:"Currency"`
	Stage       string  `json:"Stage"`
	ClosingDate string  `json:"Closing_Date"`
	AccountName struct {
		Name string `json:"name"`
	} `json:"Account_Name"`
	ContactName struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"Contact_Name"`

	// Contact is resolved from the independent contacts collection; nil
	// when the contacts fetch failed or the lookup had no match.
	Contact *ZohoContact `json:"-"`
}

// ZohoContact is the raw contact shape from the Contacts module.
type ZohoContact struct {
	ID       string `json:"id"`
	FullName string `json:"Full_Name"`
	Email    string `json:"Email"`
	Title    string `json:"Title"`
}

func (d *ZohoDeal) RawProvider() string { return models.ProviderZoho }
func (d *ZohoDeal) RawID() string       { return d.ID }

type zohoAdapter struct {
	api *apiClient

	// contacts caches the downloaded Contacts collection for the
	// duration of a run; a fresh run (empty cursor) invalidates it.
	mu       sync.Mutex
	contacts map[string]ZohoContact
}

// NewZohoAdapter creates the Zoho CRM deal adapter.
func NewZohoAdapter() Adapter {
	return &zohoAdapter{api: newAPIClient(models.ProviderZoho)}
}

func (a *zohoAdapter) Name() string { return models.ProviderZoho }

// base returns the per-tenant API domain Zoho handed back during the
// token exchange; multi-region tenants do not share a host.
func (a *zohoAdapter) base(cred *models.Credential) string {
	if a.api.baseURL != "" {
		return a.api.baseURL
	}
	if cred.APIDomain != "" {
		return cred.APIDomain
	}
	return zohoDefaultBase
}

type zohoListResponse[T any] struct {
	Data []T `json:"data"`
	Info struct {
		Page        int  `json:"page"`
		MoreRecords bool `json:"more_records"`
	} `json:"info"`
}

func (a *zohoAdapter) FetchPage(ctx context.Context, cred *models.Credential, cursor string) (*Page, error) {
	pageNum := 1
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, NewError(KindFatal, models.ProviderZoho, "invalid cursor: "+cursor, err)
		}
		pageNum = parsed
	} else {
		a.mu.Lock()
		a.contacts = nil
		a.mu.Unlock()
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(pageNum))
	q.Set("per_page", strconv.Itoa(zohoPageLimit))
	q.Set("fields", "Deal_Name,Amount,Currency,Stage,Closing_Date,Account_Name,Contact_Name")

	var dealsResp zohoListResponse[ZohoDeal]
	if err := a.api.getJSON(ctx, cred, a.base(cred)+"/crm/v2/Deals?"+q.Encode(), &dealsResp); err != nil {
		return nil, err
	}

	// Contacts are an independent collection; resolve the Contact_Name
	// lookups against it. Failure degrades to name-only contacts.
	contacts, err := a.contactIndex(ctx, cred)
	if err != nil {
		fmt.Printf("  ✗ zoho: contacts fetch failed, continuing with lookup names only: %v\n", err)
		contacts = nil
	}

	deals := make([]RawDeal, 0, len(dealsResp.Data))
	for i := range dealsResp.Data {
		deal := &dealsResp.Data[i]
		if deal.ContactName.ID != "" {
			if c, ok := contacts[deal.ContactName.ID]; ok {
				deal.Contact = &c
			}
		}
		deals = append(deals, deal)
	}

	result := &Page{Deals: deals}
	if dealsResp.Info.MoreRecords {
		result.HasMore = true
		result.NextCursor = strconv.Itoa(pageNum + 1)
	}

	return result, nil
}

// contactIndex downloads the full Contacts collection, following
// more_records across pages, and reuses the result for every deals page
// of the run.
func (a *zohoAdapter) contactIndex(ctx context.Context, cred *models.Credential) (map[string]ZohoContact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.contacts != nil {
		return a.contacts, nil
	}

	byID := make(map[string]ZohoContact)
	for page := 1; page <= zohoMaxContactPages; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(zohoPageLimit))
		q.Set("fields", "Full_Name,Email,Title")

		var resp zohoListResponse[ZohoContact]
		if err := a.api.getJSON(ctx, cred, a.base(cred)+"/crm/v2/Contacts?"+q.Encode(), &resp); err != nil {
			return nil, NewError(KindPartialFailure, models.ProviderZoho, "contacts fetch failed", err)
		}
		for _, c := range resp.Data {
			byID[c.ID] = c
		}
		if !resp.Info.MoreRecords {
			break
		}
	}

	a.contacts = byID
	return byID, nil
}
