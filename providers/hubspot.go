// ABOUTME: HubSpot provider adapter
// ABOUTME: Fetches deals with after-cursor paging and batch-reads associated contacts
package providers

import (
	"context"
	"fmt"
	"net/url"

	"github.com/harperreed/revos/models"
)

const (
	hubspotDefaultBase = "https://api.hubapi.com"
	hubspotPageLimit   = 100
)

// HubSpotDeal is the raw HubSpot deal shape, one variant of RawDeal.
type HubSpotDeal struct {
	ID         string `json:"id"`
	Properties struct {
		DealName     string `json:"dealname"`
		Amount       string `json:"amount"`
		DealStage    string `json:"dealstage"`
		CloseDate    string `json:"closedate"`
		CurrencyCode string `json:"deal_currency_code"`
	} `json:"properties"`
	Associations struct {
		Contacts struct {
			Results []struct {
				ID string `json:"id"`
			} `json:"results"`
		} `json:"contacts"`
	} `json:"associations"`

	// Contacts is filled by the secondary batch read; nil when the
	// enrichment call failed (partial-result policy).
	Contacts []HubSpotContact `json:"-"`
}

// HubSpotContact is the raw contact shape from the batch-read endpoint.
type HubSpotContact struct {
	ID         string `json:"id"`
	Properties struct {
		FirstName string `json:"firstname"`
		LastName  string `json:"lastname"`
		Email     string `json:"email"`
		JobTitle  string `json:"jobtitle"`
	} `json:"properties"`
}

func (d *HubSpotDeal) RawProvider() string { return models.ProviderHubSpot }
func (d *HubSpotDeal) RawID() string       { return d.ID }

type hubspotAdapter struct {
	api *apiClient
}

// NewHubSpotAdapter creates the HubSpot deal adapter.
func NewHubSpotAdapter() Adapter {
	return &hubspotAdapter{api: newAPIClient(models.ProviderHubSpot)}
}

func (a *hubspotAdapter) Name() string { return models.ProviderHubSpot }

func (a *hubspotAdapter) base() string {
	if a.api.baseURL != "" {
		return a.api.baseURL
	}
	return hubspotDefaultBase
}

type hubspotDealsPage struct {
	Results []HubSpotDeal `json:"results"`
	Paging  struct {
		Next struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

func (a *hubspotAdapter) FetchPage(ctx context.Context, cred *models.Credential, cursor string) (*Page, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", hubspotPageLimit))
	q.Set("associations", "contacts")
	q.Set("properties", "dealname,amount,dealstage,closedate,deal_currency_code")
	if cursor != "" {
		q.Set("after", cursor)
	}

	var page hubspotDealsPage
	if err := a.api.getJSON(ctx, cred, a.base()+"/crm/v3/objects/deals?"+q.Encode(), &page); err != nil {
		return nil, err
	}

	// Batch-resolve the associated contacts for the whole page. A failure
	// here degrades to deals without contact data, never a failed page.
	contactIDs := map[string]struct{}{}
	for i := range page.Results {
		for _, assoc := range page.Results[i].Associations.Contacts.Results {
			contactIDs[assoc.ID] = struct{}{}
		}
	}

	contacts, err := a.batchReadContacts(ctx, cred, contactIDs)
	if err != nil {
		fmt.Printf("  ✗ hubspot: contact batch read failed, continuing without contacts: %v\n", err)
		contacts = nil
	}

	deals := make([]RawDeal, 0, len(page.Results))
	for i := range page.Results {
		deal := page.Results[i]
		for _, assoc := range deal.Associations.Contacts.Results {
			if c, ok := contacts[assoc.ID]; ok {
				deal.Contacts = append(deal.Contacts, c)
			}
		}
		deals = append(deals, &deal)
	}

	return &Page{
		Deals:      deals,
		NextCursor: page.Paging.Next.After,
		HasMore:    page.Paging.Next.After != "",
	}, nil
}

type hubspotBatchReadRequest struct {
	Inputs     []map[string]string `json:"inputs"`
	Properties []string            `json:"properties"`
}

type hubspotBatchReadResponse struct {
	Results []HubSpotContact `json:"results"`
}

func (a *hubspotAdapter) batchReadContacts(ctx context.Context, cred *models.Credential, ids map[string]struct{}) (map[string]HubSpotContact, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	req := hubspotBatchReadRequest{
		Properties: []string{"firstname", "lastname", "email", "jobtitle"},
	}
	for id := range ids {
		req.Inputs = append(req.Inputs, map[string]string{"id": id})
	}

	var resp hubspotBatchReadResponse
	if err := a.api.postJSON(ctx, cred, a.base()+"/crm/v3/objects/contacts/batch/read", req, &resp); err != nil {
		return nil, NewError(KindPartialFailure, models.ProviderHubSpot, "contact batch read failed", err)
	}

	byID := make(map[string]HubSpotContact, len(resp.Results))
	for _, c := range resp.Results {
		byID[c.ID] = c
	}
	return byID, nil
}
