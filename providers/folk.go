// ABOUTME: Folk provider adapter
// ABOUTME: Fetches people directly; Folk has no separate deal concept
package providers

import (
	"context"
	"net/url"
	"strconv"

	"github.com/harperreed/revos/models"
)

const (
	folkDefaultBase = "https://api.folk.app"
	folkPageLimit   = 100
)

// FolkPerson is the raw Folk person shape, one variant of RawDeal. Folk
// is a people-first CRM: each person normalizes into a contact-only deal
// shell grouped by their company.
type FolkPerson struct {
	ID        string `json:"id"`
	FullName  string `json:"fullName"`
	JobTitle  string `json:"jobTitle"`
	Emails    []string `json:"emails"`
	Companies []struct {
		Name string `json:"name"`
	} `json:"companies"`
}

func (p *FolkPerson) RawProvider() string { return models.ProviderFolk }
func (p *FolkPerson) RawID() string       { return p.ID }

type folkAdapter struct {
	api *apiClient
}

// NewFolkAdapter creates the Folk people adapter.
func NewFolkAdapter() Adapter {
	return &folkAdapter{api: newAPIClient(models.ProviderFolk)}
}

func (a *folkAdapter) Name() string { return models.ProviderFolk }

func (a *folkAdapter) base() string {
	if a.api.baseURL != "" {
		return a.api.baseURL
	}
	return folkDefaultBase
}

type folkPeoplePage struct {
	Data       []FolkPerson `json:"data"`
	Pagination struct {
		NextCursor string `json:"nextCursor"`
	} `json:"pagination"`
}

func (a *folkAdapter) FetchPage(ctx context.Context, cred *models.Credential, cursor string) (*Page, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(folkPageLimit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var page folkPeoplePage
	if err := a.api.getJSON(ctx, cred, a.base()+"/v1/people?"+q.Encode(), &page); err != nil {
		return nil, err
	}

	deals := make([]RawDeal, 0, len(page.Data))
	for i := range page.Data {
		deals = append(deals, &page.Data[i])
	}

	return &Page{
		Deals:      deals,
		NextCursor: page.Pagination.NextCursor,
		HasMore:    page.Pagination.NextCursor != "",
	}, nil
}
