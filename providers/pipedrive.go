// ABOUTME: Pipedrive provider adapter
// ABOUTME: Fetches deals with start/limit offset paging and per-person contact lookups
package providers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/harperreed/revos/models"
)

const (
	pipedriveDefaultBase = "https://api.pipedrive.com"
	pipedrivePageLimit   = 100

	// Pipedrive has no batch person endpoint, so persons are fetched
	// one-by-one; cap the fan-out per page.
	pipedrivePersonConcurrency = 5
)

// PipedriveDeal is the raw Pipedrive deal shape, one variant of RawDeal.
type PipedriveDeal struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Value    int64  `json:"value"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	StageID  int64  `json:"stage_id"`
	OrgName  string `json:"org_name"`
	PersonID struct {
		Value int64 `json:"value"`
	} `json:"person_id"`
	ExpectedCloseDate string `json:"expected_close_date"`

	// Person is filled by the secondary lookup; nil when the person
	// could not be resolved (partial-result policy).
	Person *PipedrivePerson `json:"-"`
}

// PipedrivePerson is the raw person shape from /persons/{id}.
type PipedrivePerson struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email []struct {
		Value   string `json:"value"`
		Primary bool   `json:"primary"`
	} `json:"email"`
	JobTitle string `json:"job_title"`
}

func (d *PipedriveDeal) RawProvider() string { return models.ProviderPipedrive }
func (d *PipedriveDeal) RawID() string       { return strconv.FormatInt(d.ID, 10) }

type pipedriveAdapter struct {
	api *apiClient
}

// NewPipedriveAdapter creates the Pipedrive deal adapter.
func NewPipedriveAdapter() Adapter {
	return &pipedriveAdapter{api: newAPIClient(models.ProviderPipedrive)}
}

func (a *pipedriveAdapter) Name() string { return models.ProviderPipedrive }

func (a *pipedriveAdapter) base(cred *models.Credential) string {
	if a.api.baseURL != "" {
		return a.api.baseURL
	}
	if cred.APIDomain != "" {
		return cred.APIDomain
	}
	return pipedriveDefaultBase
}

type pipedriveDealsPage struct {
	Success        bool            `json:"success"`
	Data           []PipedriveDeal `json:"data"`
	AdditionalData struct {
		Pagination struct {
			Start                 int64 `json:"start"`
			Limit                 int64 `json:"limit"`
			MoreItemsInCollection bool  `json:"more_items_in_collection"`
			NextStart             int64 `json:"next_start"`
		} `json:"pagination"`
	} `json:"additional_data"`
}

func (a *pipedriveAdapter) FetchPage(ctx context.Context, cred *models.Credential, cursor string) (*Page, error) {
	start := int64(0)
	if cursor != "" {
		parsed, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, NewError(KindFatal, models.ProviderPipedrive, "invalid cursor: "+cursor, err)
		}
		start = parsed
	}

	q := url.Values{}
	q.Set("start", strconv.FormatInt(start, 10))
	q.Set("limit", strconv.Itoa(pipedrivePageLimit))

	var page pipedriveDealsPage
	if err := a.api.getJSON(ctx, cred, a.base(cred)+"/api/v1/deals?"+q.Encode(), &page); err != nil {
		return nil, err
	}
	if !page.Success {
		return nil, NewError(KindSchemaMismatch, models.ProviderPipedrive, "deals response reported success=false", nil)
	}

	a.resolvePersons(ctx, cred, page.Data)

	deals := make([]RawDeal, 0, len(page.Data))
	for i := range page.Data {
		deals = append(deals, &page.Data[i])
	}

	result := &Page{Deals: deals}
	if page.AdditionalData.Pagination.MoreItemsInCollection {
		result.HasMore = true
		result.NextCursor = strconv.FormatInt(page.AdditionalData.Pagination.NextStart, 10)
	}

	return result, nil
}

// resolvePersons fetches each deal's person concurrently. Any individual
// failure is logged and skipped; the deal keeps a nil Person and the
// sibling fetches proceed.
func (a *pipedriveAdapter) resolvePersons(ctx context.Context, cred *models.Credential, deals []PipedriveDeal) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pipedrivePersonConcurrency)

	for i := range deals {
		deal := &deals[i]
		if deal.PersonID.Value == 0 {
			continue
		}

		g.Go(func() error {
			person, err := a.fetchPerson(gctx, cred, deal.PersonID.Value)
			if err != nil {
				fmt.Printf("  ✗ pipedrive: person %d fetch failed, skipping: %v\n", deal.PersonID.Value, err)
				return nil
			}
			deal.Person = person
			return nil
		})
	}

	_ = g.Wait()
}

type pipedrivePersonResponse struct {
	Success bool             `json:"success"`
	Data    *PipedrivePerson `json:"data"`
}

func (a *pipedriveAdapter) fetchPerson(ctx context.Context, cred *models.Credential, id int64) (*PipedrivePerson, error) {
	var resp pipedrivePersonResponse
	url := fmt.Sprintf("%s/api/v1/persons/%d", a.base(cred), id)
	if err := a.api.getJSON(ctx, cred, url, &resp); err != nil {
		return nil, NewError(KindPartialFailure, models.ProviderPipedrive, "person fetch failed", err)
	}
	if !resp.Success || resp.Data == nil {
		return nil, NewError(KindPartialFailure, models.ProviderPipedrive, "person not found", nil)
	}
	return resp.Data, nil
}
