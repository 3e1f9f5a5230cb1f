// ABOUTME: Salesforce provider adapter
// ABOUTME: Fetches opportunities via SOQL with nextRecordsUrl paging and role-table contact joins
package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/harperreed/revos/models"
)

const salesforceAPIVersion = "v59.0"

// SalesforceOpportunity is the raw opportunity shape, one variant of
// RawDeal.
type SalesforceOpportunity struct {
	ID        string  `json:"Id"`
	Name      string  `json:"Name"`
	Amount    float64 `json:"Amount"`
	StageName string  `json:"StageName"`
	CloseDate string  `json:"CloseDate"`
	Account   struct {
		Name string `json:"Name"`
	} `json:"Account"`

	// Roles is filled by the junction-object query; nil when the
	// enrichment query failed (partial-result policy).
	Roles []SalesforceContactRole `json:"-"`
}

// SalesforceContactRole is one row of the Opportunity-Contact junction
// table, joining an opportunity to a contact with a role.
type SalesforceContactRole struct {
	OpportunityID string `json:"OpportunityId"`
	ContactID     string `json:"ContactId"`
	Role          string `json:"Role"`
	IsPrimary     bool   `json:"IsPrimary"`
	Contact       struct {
		Name  string `json:"Name"`
		Email string `json:"Email"`
	} `json:"Contact"`
}

func (o *SalesforceOpportunity) RawProvider() string { return models.ProviderSalesforce }
func (o *SalesforceOpportunity) RawID() string       { return o.ID }

type salesforceAdapter struct {
	api *apiClient
}

// NewSalesforceAdapter creates the Salesforce opportunity adapter.
func NewSalesforceAdapter() Adapter {
	return &salesforceAdapter{api: newAPIClient(models.ProviderSalesforce)}
}

func (a *salesforceAdapter) Name() string { return models.ProviderSalesforce }

// base returns the tenant instance URL. Salesforce has no global data
// host; a credential without instance_url cannot be used.
func (a *salesforceAdapter) base(cred *models.Credential) (string, error) {
	if a.api.baseURL != "" {
		return a.api.baseURL, nil
	}
	if cred.APIDomain == "" {
		return "", NewError(KindNeedsReconnect, models.ProviderSalesforce, "credential missing instance_url; reconnect required", nil)
	}
	return strings.TrimSuffix(cred.APIDomain, "/"), nil
}

type salesforceQueryResponse[T any] struct {
	TotalSize      int    `json:"totalSize"`
	Done           bool   `json:"done"`
	NextRecordsURL string `json:"nextRecordsUrl"`
	Records        []T    `json:"records"`
}

func (a *salesforceAdapter) FetchPage(ctx context.Context, cred *models.Credential, cursor string) (*Page, error) {
	base, err := a.base(cred)
	if err != nil {
		return nil, err
	}

	// The first page is a fresh SOQL query; subsequent pages follow the
	// opaque nextRecordsUrl Salesforce returned.
	endpoint := base + cursor
	if cursor == "" {
		soql := "SELECT Id, Name, Amount, StageName, CloseDate, Account.Name FROM Opportunity ORDER BY LastModifiedDate"
		endpoint = fmt.Sprintf("%s/services/data/%s/query?q=%s", base, salesforceAPIVersion, url.QueryEscape(soql))
	}

	var page salesforceQueryResponse[SalesforceOpportunity]
	if err := a.api.getJSON(ctx, cred, endpoint, &page); err != nil {
		return nil, err
	}

	a.resolveContactRoles(ctx, cred, base, page.Records)

	deals := make([]RawDeal, 0, len(page.Records))
	for i := range page.Records {
		deals = append(deals, &page.Records[i])
	}

	return &Page{
		Deals:      deals,
		NextCursor: page.NextRecordsURL,
		HasMore:    !page.Done && page.NextRecordsURL != "",
	}, nil
}

// resolveContactRoles queries the OpportunityContactRole junction table
// for every opportunity on the page in one SOQL call. A failure degrades
// to opportunities without contact data.
func (a *salesforceAdapter) resolveContactRoles(ctx context.Context, cred *models.Credential, base string, opps []SalesforceOpportunity) {
	if len(opps) == 0 {
		return
	}

	ids := make([]string, 0, len(opps))
	for _, o := range opps {
		ids = append(ids, "'"+o.ID+"'")
	}

	soql := fmt.Sprintf(
		"SELECT OpportunityId, ContactId, Role, IsPrimary, Contact.Name, Contact.Email FROM OpportunityContactRole WHERE OpportunityId IN (%s)",
		strings.Join(ids, ","))
	endpoint := fmt.Sprintf("%s/services/data/%s/query?q=%s", base, salesforceAPIVersion, url.QueryEscape(soql))

	var resp salesforceQueryResponse[SalesforceContactRole]
	if err := a.api.getJSON(ctx, cred, endpoint, &resp); err != nil {
		fmt.Printf("  ✗ salesforce: contact role query failed, continuing without contacts: %v\n", err)
		return
	}

	byOpp := make(map[string][]SalesforceContactRole)
	for _, role := range resp.Records {
		byOpp[role.OpportunityID] = append(byOpp[role.OpportunityID], role)
	}

	for i := range opps {
		opps[i].Roles = byOpp[opps[i].ID]
	}
}
