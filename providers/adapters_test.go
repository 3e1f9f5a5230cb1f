// ABOUTME: Tests for the provider adapters against local HTTP servers
// ABOUTME: Covers pagination styles, auth headers, and contact-enrichment degradation
package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/revos/models"
)

func testCredential(provider string) *models.Credential {
	return &models.Credential{
		AccountID:   "acct-test",
		Provider:    provider,
		AccessToken: "test-token",
	}
}

func TestHubSpotFetchPageWithContacts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/crm/v3/objects/deals":
			assert.Equal(t, "42", r.URL.Query().Get("after"))
			_, _ = w.Write([]byte(`{
				"results": [{
					"id": "d1",
					"properties": {"dealname": "Acme expansion", "amount": "1000", "dealstage": "qualifiedtobuy"},
					"associations": {"contacts": {"results": [{"id": "c1"}]}}
				}],
				"paging": {"next": {"after": "43"}}
			}`))
		case "/crm/v3/objects/contacts/batch/read":
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			_, _ = w.Write([]byte(`{
				"results": [{"id": "c1", "properties": {"firstname": "Dana", "lastname": "Reyes", "email": "dana@acme.com"}}]
			}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	adapter := NewHubSpotAdapter().(*hubspotAdapter)
	adapter.api.baseURL = server.URL

	page, err := adapter.FetchPage(context.Background(), testCredential(models.ProviderHubSpot), "42")
	require.NoError(t, err)

	require.Len(t, page.Deals, 1)
	deal := page.Deals[0].(*HubSpotDeal)
	assert.Equal(t, "d1", deal.RawID())
	require.Len(t, deal.Contacts, 1)
	assert.Equal(t, "dana@acme.com", deal.Contacts[0].Properties.Email)
	assert.Equal(t, "43", page.NextCursor)
	assert.True(t, page.HasMore)
}

func TestHubSpotContactBatchFailureDegrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/crm/v3/objects/deals" {
			_, _ = w.Write([]byte(`{
				"results": [{
					"id": "d1",
					"properties": {"dealname": "Acme"},
					"associations": {"contacts": {"results": [{"id": "c1"}]}}
				}]
			}`))
			return
		}
		// The batch read blows up; the page must still succeed.
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := NewHubSpotAdapter().(*hubspotAdapter)
	adapter.api.baseURL = server.URL

	page, err := adapter.FetchPage(context.Background(), testCredential(models.ProviderHubSpot), "")
	require.NoError(t, err, "contact enrichment failure never fails the page")
	require.Len(t, page.Deals, 1)
	assert.Empty(t, page.Deals[0].(*HubSpotDeal).Contacts)
	assert.False(t, page.HasMore)
}

func TestPipedriveMissingPersonSkipsOnlyThatDeal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/deals":
			assert.Equal(t, "0", r.URL.Query().Get("start"))
			_, _ = w.Write([]byte(`{
				"success": true,
				"data": [
					{"id": 1, "title": "Deal A", "person_id": {"value": 404}},
					{"id": 2, "title": "Deal B", "person_id": {"value": 7}}
				],
				"additional_data": {"pagination": {"more_items_in_collection": true, "next_start": 100}}
			}`))
		case "/api/v1/persons/404":
			http.NotFound(w, r)
		case "/api/v1/persons/7":
			_, _ = w.Write([]byte(`{"success": true, "data": {"id": 7, "name": "Sam Okafor"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	adapter := NewPipedriveAdapter().(*pipedriveAdapter)
	adapter.api.baseURL = server.URL

	page, err := adapter.FetchPage(context.Background(), testCredential(models.ProviderPipedrive), "")
	require.NoError(t, err, "one unresolvable person never fails the page")

	require.Len(t, page.Deals, 2)
	assert.Nil(t, page.Deals[0].(*PipedriveDeal).Person, "the 404 deal keeps nil contact data")
	require.NotNil(t, page.Deals[1].(*PipedriveDeal).Person, "sibling fetches still resolve")
	assert.Equal(t, "Sam Okafor", page.Deals[1].(*PipedriveDeal).Person.Name)
	assert.Equal(t, "100", page.NextCursor)
}

func TestSalesforceRequiresInstanceURL(t *testing.T) {
	adapter := NewSalesforceAdapter().(*salesforceAdapter)

	_, err := adapter.FetchPage(context.Background(), testCredential(models.ProviderSalesforce), "")
	require.Error(t, err)
	assert.Equal(t, KindNeedsReconnect, KindOf(err))
}

func TestSalesforceFollowsNextRecordsURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/services/data/v59.0/query":
			// Junction-object role query issued while resolving contacts.
			_, _ = w.Write([]byte(`{"totalSize": 0, "done": true, "records": []}`))
		case r.URL.Path == "/services/data/v59.0/query/01g-next":
			_, _ = w.Write([]byte(`{
				"totalSize": 1, "done": true,
				"records": [{"Id": "006A", "Name": "Renewal", "StageName": "Closed Won", "Account": {"Name": "Initech"}}]
			}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	adapter := NewSalesforceAdapter().(*salesforceAdapter)
	adapter.api.baseURL = server.URL

	page, err := adapter.FetchPage(context.Background(), testCredential(models.ProviderSalesforce), "/services/data/v59.0/query/01g-next")
	require.NoError(t, err)
	require.Len(t, page.Deals, 1)
	assert.Equal(t, "006A", page.Deals[0].RawID())
	assert.False(t, page.HasMore)
}

func TestZohoAuthHeaderAndPaging(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Zoho-oauthtoken test-token", r.Header.Get("Authorization"),
			"Zoho uses its own auth scheme, not Bearer")

		switch r.URL.Path {
		case "/crm/v2/Deals":
			assert.Equal(t, "3", r.URL.Query().Get("page"))
			_, _ = w.Write([]byte(`{
				"data": [{"id": "z1", "Deal_Name": "Pilot", "Contact_Name": {"id": "zc1", "name": "Ada Velez"}}],
				"info": {"page": 3, "more_records": true}
			}`))
		case "/crm/v2/Contacts":
			_, _ = w.Write([]byte(`{
				"data": [{"id": "zc1", "Full_Name": "Ada Velez", "Email": "ada@umbrella.com"}],
				"info": {"page": 1, "more_records": false}
			}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	adapter := NewZohoAdapter().(*zohoAdapter)
	adapter.api.baseURL = server.URL

	page, err := adapter.FetchPage(context.Background(), testCredential(models.ProviderZoho), "3")
	require.NoError(t, err)

	require.Len(t, page.Deals, 1)
	deal := page.Deals[0].(*ZohoDeal)
	require.NotNil(t, deal.Contact, "the lookup resolves against the contacts collection")
	assert.Equal(t, "ada@umbrella.com", deal.Contact.Email)
	assert.Equal(t, "4", page.NextCursor, "Zoho cursors are page numbers")
	assert.True(t, page.HasMore)
}

func TestZohoContactsFailureDegradesToLookupNames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/crm/v2/Deals" {
			_, _ = w.Write([]byte(`{
				"data": [{"id": "z1", "Deal_Name": "Pilot", "Contact_Name": {"id": "zc1", "name": "Ada Velez"}}],
				"info": {"more_records": false}
			}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := NewZohoAdapter().(*zohoAdapter)
	adapter.api.baseURL = server.URL

	page, err := adapter.FetchPage(context.Background(), testCredential(models.ProviderZoho), "")
	require.NoError(t, err)
	require.Len(t, page.Deals, 1)
	assert.Nil(t, page.Deals[0].(*ZohoDeal).Contact)
	assert.Equal(t, "Ada Velez", page.Deals[0].(*ZohoDeal).ContactName.Name)
}

func TestZohoContactsPaginatedAndCachedPerRun(t *testing.T) {
	contactCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/crm/v2/Deals":
			more := "true"
			if r.URL.Query().Get("page") == "2" {
				more = "false"
			}
			_, _ = w.Write([]byte(`{
				"data": [{"id": "z` + r.URL.Query().Get("page") + `", "Deal_Name": "Pilot", "Contact_Name": {"id": "zc2", "name": "Ada Velez"}}],
				"info": {"more_records": ` + more + `}
			}`))
		case "/crm/v2/Contacts":
			contactCalls++
			if r.URL.Query().Get("page") == "1" {
				_, _ = w.Write([]byte(`{
					"data": [{"id": "zc1", "Full_Name": "Sam Okafor", "Email": "sam@globex.com"}],
					"info": {"page": 1, "more_records": true}
				}`))
				return
			}
			_, _ = w.Write([]byte(`{
				"data": [{"id": "zc2", "Full_Name": "Ada Velez", "Email": "ada@umbrella.com"}],
				"info": {"page": 2, "more_records": false}
			}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	adapter := NewZohoAdapter().(*zohoAdapter)
	adapter.api.baseURL = server.URL

	first, err := adapter.FetchPage(context.Background(), testCredential(models.ProviderZoho), "")
	require.NoError(t, err)
	require.NotNil(t, first.Deals[0].(*ZohoDeal).Contact,
		"lookups resolve against contacts beyond the first page")
	assert.Equal(t, "ada@umbrella.com", first.Deals[0].(*ZohoDeal).Contact.Email)

	second, err := adapter.FetchPage(context.Background(), testCredential(models.ProviderZoho), "2")
	require.NoError(t, err)
	require.NotNil(t, second.Deals[0].(*ZohoDeal).Contact)

	assert.Equal(t, 2, contactCalls, "the contacts collection is read once per run, not once per deals page")
}

func TestFolkCursorPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/people", r.URL.Path)
		assert.Equal(t, "abc", r.URL.Query().Get("cursor"))
		_, _ = w.Write([]byte(`{
			"data": [{"id": "p1", "fullName": "Noor Haddad", "emails": ["noor@hooli.com"]}],
			"pagination": {"nextCursor": "def"}
		}`))
	}))
	defer server.Close()

	adapter := NewFolkAdapter().(*folkAdapter)
	adapter.api.baseURL = server.URL

	page, err := adapter.FetchPage(context.Background(), testCredential(models.ProviderFolk), "abc")
	require.NoError(t, err)
	require.Len(t, page.Deals, 1)
	assert.Equal(t, "p1", page.Deals[0].RawID())
	assert.Equal(t, "def", page.NextCursor)
	assert.True(t, page.HasMore)
}

func TestAPIClientClassifies401(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	adapter := NewHubSpotAdapter().(*hubspotAdapter)
	adapter.api.baseURL = server.URL

	_, err := adapter.FetchPage(context.Background(), testCredential(models.ProviderHubSpot), "")
	require.Error(t, err)
	assert.Equal(t, KindAuthExpired, KindOf(err))
	assert.True(t, IsAuthExpired(err))
}

func TestAPIClientClassifiesMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": [`))
	}))
	defer server.Close()

	adapter := NewHubSpotAdapter().(*hubspotAdapter)
	adapter.api.baseURL = server.URL

	_, err := adapter.FetchPage(context.Background(), testCredential(models.ProviderHubSpot), "")
	require.Error(t, err)
	assert.Equal(t, KindSchemaMismatch, KindOf(err))
}
