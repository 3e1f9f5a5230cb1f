// ABOUTME: Tests for the Gmail adapter against a local Gmail API server
// ABOUTME: Covers the first-import window, history-based incremental sync, and watermark expiry
package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/harperreed/revos/models"
)

func newGmailTestAdapter(t *testing.T, handler http.HandlerFunc) *gmailAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter := NewGmailAdapter().(*gmailAdapter)
	adapter.newService = func(ctx context.Context, _ *models.Credential) (*gmail.Service, error) {
		return gmail.NewService(ctx,
			option.WithEndpoint(server.URL),
			option.WithHTTPClient(server.Client()))
	}
	return adapter
}

func writeGmailMessage(w http.ResponseWriter, id, threadID, historyID, from string) {
	_, _ = w.Write([]byte(`{
		"id": "` + id + `",
		"threadId": "` + threadID + `",
		"historyId": "` + historyID + `",
		"payload": {"headers": [
			{"name": "From", "value": "` + from + `"},
			{"name": "Subject", "value": "Re: rollout"}
		]}
	}`))
}

func TestGmailInitialImportSetsHistoryWatermark(t *testing.T) {
	adapter := newGmailTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/messages/"):
			writeGmailMessage(w, "m1", "t1", "120", "dana@acme.com")
		case strings.HasSuffix(r.URL.Path, "/messages"):
			assert.Contains(t, r.URL.Query().Get("q"), "newer_than:30d")
			_, _ = w.Write([]byte(`{"messages": [{"id": "m1"}]}`))
		case strings.HasSuffix(r.URL.Path, "/profile"):
			_, _ = w.Write([]byte(`{"emailAddress": "me@acme.com", "historyId": "555"}`))
		default:
			http.NotFound(w, r)
		}
	})

	page, err := adapter.FetchPage(context.Background(), testCredential(models.ProviderGmail), "")
	require.NoError(t, err)

	require.Len(t, page.Deals, 1)
	assert.Equal(t, "m1", page.Deals[0].RawID())
	assert.False(t, page.HasMore)
	assert.Equal(t, "history:555", page.Watermark,
		"the final page carries the mailbox history ID for the next run")
}

func TestGmailIncrementalSyncFetchesHistoryForward(t *testing.T) {
	listedMessages := false
	adapter := newGmailTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/history"):
			assert.Equal(t, "500", r.URL.Query().Get("startHistoryId"))
			_, _ = w.Write([]byte(`{
				"history": [{"messagesAdded": [{"message": {"id": "m9"}}, {"message": {"id": "m9"}}]}],
				"historyId": "600"
			}`))
		case strings.Contains(r.URL.Path, "/messages/"):
			writeGmailMessage(w, "m9", "t9", "590", "sam@globex.com")
		case strings.HasSuffix(r.URL.Path, "/messages"):
			listedMessages = true
			http.NotFound(w, r)
		default:
			http.NotFound(w, r)
		}
	})

	page, err := adapter.FetchPage(context.Background(), testCredential(models.ProviderGmail), "history:500")
	require.NoError(t, err)

	require.Len(t, page.Deals, 1, "duplicate history records collapse to one message")
	assert.Equal(t, "m9", page.Deals[0].RawID())
	assert.Equal(t, "history:600", page.Watermark, "the watermark advances to the mailbox's current history ID")
	assert.False(t, listedMessages, "incremental runs never re-list the time window")
}

func TestGmailEmptyHistoryKeepsWatermark(t *testing.T) {
	adapter := newGmailTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/history") {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		http.NotFound(w, r)
	})

	page, err := adapter.FetchPage(context.Background(), testCredential(models.ProviderGmail), "history:500")
	require.NoError(t, err)

	assert.Empty(t, page.Deals)
	assert.Equal(t, "history:500", page.Watermark, "no newer history leaves the old watermark in place")
}

func TestGmailExpiredHistoryFallsBackToFullWindow(t *testing.T) {
	adapter := newGmailTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/history"):
			http.Error(w, `{"error": {"code": 404}}`, http.StatusNotFound)
		case strings.Contains(r.URL.Path, "/messages/"):
			writeGmailMessage(w, "m1", "t1", "690", "dana@acme.com")
		case strings.HasSuffix(r.URL.Path, "/messages"):
			_, _ = w.Write([]byte(`{"messages": [{"id": "m1"}]}`))
		case strings.HasSuffix(r.URL.Path, "/profile"):
			_, _ = w.Write([]byte(`{"historyId": "700"}`))
		default:
			http.NotFound(w, r)
		}
	})

	page, err := adapter.FetchPage(context.Background(), testCredential(models.ProviderGmail), "history:500")
	require.NoError(t, err, "an expired watermark degrades to a window re-import, not a failed run")

	require.Len(t, page.Deals, 1)
	assert.Equal(t, "history:700", page.Watermark)
}

func TestGmailHistoryPaginationKeepsStartID(t *testing.T) {
	adapter := newGmailTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/history") {
			_, _ = w.Write([]byte(`{
				"history": [{"messagesAdded": [{"message": {"id": "m2"}}]}],
				"historyId": "600",
				"nextPageToken": "hp-2"
			}`))
			return
		}
		if strings.Contains(r.URL.Path, "/messages/") {
			writeGmailMessage(w, "m2", "t2", "550", "dana@acme.com")
			return
		}
		http.NotFound(w, r)
	})

	page, err := adapter.FetchPage(context.Background(), testCredential(models.ProviderGmail), "history:500")
	require.NoError(t, err)

	assert.True(t, page.HasMore)
	assert.Equal(t, "history:500:hp-2", page.NextCursor,
		"mid-run history cursors keep the original start ID")
	assert.Empty(t, page.Watermark, "the watermark is only set on the final page")
}
