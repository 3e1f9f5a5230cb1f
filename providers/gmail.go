// ABOUTME: Gmail provider adapter over the Google Gmail API
// ABOUTME: Imports a time window on first sync, then follows the history watermark
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/harperreed/revos/models"
)

const (
	gmailPageLimit = 100

	// Message metadata lookups fan out per page; keep the concurrency
	// modest to stay inside Gmail quota units.
	gmailFetchConcurrency = 5

	// First syncs look back this many days; incremental syncs fetch
	// history changes after the stored watermark instead.
	GmailImportDays = 30

	// gmailHistoryCursorPrefix marks a cursor as a history watermark
	// ("history:<id>", plus ":<pageToken>" while paging mid-run) rather
	// than a messages.list page token.
	gmailHistoryCursorPrefix = "history:"
)

// errGmailHistoryExpired signals that Gmail no longer retains history
// back to the stored watermark and a full window re-import is needed.
var errGmailHistoryExpired = errors.New("gmail history watermark expired")

// GmailThread is the raw Gmail shape, one variant of RawDeal: one
// message with the headers needed to tie it to a contact and company.
type GmailThread struct {
	MessageID string
	ThreadID  string
	HistoryID uint64
	Subject   string
	From      string
	To        string
	Date      string
	Snippet   string
}

func (t *GmailThread) RawProvider() string { return models.ProviderGmail }
func (t *GmailThread) RawID() string       { return t.MessageID }

type gmailAdapter struct {
	// newService builds the Gmail API client; swapped in tests.
	newService func(ctx context.Context, cred *models.Credential) (*gmail.Service, error)
}

// NewGmailAdapter creates the Gmail mailbox adapter.
func NewGmailAdapter() Adapter {
	return &gmailAdapter{newService: newGmailService}
}

func (a *gmailAdapter) Name() string { return models.ProviderGmail }

// newGmailService creates an authenticated Gmail API service from a
// stored credential.
func newGmailService(ctx context.Context, cred *models.Credential) (*gmail.Service, error) {
	config, err := OAuthConfig(models.ProviderGmail)
	if err != nil {
		return nil, err
	}

	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
	}
	if cred.ExpiresAt != nil {
		token.Expiry = *cred.ExpiresAt
	}

	service, err := gmail.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		return nil, NewError(KindFatal, models.ProviderGmail, "failed to create Gmail service", err)
	}

	return service, nil
}

func (a *gmailAdapter) FetchPage(ctx context.Context, cred *models.Credential, cursor string) (*Page, error) {
	service, err := a.newService(ctx, cred)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(cursor, gmailHistoryCursorPrefix) {
		page, err := a.fetchHistoryPage(ctx, service, strings.TrimPrefix(cursor, gmailHistoryCursorPrefix))
		if errors.Is(err, errGmailHistoryExpired) {
			fmt.Printf("  → gmail: history watermark expired, re-importing the last %d days\n", GmailImportDays)
			return a.fetchQueryPage(ctx, service, "")
		}
		return page, err
	}

	return a.fetchQueryPage(ctx, service, cursor)
}

// fetchQueryPage lists one page of the time-window query used on first
// import and after an expired watermark.
func (a *gmailAdapter) fetchQueryPage(ctx context.Context, service *gmail.Service, pageToken string) (*Page, error) {
	call := service.Users.Messages.List("me").
		Q(fmt.Sprintf("in:inbox newer_than:%dd", GmailImportDays)).
		MaxResults(gmailPageLimit).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	response, err := call.Do()
	if err != nil {
		return nil, classifyGoogleError(err)
	}

	var ids []string
	if response != nil {
		for _, ref := range response.Messages {
			ids = append(ids, ref.Id)
		}
	}
	threads := a.resolveMetadata(ctx, service, ids)

	page := &Page{Deals: rawDeals(threads)}
	if response != nil && response.NextPageToken != "" {
		page.HasMore = true
		page.NextCursor = response.NextPageToken
		return page, nil
	}

	page.Watermark = a.currentWatermark(ctx, service, threads)
	return page, nil
}

// fetchHistoryPage fetches message additions after the stored history
// watermark. rest is "<startID>" or "<startID>:<pageToken>".
func (a *gmailAdapter) fetchHistoryPage(ctx context.Context, service *gmail.Service, rest string) (*Page, error) {
	startStr, pageToken, _ := strings.Cut(rest, ":")
	startID, err := strconv.ParseUint(startStr, 10, 64)
	if err != nil {
		return nil, NewError(KindFatal, models.ProviderGmail, "invalid history cursor: "+rest, err)
	}

	call := service.Users.History.List("me").
		StartHistoryId(startID).
		HistoryTypes("messageAdded").
		MaxResults(gmailPageLimit).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	response, err := call.Do()
	if err != nil {
		// Gmail answers 404 once the mailbox no longer retains history
		// back to the requested ID.
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, errGmailHistoryExpired
		}
		return nil, classifyGoogleError(err)
	}

	var ids []string
	seen := make(map[string]bool)
	if response != nil {
		for _, record := range response.History {
			for _, added := range record.MessagesAdded {
				if added.Message != nil && !seen[added.Message.Id] {
					seen[added.Message.Id] = true
					ids = append(ids, added.Message.Id)
				}
			}
		}
	}
	threads := a.resolveMetadata(ctx, service, ids)

	page := &Page{Deals: rawDeals(threads)}
	if response != nil && response.NextPageToken != "" {
		page.HasMore = true
		page.NextCursor = gmailHistoryCursorPrefix + startStr + ":" + response.NextPageToken
		return page, nil
	}

	if response != nil && response.HistoryId > 0 {
		page.Watermark = gmailHistoryCursor(response.HistoryId)
	} else {
		// No newer history; the old watermark stays valid.
		page.Watermark = gmailHistoryCursorPrefix + startStr
	}
	return page, nil
}

// resolveMetadata fetches message headers concurrently; individual
// failures are logged and skipped so one bad message never sinks the
// page.
func (a *gmailAdapter) resolveMetadata(ctx context.Context, service *gmail.Service, ids []string) []*GmailThread {
	threads := make([]*GmailThread, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(gmailFetchConcurrency)

	for i, id := range ids {
		g.Go(func() error {
			thread, err := fetchMessageMetadata(gctx, service, id)
			if err != nil {
				fmt.Printf("  ✗ gmail: message %s fetch failed, skipping: %v\n", id, err)
				return nil
			}
			threads[i] = thread
			return nil
		})
	}
	_ = g.Wait()
	return threads
}

func rawDeals(threads []*GmailThread) []RawDeal {
	deals := make([]RawDeal, 0, len(threads))
	for _, t := range threads {
		if t != nil {
			deals = append(deals, t)
		}
	}
	return deals
}

// currentWatermark reads the mailbox's current history ID so the next
// run can fetch forward from it. The profile call is best effort; the
// newest imported message still moves the watermark.
func (a *gmailAdapter) currentWatermark(ctx context.Context, service *gmail.Service, threads []*GmailThread) string {
	profile, err := service.Users.GetProfile("me").Context(ctx).Do()
	if err == nil && profile != nil && profile.HistoryId > 0 {
		return gmailHistoryCursor(profile.HistoryId)
	}

	var newest uint64
	for _, t := range threads {
		if t != nil && t.HistoryID > newest {
			newest = t.HistoryID
		}
	}
	if newest == 0 {
		return ""
	}
	return gmailHistoryCursor(newest)
}

func gmailHistoryCursor(id uint64) string {
	return gmailHistoryCursorPrefix + strconv.FormatUint(id, 10)
}

func fetchMessageMetadata(ctx context.Context, service *gmail.Service, messageID string) (*GmailThread, error) {
	message, err := service.Users.Messages.Get("me", messageID).
		Format("metadata").
		MetadataHeaders("From", "To", "Subject", "Date").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyGoogleError(err)
	}

	thread := &GmailThread{
		MessageID: message.Id,
		ThreadID:  message.ThreadId,
		HistoryID: message.HistoryId,
		Snippet:   message.Snippet,
	}

	if message.Payload != nil {
		for _, header := range message.Payload.Headers {
			switch header.Name {
			case "From":
				thread.From = header.Value
			case "To":
				thread.To = header.Value
			case "Subject":
				thread.Subject = header.Value
			case "Date":
				thread.Date = header.Value
			}
		}
	}

	return thread, nil
}

// classifyGoogleError maps googleapi errors onto the taxonomy.
func classifyGoogleError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return NewError(ClassifyStatus(apiErr.Code), models.ProviderGmail,
			fmt.Sprintf("Gmail API returned HTTP %d", apiErr.Code), err)
	}
	return NewError(ClassifyTransport(err), models.ProviderGmail, "Gmail API call failed", err)
}
