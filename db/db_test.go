// ABOUTME: Tests for the database layer
// ABOUTME: Covers credential upserts, deal partial-update semantics, lease exclusivity, and the sync log
package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/revos/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := OpenDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestDefaultPathLandsInDataHome(t *testing.T) {
	path := DefaultPath()
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, "revos.db", filepath.Base(path))
	assert.Equal(t, "revos", filepath.Base(filepath.Dir(path)))
}

func TestOpenDatabaseCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "revos.db")

	database, err := OpenDatabase(path)
	require.NoError(t, err)
	defer func() { _ = database.Close() }()

	_, err = os.Stat(path)
	assert.NoError(t, err, "the data directory and file are created on first open")
}

func TestCredentialUpsertIsLastWriteWins(t *testing.T) {
	database := setupTestDB(t)

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	first := &models.Credential{
		AccountID:    "acct-1",
		Provider:     models.ProviderZoho,
		AccessToken:  "token-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    &expiry,
		Scope:        []string{"ZohoCRM.modules.deals.READ"},
		APIDomain:    "https://www.zohoapis.eu",
		Metadata:     map[string]string{"token_type": "bearer"},
	}
	require.NoError(t, UpsertCredential(database, first))

	stored, err := GetCredential(database, "acct-1", models.ProviderZoho)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "token-1", stored.AccessToken)
	assert.Equal(t, "https://www.zohoapis.eu", stored.APIDomain)
	assert.Equal(t, []string{"ZohoCRM.modules.deals.READ"}, stored.Scope)
	assert.Equal(t, "bearer", stored.Metadata["token_type"])
	require.NotNil(t, stored.ExpiresAt)

	second := *first
	second.AccessToken = "token-2"
	second.RefreshToken = "refresh-2"
	require.NoError(t, UpsertCredential(database, &second))

	stored, err = GetCredential(database, "acct-1", models.ProviderZoho)
	require.NoError(t, err)
	assert.Equal(t, "token-2", stored.AccessToken)
	assert.Equal(t, "refresh-2", stored.RefreshToken)

	creds, err := ListCredentials(database, "acct-1")
	require.NoError(t, err)
	assert.Len(t, creds, 1, "at most one credential per (account, provider)")
}

func TestGetCredentialMissingReturnsNil(t *testing.T) {
	database := setupTestDB(t)

	cred, err := GetCredential(database, "acct-1", models.ProviderGmail)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestDeleteCredential(t *testing.T) {
	database := setupTestDB(t)

	require.NoError(t, UpsertCredential(database, &models.Credential{
		AccountID:   "acct-1",
		Provider:    models.ProviderFolk,
		AccessToken: "token",
	}))
	require.NoError(t, DeleteCredential(database, "acct-1", models.ProviderFolk))

	cred, err := GetCredential(database, "acct-1", models.ProviderFolk)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestUpsertDealDedupesTextLists(t *testing.T) {
	database := setupTestDB(t)

	deal := &models.Deal{
		AccountID:   "acct-1",
		Provider:    models.ProviderHubSpot,
		ExternalID:  "hs-1",
		CompanyName: "Acme",
		Stage:       models.StageProposal,
		PainPoints: []string{
			"Reporting is manual",
			"reporting is manual!",
			"No single source of truth",
		},
	}
	require.NoError(t, UpsertDeal(database, deal))

	stored, err := GetDealByExternalID(database, "acct-1", models.ProviderHubSpot, "hs-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, []string{"Reporting is manual", "No single source of truth"}, stored.PainPoints,
		"the deduplicator runs inside the write path")
}

func TestUpsertDealPartialUpdateKeepsStoredFields(t *testing.T) {
	database := setupTestDB(t)

	closeDate := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	full := &models.Deal{
		AccountID:   "acct-1",
		Provider:    models.ProviderHubSpot,
		ExternalID:  "hs-1",
		CompanyName: "Acme",
		Amount:      500000,
		Stage:       models.StageProposal,
		CloseDate:   &closeDate,
		PainPoints:  []string{"Legacy system is slow"},
		NextSteps:   []string{"Send proposal"},
	}
	require.NoError(t, UpsertDeal(database, full))

	// A re-sync with sparse data must not clobber what we know.
	sparse := &models.Deal{
		AccountID:  "acct-1",
		Provider:   models.ProviderHubSpot,
		ExternalID: "hs-1",
		Stage:      models.StageNegotiation,
	}
	require.NoError(t, UpsertDeal(database, sparse))

	stored, err := GetDealByExternalID(database, "acct-1", models.ProviderHubSpot, "hs-1")
	require.NoError(t, err)
	assert.Equal(t, models.StageNegotiation, stored.Stage, "non-empty incoming fields do update")
	assert.Equal(t, "Acme", stored.CompanyName)
	assert.Equal(t, int64(500000), stored.Amount)
	require.NotNil(t, stored.CloseDate)
	assert.Equal(t, []string{"Legacy system is slow"}, stored.PainPoints)
	assert.Equal(t, []string{"Send proposal"}, stored.NextSteps)
	assert.Equal(t, full.ID, stored.ID, "the internal ID is stable across upserts")
}

func TestMergeDealAnalysisKeepsExistingEntries(t *testing.T) {
	database := setupTestDB(t)

	deal := &models.Deal{
		AccountID:  "acct-1",
		Provider:   models.ProviderPipedrive,
		ExternalID: "pd-1",
		Stage:      models.StageQualification,
		PainPoints: []string{"Onboarding takes too long"},
	}
	require.NoError(t, UpsertDeal(database, deal))

	require.NoError(t, MergeDealAnalysis(database, deal.ID,
		[]string{"onboarding takes too long", "Pricing unclear"},
		[]string{"Book follow-up call"}))

	stored, err := GetDeal(database, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Onboarding takes too long", "Pricing unclear"}, stored.PainPoints,
		"existing entries win on near-duplicates")
	assert.Equal(t, []string{"Book follow-up call"}, stored.NextSteps)
}

func TestReplaceDealContacts(t *testing.T) {
	database := setupTestDB(t)

	deal := &models.Deal{
		AccountID:  "acct-1",
		Provider:   models.ProviderSalesforce,
		ExternalID: "sf-1",
		Stage:      models.StageProposal,
	}
	require.NoError(t, UpsertDeal(database, deal))

	require.NoError(t, ReplaceDealContacts(database, deal.ID, []models.Contact{
		{Name: "Pat Lund", Email: "pat@initech.com", IsPrimary: true},
		{Name: "Lee Ngo", Role: "Engineer"},
	}))

	contacts, err := GetDealContacts(database, deal.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "Pat Lund", contacts[0].Name, "primary contact sorts first")

	// An empty incoming set is a partial update, not a delete-all.
	require.NoError(t, ReplaceDealContacts(database, deal.ID, nil))
	contacts, err = GetDealContacts(database, deal.ID)
	require.NoError(t, err)
	assert.Len(t, contacts, 2)

	// A non-empty set replaces.
	require.NoError(t, ReplaceDealContacts(database, deal.ID, []models.Contact{
		{Name: "Pat Lund", Email: "pat@initech.com", IsPrimary: true},
	}))
	contacts, err = GetDealContacts(database, deal.ID)
	require.NoError(t, err)
	assert.Len(t, contacts, 1)
}

func TestClaimSyncLeaseIsExclusive(t *testing.T) {
	database := setupTestDB(t)

	claimed, err := ClaimSyncLease(database, "acct-1", models.ProviderHubSpot)
	require.NoError(t, err)
	assert.True(t, claimed)

	// The lease is held; a second claim must lose.
	claimed, err = ClaimSyncLease(database, "acct-1", models.ProviderHubSpot)
	require.NoError(t, err)
	assert.False(t, claimed)

	// Other providers and accounts are independent.
	claimed, err = ClaimSyncLease(database, "acct-1", models.ProviderZoho)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = ClaimSyncLease(database, "acct-2", models.ProviderHubSpot)
	require.NoError(t, err)
	assert.True(t, claimed)

	// A terminal status releases the lease for the next run.
	require.NoError(t, FinishSync(database, "acct-1", models.ProviderHubSpot, models.SyncStatusCompleted, nil))
	claimed, err = ClaimSyncLease(database, "acct-1", models.ProviderHubSpot)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestFinishSyncValidatesTerminalStatus(t *testing.T) {
	database := setupTestDB(t)

	claimed, err := ClaimSyncLease(database, "acct-1", models.ProviderGmail)
	require.NoError(t, err)
	require.True(t, claimed)

	err = FinishSync(database, "acct-1", models.ProviderGmail, models.SyncStatusIdle, nil)
	require.Error(t, err)

	msg := "token endpoint rejected refresh"
	require.NoError(t, FinishSync(database, "acct-1", models.ProviderGmail, models.SyncStatusFailed, &msg))

	state, err := GetSyncState(database, "acct-1", models.ProviderGmail)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusFailed, state.Status)
	assert.Equal(t, msg, state.ErrorMessage)
}

func TestFinishSyncClearsErrorOnCompleted(t *testing.T) {
	database := setupTestDB(t)

	claimed, err := ClaimSyncLease(database, "acct-1", models.ProviderGmail)
	require.NoError(t, err)
	require.True(t, claimed)

	msg := "should not persist"
	require.NoError(t, FinishSync(database, "acct-1", models.ProviderGmail, models.SyncStatusCompleted, &msg))

	state, err := GetSyncState(database, "acct-1", models.ProviderGmail)
	require.NoError(t, err)
	assert.Empty(t, state.ErrorMessage, "errorMessage is populated only on failed")
}

func TestSyncCursorRoundTrip(t *testing.T) {
	database := setupTestDB(t)

	claimed, err := ClaimSyncLease(database, "acct-1", models.ProviderPipedrive)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, UpdateSyncCursor(database, "acct-1", models.ProviderPipedrive, "100"))

	state, err := GetSyncState(database, "acct-1", models.ProviderPipedrive)
	require.NoError(t, err)
	assert.Equal(t, "100", state.Cursor)
	assert.Equal(t, models.SyncStatusInProgress, state.Status)
}

func TestSyncLogRejectsDuplicateSource(t *testing.T) {
	database := setupTestDB(t)

	require.NoError(t, CreateSyncLog(database, "log-1", "acct-1", models.ProviderHubSpot, "hs-1", "deal", "deal-uuid", ""))

	exists, err := CheckSyncLogExists(database, models.ProviderHubSpot, "hs-1")
	require.NoError(t, err)
	assert.True(t, exists)

	err = CreateSyncLog(database, "log-2", "acct-1", models.ProviderHubSpot, "hs-1", "deal", "deal-uuid", "")
	require.Error(t, err, "(source_service, source_id) is unique")

	exists, err = CheckSyncLogExists(database, models.ProviderHubSpot, "hs-2")
	require.NoError(t, err)
	assert.False(t, exists)
}
