// ABOUTME: Data models for the canonical CRM entities and provider credentials
// ABOUTME: Defines Credential, Deal, Contact, and SyncState structs
package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifiers. Every credential, watermark, and imported entity
// is keyed on one of these.
const (
	ProviderGmail      = "gmail"
	ProviderHubSpot    = "hubspot"
	ProviderPipedrive  = "pipedrive"
	ProviderSalesforce = "salesforce"
	ProviderZoho       = "zoho"
	ProviderFolk       = "folk"
	ProviderSlack      = "slack"
)

// Providers lists every supported provider identifier.
var Providers = []string{
	ProviderGmail,
	ProviderHubSpot,
	ProviderPipedrive,
	ProviderSalesforce,
	ProviderZoho,
	ProviderFolk,
	ProviderSlack,
}

// IsValidProvider reports whether name is a known provider identifier.
func IsValidProvider(name string) bool {
	for _, p := range Providers {
		if p == name {
			return true
		}
	}
	return false
}

// Credential holds the stored OAuth token set for one (account, provider)
// pair. At most one row exists per pair; writes are upserts.
type Credential struct {
	AccountID    string            `json:"account_id"`
	Provider     string            `json:"provider"`
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	Scope        []string          `json:"scope,omitempty"`
	APIDomain    string            `json:"api_domain,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Expired reports whether the access token is past (or within skew of)
// its expiry. Credentials with no expiry never expire.
func (c *Credential) Expired(skew time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !time.Now().Add(skew).Before(*c.ExpiresAt)
}

// Deal stage vocabulary. Provider-specific stage strings are mapped into
// this fixed set by the normalizer.
const (
	StageProspecting   = "prospecting"
	StageQualification = "qualification"
	StageProposal      = "proposal"
	StageNegotiation   = "negotiation"
	StageClosedWon     = "closed_won"
	StageClosedLost    = "closed_lost"
)

// DealStages lists the canonical stage vocabulary.
var DealStages = []string{
	StageProspecting,
	StageQualification,
	StageProposal,
	StageNegotiation,
	StageClosedWon,
	StageClosedLost,
}

// IsValidStage reports whether stage is in the canonical vocabulary.
func IsValidStage(stage string) bool {
	for _, s := range DealStages {
		if s == stage {
			return true
		}
	}
	return false
}

// Deal is the canonical deal shape every provider is normalized into.
// PainPoints and NextSteps are always deduplicated before persistence.
type Deal struct {
	ID          uuid.UUID  `json:"id"`
	AccountID   string     `json:"account_id"`
	Provider    string     `json:"provider"`
	ExternalID  string     `json:"external_id"`
	CompanyName string     `json:"company_name"`
	Amount      int64      `json:"amount,omitempty"` // in cents
	Currency    string     `json:"currency"`
	Stage       string     `json:"stage"`
	CloseDate   *time.Time `json:"close_date,omitempty"`
	PainPoints  []string   `json:"pain_points,omitempty"`
	NextSteps   []string   `json:"next_steps,omitempty"`
	Contacts    []Contact  `json:"contacts,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Contact is the canonical contact shape. DealID is a weak reference: a
// contact row outlives the sync run that imported it.
type Contact struct {
	ID              uuid.UUID `json:"id"`
	DealID          uuid.UUID `json:"deal_id"`
	Name            string    `json:"name"`
	Email           string    `json:"email,omitempty"`
	Role            string    `json:"role,omitempty"`
	IsPrimary       bool      `json:"is_primary"`
	IsDecisionMaker bool      `json:"is_decision_maker"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Sync status constants. Transitions follow
// idle -> in_progress -> {completed, failed} -> in_progress.
const (
	SyncStatusIdle       = "idle"
	SyncStatusInProgress = "in_progress"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)

// SyncState is the resumption watermark for one (account, provider)
// pair. Exactly one row exists per pair once a sync has been attempted.
type SyncState struct {
	AccountID    string     `json:"account_id"`
	Provider     string     `json:"provider"`
	Cursor       string     `json:"cursor,omitempty"`
	Status       string     `json:"status"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SyncLog records one imported external entity so that re-delivered
// pages are idempotent. Unique on (source_service, source_id).
type SyncLog struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"account_id"`
	SourceService string    `json:"source_service"`
	SourceID      string    `json:"source_id"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	ImportedAt    time.Time `json:"imported_at"`
	Metadata      string    `json:"metadata,omitempty"`
}
