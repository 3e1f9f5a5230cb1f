// ABOUTME: Database operations for canonical deals
// ABOUTME: Handles deal upserts with partial-update semantics and text-list dedup
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/revos/dedupe"
	"github.com/harperreed/revos/models"
)

// UpsertDeal writes a canonical deal keyed on (account_id, provider,
// external_id). Text lists pass through the deduplicator here so no
// caller can persist un-deduplicated pain points or next steps.
// Partial-update semantics: an empty incoming list never clobbers a
// stored non-empty one.
func UpsertDeal(db *sql.DB, deal *models.Deal) error {
	if deal.ExternalID == "" {
		return fmt.Errorf("deal requires external_id")
	}

	existing, err := GetDealByExternalID(db, deal.AccountID, deal.Provider, deal.ExternalID)
	if err != nil {
		return err
	}

	now := time.Now()
	deal.UpdatedAt = now

	painPoints := dedupe.Dedupe(deal.PainPoints, dedupe.DefaultThreshold)
	nextSteps := dedupe.Dedupe(deal.NextSteps, dedupe.DefaultThreshold)

	if existing != nil {
		deal.ID = existing.ID
		deal.CreatedAt = existing.CreatedAt

		// Keep stored values when the incoming field is absent.
		if len(painPoints) == 0 {
			painPoints = existing.PainPoints
		}
		if len(nextSteps) == 0 {
			nextSteps = existing.NextSteps
		}
		if deal.CompanyName == "" {
			deal.CompanyName = existing.CompanyName
		}
		if deal.Amount == 0 {
			deal.Amount = existing.Amount
		}
		if deal.CloseDate == nil {
			deal.CloseDate = existing.CloseDate
		}
	} else {
		deal.ID = uuid.New()
		deal.CreatedAt = now
	}

	deal.PainPoints = painPoints
	deal.NextSteps = nextSteps

	if deal.Currency == "" {
		deal.Currency = "USD"
	}

	_, err = db.Exec(`
		INSERT INTO deals (id, account_id, provider, external_id, company_name, amount, currency, stage, close_date, pain_points, next_steps, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, provider, external_id) DO UPDATE SET
			company_name = excluded.company_name,
			amount = excluded.amount,
			currency = excluded.currency,
			stage = excluded.stage,
			close_date = excluded.close_date,
			pain_points = excluded.pain_points,
			next_steps = excluded.next_steps,
			updated_at = excluded.updated_at
	`, deal.ID.String(), deal.AccountID, deal.Provider, deal.ExternalID, deal.CompanyName,
		deal.Amount, deal.Currency, deal.Stage, deal.CloseDate,
		encodeList(deal.PainPoints), encodeList(deal.NextSteps), deal.CreatedAt, deal.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert deal: %w", err)
	}

	return nil
}

// MergeDealAnalysis folds newly analyzed pain points and next steps into a
// stored deal. Existing entries win on near-duplicates; empty incoming
// lists leave the stored field untouched.
func MergeDealAnalysis(db *sql.DB, dealID uuid.UUID, painPoints, nextSteps []string) error {
	deal, err := GetDeal(db, dealID)
	if err != nil {
		return err
	}
	if deal == nil {
		return fmt.Errorf("deal not found: %s", dealID)
	}

	if len(painPoints) > 0 {
		deal.PainPoints = dedupe.MergeAndDedupe(deal.PainPoints, painPoints, dedupe.DefaultThreshold)
	}
	if len(nextSteps) > 0 {
		deal.NextSteps = dedupe.MergeAndDedupe(deal.NextSteps, nextSteps, dedupe.DefaultThreshold)
	}

	now := time.Now()
	_, err = db.Exec(`
		UPDATE deals SET pain_points = ?, next_steps = ?, updated_at = ? WHERE id = ?
	`, encodeList(deal.PainPoints), encodeList(deal.NextSteps), now, dealID.String())

	if err != nil {
		return fmt.Errorf("failed to update deal analysis: %w", err)
	}

	return nil
}

// GetDeal retrieves a deal by internal ID. Returns nil when not found.
func GetDeal(db *sql.DB, id uuid.UUID) (*models.Deal, error) {
	return scanOneDeal(db.QueryRow(dealSelect+` WHERE id = ?`, id.String()))
}

// GetDealByExternalID retrieves a deal by its provider identity.
func GetDealByExternalID(db *sql.DB, accountID, provider, externalID string) (*models.Deal, error) {
	return scanOneDeal(db.QueryRow(dealSelect+` WHERE account_id = ? AND provider = ? AND external_id = ?`,
		accountID, provider, externalID))
}

// ListDeals returns deals for an account, optionally filtered by provider.
func ListDeals(db *sql.DB, accountID, provider string, limit int) ([]models.Deal, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error

	if provider != "" {
		rows, err = db.Query(dealSelect+`
			WHERE account_id = ? AND provider = ?
			ORDER BY updated_at DESC
			LIMIT ?`, accountID, provider, limit)
	} else {
		rows, err = db.Query(dealSelect+`
			WHERE account_id = ?
			ORDER BY updated_at DESC
			LIMIT ?`, accountID, limit)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query deals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deals []models.Deal
	for rows.Next() {
		deal, err := scanDealRow(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *deal)
	}

	return deals, rows.Err()
}

const dealSelect = `
	SELECT id, account_id, provider, external_id, company_name, amount, currency, stage, close_date, pain_points, next_steps, created_at, updated_at
	FROM deals`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOneDeal(row *sql.Row) (*models.Deal, error) {
	deal, err := scanDealRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return deal, err
}

func scanDealRow(row rowScanner) (*models.Deal, error) {
	deal := &models.Deal{}
	var amount sql.NullInt64
	var closeDate sql.NullTime
	var painPoints, nextSteps sql.NullString

	err := row.Scan(
		&deal.ID,
		&deal.AccountID,
		&deal.Provider,
		&deal.ExternalID,
		&deal.CompanyName,
		&amount,
		&deal.Currency,
		&deal.Stage,
		&closeDate,
		&painPoints,
		&nextSteps,
		&deal.CreatedAt,
		&deal.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if amount.Valid {
		deal.Amount = amount.Int64
	}
	if closeDate.Valid {
		deal.CloseDate = &closeDate.Time
	}
	deal.PainPoints = decodeList(painPoints)
	deal.NextSteps = decodeList(nextSteps)

	return deal, nil
}

// encodeList stores a string list as a JSON array, NULL when empty.
func encodeList(items []string) sql.NullString {
	if len(items) == 0 {
		return sql.NullString{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func decodeList(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(s.String), &items); err != nil {
		return nil
	}
	return items
}
