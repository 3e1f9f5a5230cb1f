// ABOUTME: Database operations for canonical deal contacts
// ABOUTME: Handles the deal_contacts association table
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/revos/models"
)

// ReplaceDealContacts swaps the stored contact set for a deal. An empty
// incoming set leaves existing contacts alone (partial-update semantics,
// matching the deal text fields).
func ReplaceDealContacts(db *sql.DB, dealID uuid.UUID, contacts []models.Contact) error {
	if len(contacts) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM deal_contacts WHERE deal_id = ?`, dealID.String()); err != nil {
		return fmt.Errorf("failed to clear deal contacts: %w", err)
	}

	now := time.Now()
	for i := range contacts {
		c := &contacts[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.DealID = dealID
		c.CreatedAt = now
		c.UpdatedAt = now

		_, err := tx.Exec(`
			INSERT INTO deal_contacts (id, deal_id, name, email, role, is_primary, is_decision_maker, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID.String(), dealID.String(), c.Name, nullString(c.Email), nullString(c.Role),
			c.IsPrimary, c.IsDecisionMaker, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert deal contact: %w", err)
		}
	}

	return tx.Commit()
}

// GetDealContacts returns the contacts associated with a deal.
func GetDealContacts(db *sql.DB, dealID uuid.UUID) ([]models.Contact, error) {
	rows, err := db.Query(`
		SELECT id, deal_id, name, email, role, is_primary, is_decision_maker, created_at, updated_at
		FROM deal_contacts
		WHERE deal_id = ?
		ORDER BY is_primary DESC, name
	`, dealID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query deal contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var contacts []models.Contact
	for rows.Next() {
		var c models.Contact
		var email, role sql.NullString

		if err := rows.Scan(&c.ID, &c.DealID, &c.Name, &email, &role, &c.IsPrimary, &c.IsDecisionMaker, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deal contact: %w", err)
		}

		if email.Valid {
			c.Email = email.String
		}
		if role.Valid {
			c.Role = role.String
		}

		contacts = append(contacts, c)
	}

	return contacts, rows.Err()
}

// FindContactsByAccount returns every contact attached to an account's
// deals, used to seed the cross-run contact matcher.
func FindContactsByAccount(db *sql.DB, accountID string, limit int) ([]models.Contact, error) {
	if limit <= 0 {
		limit = 20000
	}

	rows, err := db.Query(`
		SELECT c.id, c.deal_id, c.name, c.email, c.role, c.is_primary, c.is_decision_maker, c.created_at, c.updated_at
		FROM deal_contacts c
		JOIN deals d ON d.id = c.deal_id
		WHERE d.account_id = ?
		LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query account contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var contacts []models.Contact
	for rows.Next() {
		var c models.Contact
		var email, role sql.NullString

		if err := rows.Scan(&c.ID, &c.DealID, &c.Name, &email, &role, &c.IsPrimary, &c.IsDecisionMaker, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}

		if email.Valid {
			c.Email = email.String
		}
		if role.Valid {
			c.Role = role.String
		}

		contacts = append(contacts, c)
	}

	return contacts, rows.Err()
}
