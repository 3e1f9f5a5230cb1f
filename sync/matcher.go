// ABOUTME: Cross-provider contact matching by normalized email
// ABOUTME: Lets a Gmail thread land on the deal a CRM import already created
package sync

import (
	"database/sql"
	"strings"

	"github.com/harperreed/revos/db"
	"github.com/harperreed/revos/models"
	"github.com/harperreed/revos/normalize"
)

// ContactMatcher indexes an account's known contacts by email so records
// arriving from a second provider attach to existing deals instead of
// spawning duplicates.
type ContactMatcher struct {
	byEmail map[string]*models.Contact
}

// NewContactMatcher creates a matcher from existing contacts.
func NewContactMatcher(contacts []models.Contact) *ContactMatcher {
	m := &ContactMatcher{
		byEmail: make(map[string]*models.Contact),
	}

	for i := range contacts {
		email := normalizeEmail(contacts[i].Email)
		if email != "" {
			m.byEmail[email] = &contacts[i]
		}
	}

	return m
}

// LoadContactMatcher seeds a matcher with every contact stored for an
// account.
func LoadContactMatcher(database *sql.DB, accountID string) (*ContactMatcher, error) {
	contacts, err := db.FindContactsByAccount(database, accountID, 0)
	if err != nil {
		return nil, err
	}
	return NewContactMatcher(contacts), nil
}

// FindMatch looks up an existing contact by email.
func (m *ContactMatcher) FindMatch(email string) (*models.Contact, bool) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return nil, false
	}

	contact, found := m.byEmail[normalized]
	return contact, found
}

// FindByDomain returns any known contact sharing the email's domain,
// used to group a new sender under an already-imported company.
// Freemail domains never group; they identify a person, not a company.
func (m *ContactMatcher) FindByDomain(email string) (*models.Contact, bool) {
	domain := extractDomain(normalizeEmail(email))
	if domain == "" || normalize.IsFreemailDomain(domain) {
		return nil, false
	}

	for addr, contact := range m.byEmail {
		if extractDomain(addr) == domain {
			return contact, true
		}
	}
	return nil, false
}

// AddContact adds a newly created contact so later records in the same
// run match against it.
func (m *ContactMatcher) AddContact(contact *models.Contact) {
	email := normalizeEmail(contact.Email)
	if email != "" {
		m.byEmail[email] = contact
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func extractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
