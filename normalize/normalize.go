// ABOUTME: Normalizer mapping raw provider shapes into the canonical deal model
// ABOUTME: Pure and idempotent; timestamps and persistence are the caller's job
package normalize

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/revos/models"
	"github.com/harperreed/revos/providers"
)

// Normalize maps one raw provider record into the canonical deal shape.
// It is a pure function: the same input always yields a byte-identical
// deal. IDs are derived deterministically from (provider, externalID),
// and no timestamps are stamped here.
func Normalize(accountID string, raw providers.RawDeal) (*models.Deal, error) {
	switch r := raw.(type) {
	case *providers.HubSpotDeal:
		return normalizeHubSpot(accountID, r), nil
	case *providers.PipedriveDeal:
		return normalizePipedrive(accountID, r), nil
	case *providers.SalesforceOpportunity:
		return normalizeSalesforce(accountID, r), nil
	case *providers.ZohoDeal:
		return normalizeZoho(accountID, r), nil
	case *providers.FolkPerson:
		return normalizeFolk(accountID, r), nil
	case *providers.GmailThread:
		return normalizeGmail(accountID, r), nil
	default:
		return nil, fmt.Errorf("no normalizer for provider %q record %q", raw.RawProvider(), raw.RawID())
	}
}

// dealID derives a stable UUID from the provider identity so that
// normalizing the same record twice yields the same canonical ID.
func dealID(provider, externalID string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("revos/deal/"+provider+"/"+externalID))
}

func contactID(provider, externalID, key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("revos/contact/"+provider+"/"+externalID+"/"+key))
}

func normalizeHubSpot(accountID string, d *providers.HubSpotDeal) *models.Deal {
	id := dealID(models.ProviderHubSpot, d.ID)
	deal := &models.Deal{
		ID:          id,
		AccountID:   accountID,
		Provider:    models.ProviderHubSpot,
		ExternalID:  d.ID,
		CompanyName: d.Properties.DealName,
		Amount:      parseAmountCents(d.Properties.Amount),
		Currency:    d.Properties.CurrencyCode,
		Stage:       mapHubSpotStage(d.Properties.DealStage),
		CloseDate:   parseDate(d.Properties.CloseDate),
	}

	for _, c := range d.Contacts {
		deal.Contacts = append(deal.Contacts, models.Contact{
			ID:              contactID(models.ProviderHubSpot, d.ID, c.ID),
			DealID:          id,
			Name:            strings.TrimSpace(c.Properties.FirstName + " " + c.Properties.LastName),
			Email:           c.Properties.Email,
			Role:            c.Properties.JobTitle,
			IsDecisionMaker: isDecisionMaker(c.Properties.JobTitle),
		})
	}
	markSolePrimary(deal.Contacts)
	return deal
}

func normalizePipedrive(accountID string, d *providers.PipedriveDeal) *models.Deal {
	externalID := strconv.FormatInt(d.ID, 10)
	id := dealID(models.ProviderPipedrive, externalID)
	deal := &models.Deal{
		ID:          id,
		AccountID:   accountID,
		Provider:    models.ProviderPipedrive,
		ExternalID:  externalID,
		CompanyName: firstNonEmpty(d.OrgName, d.Title),
		Amount:      d.Value * 100,
		Currency:    d.Currency,
		Stage:       mapPipedriveStage(d.Status),
		CloseDate:   parseDate(d.ExpectedCloseDate),
	}

	// Pipedrive associates a single person per deal.
	if p := d.Person; p != nil {
		contact := models.Contact{
			ID:              contactID(models.ProviderPipedrive, externalID, strconv.FormatInt(p.ID, 10)),
			DealID:          id,
			Name:            p.Name,
			Role:            p.JobTitle,
			IsPrimary:       true,
			IsDecisionMaker: isDecisionMaker(p.JobTitle),
		}
		for _, e := range p.Email {
			if e.Primary || contact.Email == "" {
				contact.Email = e.Value
			}
		}
		deal.Contacts = append(deal.Contacts, contact)
	}
	return deal
}

func normalizeSalesforce(accountID string, o *providers.SalesforceOpportunity) *models.Deal {
	id := dealID(models.ProviderSalesforce, o.ID)
	deal := &models.Deal{
		ID:          id,
		AccountID:   accountID,
		Provider:    models.ProviderSalesforce,
		ExternalID:  o.ID,
		CompanyName: firstNonEmpty(o.Account.Name, o.Name),
		Amount:      int64(o.Amount * 100),
		Currency:    "",
		Stage:       mapSalesforceStage(o.StageName),
		CloseDate:   parseDate(o.CloseDate),
	}

	for _, role := range o.Roles {
		deal.Contacts = append(deal.Contacts, models.Contact{
			ID:              contactID(models.ProviderSalesforce, o.ID, role.ContactID),
			DealID:          id,
			Name:            role.Contact.Name,
			Email:           role.Contact.Email,
			Role:            role.Role,
			IsPrimary:       role.IsPrimary,
			IsDecisionMaker: isDecisionMaker(role.Role),
		})
	}
	return deal
}

func normalizeZoho(accountID string, d *providers.ZohoDeal) *models.Deal {
	id := dealID(models.ProviderZoho, d.ID)
	deal := &models.Deal{
		ID:          id,
		AccountID:   accountID,
		Provider:    models.ProviderZoho,
		ExternalID:  d.ID,
		CompanyName: firstNonEmpty(d.AccountName.Name, d.DealName),
		Amount:      int64(d.Amount * 100),
		Currency:    d.Currency,
		Stage:       mapZohoStage(d.Stage),
		CloseDate:   parseDate(d.ClosingDate),
	}

	// Zoho links one contact per deal. Fall back to the lookup name when
	// the contacts collection could not be resolved.
	switch {
	case d.Contact != nil:
		deal.Contacts = append(deal.Contacts, models.Contact{
			ID:              contactID(models.ProviderZoho, d.ID, d.Contact.ID),
			DealID:          id,
			Name:            d.Contact.FullName,
			Email:           d.Contact.Email,
			Role:            d.Contact.Title,
			IsPrimary:       true,
			IsDecisionMaker: isDecisionMaker(d.Contact.Title),
		})
	case d.ContactName.Name != "":
		deal.Contacts = append(deal.Contacts, models.Contact{
			ID:        contactID(models.ProviderZoho, d.ID, d.ContactName.ID),
			DealID:    id,
			Name:      d.ContactName.Name,
			IsPrimary: true,
		})
	}
	return deal
}

// normalizeFolk builds a contact-only deal shell. Folk is people-first:
// the person's company becomes the deal, the person becomes its contact.
func normalizeFolk(accountID string, p *providers.FolkPerson) *models.Deal {
	id := dealID(models.ProviderFolk, p.ID)
	company := p.FullName
	if len(p.Companies) > 0 && p.Companies[0].Name != "" {
		company = p.Companies[0].Name
	}

	deal := &models.Deal{
		ID:          id,
		AccountID:   accountID,
		Provider:    models.ProviderFolk,
		ExternalID:  p.ID,
		CompanyName: company,
		Stage:       models.StageProspecting,
	}

	contact := models.Contact{
		ID:              contactID(models.ProviderFolk, p.ID, p.ID),
		DealID:          id,
		Name:            p.FullName,
		Role:            p.JobTitle,
		IsPrimary:       true,
		IsDecisionMaker: isDecisionMaker(p.JobTitle),
	}
	if len(p.Emails) > 0 {
		contact.Email = p.Emails[0]
	}
	deal.Contacts = append(deal.Contacts, contact)
	return deal
}

// normalizeGmail builds a prospecting shell from an inbound thread. The
// sender's domain stands in for the company until a CRM record claims it.
func normalizeGmail(accountID string, t *providers.GmailThread) *models.Deal {
	id := dealID(models.ProviderGmail, t.ThreadID)
	name, email := parseAddress(t.From)

	deal := &models.Deal{
		ID:          id,
		AccountID:   accountID,
		Provider:    models.ProviderGmail,
		ExternalID:  t.ThreadID,
		CompanyName: firstNonEmpty(companyFromEmail(email), t.Subject),
		Stage:       models.StageProspecting,
	}

	if email != "" || name != "" {
		deal.Contacts = append(deal.Contacts, models.Contact{
			ID:        contactID(models.ProviderGmail, t.ThreadID, email),
			DealID:    id,
			Name:      firstNonEmpty(name, email),
			Email:     email,
			IsPrimary: true,
		})
	}
	return deal
}

func mapHubSpotStage(stage string) string {
	switch strings.ToLower(stage) {
	case "appointmentscheduled":
		return models.StageProspecting
	case "qualifiedtobuy":
		return models.StageQualification
	case "presentationscheduled", "contractsent":
		return models.StageProposal
	case "decisionmakerboughtin":
		return models.StageNegotiation
	case "closedwon":
		return models.StageClosedWon
	case "closedlost":
		return models.StageClosedLost
	default:
		return models.StageProspecting
	}
}

func mapPipedriveStage(status string) string {
	switch strings.ToLower(status) {
	case "won":
		return models.StageClosedWon
	case "lost":
		return models.StageClosedLost
	default:
		return models.StageQualification
	}
}

func mapSalesforceStage(stage string) string {
	return mapNamedStage(stage)
}

func mapZohoStage(stage string) string {
	return mapNamedStage(stage)
}

// mapNamedStage covers the human-readable stage names Salesforce and
// Zoho share in their default pipelines.
func mapNamedStage(stage string) string {
	s := strings.ToLower(stage)
	switch {
	case strings.Contains(s, "closed won") || s == "won":
		return models.StageClosedWon
	case strings.Contains(s, "closed lost") || s == "lost":
		return models.StageClosedLost
	case strings.Contains(s, "negotiation") || strings.Contains(s, "review"):
		return models.StageNegotiation
	case strings.Contains(s, "proposal") || strings.Contains(s, "quote") || strings.Contains(s, "value proposition"):
		return models.StageProposal
	case strings.Contains(s, "qualification") || strings.Contains(s, "needs analysis") || strings.Contains(s, "analysis"):
		return models.StageQualification
	default:
		return models.StageProspecting
	}
}

var decisionMakerTitles = []string{
	"ceo", "cto", "cfo", "coo", "chief", "founder", "owner",
	"president", "vp", "vice president", "director", "head of",
}

func isDecisionMaker(title string) bool {
	t := strings.ToLower(title)
	for _, marker := range decisionMakerTitles {
		if strings.Contains(t, marker) {
			return true
		}
	}
	return false
}

// markSolePrimary promotes a lone contact to primary. With several
// contacts and no provider signal, none is guessed.
func markSolePrimary(contacts []models.Contact) {
	if len(contacts) == 1 {
		contacts[0].IsPrimary = true
	}
}

// parseAmountCents converts a decimal amount string to integer cents.
// Unparseable or empty values become zero.
func parseAmountCents(amount string) int64 {
	if amount == "" {
		return 0
	}
	f, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0
	}
	return int64(f * 100)
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
}

func parseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func parseAddress(raw string) (name, email string) {
	if raw == "" {
		return "", ""
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", strings.TrimSpace(raw)
	}
	return addr.Name, strings.ToLower(addr.Address)
}

var freemailDomains = map[string]bool{
	"gmail.com": true, "googlemail.com": true, "yahoo.com": true,
	"hotmail.com": true, "outlook.com": true, "icloud.com": true,
	"aol.com": true, "proton.me": true, "protonmail.com": true,
}

// IsFreemailDomain reports whether a domain is a consumer mail host
// that says nothing about the sender's company.
func IsFreemailDomain(domain string) bool {
	return freemailDomains[strings.ToLower(domain)]
}

// companyFromEmail guesses a company label from the sender's domain.
// Freemail domains yield nothing.
func companyFromEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	domain := strings.ToLower(email[at+1:])
	if IsFreemailDomain(domain) {
		return ""
	}
	base := strings.TrimSuffix(domain, ".com")
	if dot := strings.Index(base, "."); dot > 0 {
		base = base[:dot]
	}
	if base == "" {
		return ""
	}
	return strings.ToUpper(base[:1]) + base[1:]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
