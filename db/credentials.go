// ABOUTME: Database operations for the credentials table
// ABOUTME: Upsert/get/delete of OAuth credentials keyed on (account_id, provider)
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/revos/models"
)

// GetCredential retrieves the credential for an (account, provider) pair.
// Returns nil when no credential is stored.
func GetCredential(db *sql.DB, accountID, provider string) (*models.Credential, error) {
	var cred models.Credential
	var refreshToken, scope, apiDomain, metadata sql.NullString
	var expiresAt sql.NullTime

	err := db.QueryRow(`
		SELECT account_id, provider, access_token, refresh_token, expires_at, scope, api_domain, metadata, created_at, updated_at
		FROM credentials
		WHERE account_id = ? AND provider = ?
	`, accountID, provider).Scan(
		&cred.AccountID,
		&cred.Provider,
		&cred.AccessToken,
		&refreshToken,
		&expiresAt,
		&scope,
		&apiDomain,
		&metadata,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	if refreshToken.Valid {
		cred.RefreshToken = refreshToken.String
	}
	if expiresAt.Valid {
		cred.ExpiresAt = &expiresAt.Time
	}
	if scope.Valid && scope.String != "" {
		cred.Scope = strings.Split(scope.String, " ")
	}
	if apiDomain.Valid {
		cred.APIDomain = apiDomain.String
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &cred.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode credential metadata: %w", err)
		}
	}

	return &cred, nil
}

// UpsertCredential writes a credential, replacing any existing row for the
// same (account_id, provider). Last write wins.
func UpsertCredential(db *sql.DB, cred *models.Credential) error {
	if cred.AccountID == "" || cred.Provider == "" {
		return fmt.Errorf("credential requires account_id and provider")
	}

	now := time.Now()
	cred.UpdatedAt = now
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}

	var metadata sql.NullString
	if len(cred.Metadata) > 0 {
		b, err := json.Marshal(cred.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode credential metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO credentials (account_id, provider, access_token, refresh_token, expires_at, scope, api_domain, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scope = excluded.scope,
			api_domain = excluded.api_domain,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, cred.AccountID, cred.Provider, cred.AccessToken, nullString(cred.RefreshToken),
		cred.ExpiresAt, nullString(strings.Join(cred.Scope, " ")), nullString(cred.APIDomain),
		metadata, cred.CreatedAt, cred.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	return nil
}

// DeleteCredential removes the credential for an (account, provider) pair.
// Deleting a missing credential is not an error.
func DeleteCredential(db *sql.DB, accountID, provider string) error {
	_, err := db.Exec(`
		DELETE FROM credentials WHERE account_id = ? AND provider = ?
	`, accountID, provider)

	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	return nil
}

// ListCredentials returns all stored credentials for an account.
func ListCredentials(db *sql.DB, accountID string) ([]models.Credential, error) {
	rows, err := db.Query(`
		SELECT account_id, provider FROM credentials WHERE account_id = ? ORDER BY provider
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pairs []models.Credential
	for rows.Next() {
		var c models.Credential
		if err := rows.Scan(&c.AccountID, &c.Provider); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		pairs = append(pairs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credentials: %w", err)
	}

	// Re-read full rows so scope/metadata decoding stays in one place.
	creds := make([]models.Credential, 0, len(pairs))
	for _, p := range pairs {
		full, err := GetCredential(db, p.AccountID, p.Provider)
		if err != nil {
			return nil, err
		}
		if full != nil {
			creds = append(creds, *full)
		}
	}

	return creds, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
