// ABOUTME: Database operations for sync_state and sync_log tables
// ABOUTME: Manages watermarks, the in_progress lease, and import tracking
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/revos/models"
)

// GetSyncState retrieves the watermark for an (account, provider) pair.
// Returns nil when no sync has been attempted yet.
func GetSyncState(db *sql.DB, accountID, provider string) (*models.SyncState, error) {
	var state models.SyncState
	var cursor, errorMessage sql.NullString
	var lastRunAt sql.NullTime

	err := db.QueryRow(`
		SELECT account_id, provider, cursor, status, last_run_at, error_message, created_at, updated_at
		FROM sync_state
		WHERE account_id = ? AND provider = ?
	`, accountID, provider).Scan(
		&state.AccountID,
		&state.Provider,
		&cursor,
		&state.Status,
		&lastRunAt,
		&errorMessage,
		&state.CreatedAt,
		&state.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	if cursor.Valid {
		state.Cursor = cursor.String
	}
	if lastRunAt.Valid {
		state.LastRunAt = &lastRunAt.Time
	}
	if errorMessage.Valid {
		state.ErrorMessage = errorMessage.String
	}

	return &state, nil
}

// ClaimSyncLease transitions the watermark to in_progress, creating the
// row on first sync. The transition is conditional: it fails when another
// run already holds the lease, which is the only serialization point
// between overlapping sync triggers for the same (account, provider).
func ClaimSyncLease(db *sql.DB, accountID, provider string) (bool, error) {
	now := time.Now()

	res, err := db.Exec(`
		INSERT INTO sync_state (account_id, provider, status, last_run_at, created_at, updated_at)
		VALUES (?, ?, 'in_progress', ?, ?, ?)
		ON CONFLICT(account_id, provider) DO UPDATE SET
			status = 'in_progress',
			last_run_at = excluded.last_run_at,
			error_message = NULL,
			updated_at = excluded.updated_at
		WHERE sync_state.status != 'in_progress'
	`, accountID, provider, now, now, now)

	if err != nil {
		return false, fmt.Errorf("failed to claim sync lease: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check sync lease: %w", err)
	}

	return n > 0, nil
}

// UpdateSyncCursor persists a new cursor mid-run. Called before the page
// behind the cursor is processed, so a crash resumes from the last fully
// fetched page.
func UpdateSyncCursor(db *sql.DB, accountID, provider, cursor string) error {
	_, err := db.Exec(`
		UPDATE sync_state SET cursor = ?, updated_at = ?
		WHERE account_id = ? AND provider = ?
	`, cursor, time.Now(), accountID, provider)

	if err != nil {
		return fmt.Errorf("failed to update sync cursor: %w", err)
	}

	return nil
}

// FinishSync records the terminal outcome of a run. errorMsg is persisted
// only for failed runs.
func FinishSync(db *sql.DB, accountID, provider, status string, errorMsg *string) error {
	if status != models.SyncStatusCompleted && status != models.SyncStatusFailed {
		return fmt.Errorf("invalid terminal sync status: %s", status)
	}

	var errVal sql.NullString
	if status == models.SyncStatusFailed && errorMsg != nil {
		errVal = sql.NullString{String: *errorMsg, Valid: true}
	}

	_, err := db.Exec(`
		UPDATE sync_state SET status = ?, error_message = ?, updated_at = ?
		WHERE account_id = ? AND provider = ?
	`, status, errVal, time.Now(), accountID, provider)

	if err != nil {
		return fmt.Errorf("failed to finish sync: %w", err)
	}

	return nil
}

// GetAllSyncStates retrieves the watermarks for every provider of an account.
func GetAllSyncStates(db *sql.DB, accountID string) ([]models.SyncState, error) {
	rows, err := db.Query(`
		SELECT account_id, provider, cursor, status, last_run_at, error_message, created_at, updated_at
		FROM sync_state
		WHERE account_id = ?
		ORDER BY provider
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []models.SyncState
	for rows.Next() {
		var state models.SyncState
		var cursor, errorMessage sql.NullString
		var lastRunAt sql.NullTime

		err := rows.Scan(
			&state.AccountID,
			&state.Provider,
			&cursor,
			&state.Status,
			&lastRunAt,
			&errorMessage,
			&state.CreatedAt,
			&state.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}

		if cursor.Valid {
			state.Cursor = cursor.String
		}
		if lastRunAt.Valid {
			state.LastRunAt = &lastRunAt.Time
		}
		if errorMessage.Valid {
			state.ErrorMessage = errorMessage.String
		}

		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync states: %w", err)
	}

	return states, nil
}

// CheckSyncLogExists checks if an entity has already been imported.
func CheckSyncLogExists(db *sql.DB, sourceService, sourceID string) (bool, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM sync_log
		WHERE source_service = ? AND source_id = ?
	`, sourceService, sourceID).Scan(&count)

	if err != nil {
		return false, fmt.Errorf("failed to check sync log: %w", err)
	}

	return count > 0, nil
}

// CreateSyncLog creates a sync log entry for an imported entity.
func CreateSyncLog(db *sql.DB, id, accountID, sourceService, sourceID, entityType, entityID, metadata string) error {
	_, err := db.Exec(`
		INSERT INTO sync_log (id, account_id, source_service, source_id, entity_type, entity_id, imported_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, ?)
	`, id, accountID, sourceService, sourceID, entityType, entityID, metadata)

	if err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}

	return nil
}
