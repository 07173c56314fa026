package db

import (
	"database/sql"
	"fmt"
)

// UpsertCredential inserts or updates a credential row. On update the
// refresh token is only replaced when the new row actually carries one —
// providers do not reissue it on every exchange, and an absent value must
// never null out the stored one.
func (s *Store) UpsertCredential(c *Credential) error {
	var refresh any
	if len(c.RefreshEncrypted) > 0 {
		refresh = c.RefreshEncrypted
	}
	_, err := s.db.Exec(
		`INSERT INTO credentials (user_id, tenant_id, provider, scope, access_encrypted, refresh_encrypted, expiry)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, tenant_id, provider, scope) DO UPDATE SET
		   access_encrypted = excluded.access_encrypted,
		   refresh_encrypted = COALESCE(excluded.refresh_encrypted, refresh_encrypted),
		   expiry = excluded.expiry,
		   updated_at = CURRENT_TIMESTAMP`,
		c.UserID, c.TenantID, c.Provider, c.Scope, c.AccessEncrypted, refresh, c.Expiry,
	)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// GetCredential retrieves one credential, or nil when the user has never
// connected this scope. Absence is a normal state, not an error.
func (s *Store) GetCredential(userID, tenantID, provider, scope string) (*Credential, error) {
	c := &Credential{}
	var refresh []byte
	var expiry sql.NullTime
	err := s.db.QueryRow(
		`SELECT user_id, tenant_id, provider, scope, access_encrypted, refresh_encrypted, expiry, created_at, updated_at
		 FROM credentials WHERE user_id = ? AND tenant_id = ? AND provider = ? AND scope = ?`,
		userID, tenantID, provider, scope,
	).Scan(&c.UserID, &c.TenantID, &c.Provider, &c.Scope, &c.AccessEncrypted, &refresh, &expiry, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	c.RefreshEncrypted = refresh
	if expiry.Valid {
		t := expiry.Time
		c.Expiry = &t
	}
	return c, nil
}

// ListCredentialsByUser returns every credential the user holds, across all
// tenants and scopes. Used by revocation.
func (s *Store) ListCredentialsByUser(userID string) ([]*Credential, error) {
	rows, err := s.db.Query(
		`SELECT user_id, tenant_id, provider, scope, access_encrypted, refresh_encrypted, expiry, created_at, updated_at
		 FROM credentials WHERE user_id = ?`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*Credential
	for rows.Next() {
		c := &Credential{}
		var refresh []byte
		var expiry sql.NullTime
		if err := rows.Scan(&c.UserID, &c.TenantID, &c.Provider, &c.Scope, &c.AccessEncrypted, &refresh, &expiry, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		c.RefreshEncrypted = refresh
		if expiry.Valid {
			t := expiry.Time
			c.Expiry = &t
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// ListConnectedScopes returns the scopes for which a credential exists for
// (user, tenant), keyed by provider scope string.
func (s *Store) ListConnectedScopes(userID, tenantID, provider string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT scope FROM credentials WHERE user_id = ? AND tenant_id = ? AND provider = ? ORDER BY scope`,
		userID, tenantID, provider,
	)
	if err != nil {
		return nil, fmt.Errorf("list connected scopes: %w", err)
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var sc string
		if err := rows.Scan(&sc); err != nil {
			return nil, fmt.Errorf("scan scope: %w", err)
		}
		scopes = append(scopes, sc)
	}
	return scopes, rows.Err()
}

// DeleteCredentialsByUser removes every credential the user holds.
// Runs unconditionally — remote revocation failures must not block local
// cleanup.
func (s *Store) DeleteCredentialsByUser(userID string) error {
	if _, err := s.db.Exec(`DELETE FROM credentials WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}
