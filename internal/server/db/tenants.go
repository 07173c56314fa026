package db

import (
	"database/sql"
	"fmt"
)

// CreateTenant inserts a new tenant.
func (s *Store) CreateTenant(t *Tenant) error {
	_, err := s.db.Exec(
		`INSERT INTO tenants (tenant_id, name) VALUES (?, ?)`,
		t.TenantID, t.Name,
	)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

// GetTenant retrieves a tenant by id, or nil when it does not exist.
func (s *Store) GetTenant(tenantID string) (*Tenant, error) {
	t := &Tenant{}
	err := s.db.QueryRow(
		`SELECT tenant_id, name, ga_account, ga_property, ga_data_stream, ga_measurement_id, created_at, updated_at
		 FROM tenants WHERE tenant_id = ?`, tenantID,
	).Scan(&t.TenantID, &t.Name, &t.GAAccount, &t.GAProperty, &t.GADataStream, &t.GAMeasurementID, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// ListTenants returns all tenants.
func (s *Store) ListTenants() ([]*Tenant, error) {
	rows, err := s.db.Query(
		`SELECT tenant_id, name, ga_account, ga_property, ga_data_stream, ga_measurement_id, created_at, updated_at
		 FROM tenants ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		t := &Tenant{}
		if err := rows.Scan(&t.TenantID, &t.Name, &t.GAAccount, &t.GAProperty, &t.GADataStream, &t.GAMeasurementID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// SetTenantProperty records the GA4 property provisioned for a tenant.
func (s *Store) SetTenantProperty(tenantID, account, property string) error {
	_, err := s.db.Exec(
		`UPDATE tenants SET ga_account = ?, ga_property = ?, updated_at = CURRENT_TIMESTAMP WHERE tenant_id = ?`,
		account, property, tenantID,
	)
	if err != nil {
		return fmt.Errorf("set tenant property: %w", err)
	}
	return nil
}

// SetTenantDataStream records the GA4 web data stream provisioned for a
// tenant and the measurement id embedded in it.
func (s *Store) SetTenantDataStream(tenantID, dataStream, measurementID string) error {
	_, err := s.db.Exec(
		`UPDATE tenants SET ga_data_stream = ?, ga_measurement_id = ?, updated_at = CURRENT_TIMESTAMP WHERE tenant_id = ?`,
		dataStream, measurementID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("set tenant data stream: %w", err)
	}
	return nil
}

// ResetTenantAnalytics clears the persisted GA4 references. Explicit user
// action only — provisioning never overwrites a recorded reference.
func (s *Store) ResetTenantAnalytics(tenantID string) error {
	_, err := s.db.Exec(
		`UPDATE tenants SET ga_account = '', ga_property = '', ga_data_stream = '', ga_measurement_id = '', updated_at = CURRENT_TIMESTAMP
		 WHERE tenant_id = ?`, tenantID,
	)
	if err != nil {
		return fmt.Errorf("reset tenant analytics: %w", err)
	}
	return nil
}
