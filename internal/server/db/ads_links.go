package db

import (
	"database/sql"
	"fmt"
)

// UpsertAdsLink ensures a tenant↔Ads-customer link row exists. The label
// reference is left untouched on conflict.
func (s *Store) UpsertAdsLink(l *AdsLink) error {
	_, err := s.db.Exec(
		`INSERT INTO ads_links (tenant_id, customer_id, label_resource)
		 VALUES (?, ?, ?)
		 ON CONFLICT(tenant_id, customer_id) DO UPDATE SET
		   updated_at = CURRENT_TIMESTAMP`,
		l.TenantID, l.CustomerID, l.LabelResource,
	)
	if err != nil {
		return fmt.Errorf("upsert ads link: %w", err)
	}
	return nil
}

// GetAdsLink retrieves one link, or nil when the tenant has never linked
// this customer account.
func (s *Store) GetAdsLink(tenantID, customerID string) (*AdsLink, error) {
	l := &AdsLink{}
	err := s.db.QueryRow(
		`SELECT tenant_id, customer_id, label_resource, created_at, updated_at
		 FROM ads_links WHERE tenant_id = ? AND customer_id = ?`,
		tenantID, customerID,
	).Scan(&l.TenantID, &l.CustomerID, &l.LabelResource, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ads link: %w", err)
	}
	return l, nil
}

// SetAdsLinkLabel records the label resource name provisioned for a link.
func (s *Store) SetAdsLinkLabel(tenantID, customerID, labelResource string) error {
	_, err := s.db.Exec(
		`UPDATE ads_links SET label_resource = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE tenant_id = ? AND customer_id = ?`,
		labelResource, tenantID, customerID,
	)
	if err != nil {
		return fmt.Errorf("set ads link label: %w", err)
	}
	return nil
}

// ListAdsLinks returns every Ads customer linked to a tenant.
func (s *Store) ListAdsLinks(tenantID string) ([]*AdsLink, error) {
	rows, err := s.db.Query(
		`SELECT tenant_id, customer_id, label_resource, created_at, updated_at
		 FROM ads_links WHERE tenant_id = ? ORDER BY created_at`, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list ads links: %w", err)
	}
	defer rows.Close()

	var links []*AdsLink
	for rows.Next() {
		l := &AdsLink{}
		if err := rows.Scan(&l.TenantID, &l.CustomerID, &l.LabelResource, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ads link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
