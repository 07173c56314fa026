package db

import (
	"database/sql"
	"fmt"
)

// CreateTracking inserts a new tracking definition in the pending state.
func (s *Store) CreateTracking(t *Tracking) error {
	_, err := s.db.Exec(
		`INSERT INTO trackings (tracking_id, tenant_id, name, event_name, page_path, server_container, gtm_account, gtm_container, ads_customer_id, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TrackingID, t.TenantID, t.Name, t.EventName, t.PagePath, t.ServerContainer,
		t.GTMAccount, t.GTMContainer, t.AdsCustomerID, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("create tracking: %w", err)
	}
	return nil
}

func scanTracking(scan func(dest ...any) error) (*Tracking, error) {
	t := &Tracking{}
	var variableIDs, tagIDs string
	err := scan(&t.TrackingID, &t.TenantID, &t.Name, &t.EventName, &t.PagePath, &t.ServerContainer,
		&t.GTMAccount, &t.GTMContainer, &t.AdsCustomerID,
		&t.WorkspaceID, &variableIDs, &t.TriggerID, &tagIDs, &t.ClientID, &t.VersionID,
		&t.ConversionRes, &t.ConversionLabel,
		&t.Status, &t.LastError, &t.CreatedEntities, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.VariableIDs = splitIDs(variableIDs)
	t.TagIDs = splitIDs(tagIDs)
	return t, nil
}

const trackingColumns = `tracking_id, tenant_id, name, event_name, page_path, server_container,
	gtm_account, gtm_container, ads_customer_id,
	workspace_id, variable_ids, trigger_id, tag_ids, client_id, version_id,
	conversion_action, conversion_label,
	status, last_error, created_entities, created_at, updated_at`

// GetTracking retrieves a tracking definition by id, or nil.
func (s *Store) GetTracking(trackingID string) (*Tracking, error) {
	row := s.db.QueryRow(`SELECT `+trackingColumns+` FROM trackings WHERE tracking_id = ?`, trackingID)
	t, err := scanTracking(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tracking: %w", err)
	}
	return t, nil
}

// ListTrackings returns all tracking definitions for a tenant.
func (s *Store) ListTrackings(tenantID string) ([]*Tracking, error) {
	rows, err := s.db.Query(`SELECT `+trackingColumns+` FROM trackings WHERE tenant_id = ? ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list trackings: %w", err)
	}
	defer rows.Close()

	var trackings []*Tracking
	for rows.Next() {
		t, err := scanTracking(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan tracking: %w", err)
		}
		trackings = append(trackings, t)
	}
	return trackings, rows.Err()
}

// UpdateTrackingArtifacts persists the remote artifact ids and provisioning
// state after each build step, so a failed run can resume instead of
// recreating entities.
func (s *Store) UpdateTrackingArtifacts(t *Tracking) error {
	_, err := s.db.Exec(
		`UPDATE trackings SET
		   workspace_id = ?, variable_ids = ?, trigger_id = ?, tag_ids = ?, client_id = ?, version_id = ?,
		   status = ?, last_error = ?, created_entities = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE tracking_id = ?`,
		t.WorkspaceID, joinIDs(t.VariableIDs), t.TriggerID, joinIDs(t.TagIDs), t.ClientID, t.VersionID,
		t.Status, t.LastError, t.CreatedEntities, t.TrackingID,
	)
	if err != nil {
		return fmt.Errorf("update tracking artifacts: %w", err)
	}
	return nil
}

// SetTrackingConversion records the conversion action and label resolved for
// a tracking definition.
func (s *Store) SetTrackingConversion(trackingID, conversionRes, label, status string) error {
	_, err := s.db.Exec(
		`UPDATE trackings SET conversion_action = ?, conversion_label = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE tracking_id = ?`,
		conversionRes, label, status, trackingID,
	)
	if err != nil {
		return fmt.Errorf("set tracking conversion: %w", err)
	}
	return nil
}

// DeleteTracking removes a tracking definition row. Remote artifact teardown
// happens before this is called.
func (s *Store) DeleteTracking(trackingID string) error {
	if _, err := s.db.Exec(`DELETE FROM trackings WHERE tracking_id = ?`, trackingID); err != nil {
		return fmt.Errorf("delete tracking: %w", err)
	}
	return nil
}
