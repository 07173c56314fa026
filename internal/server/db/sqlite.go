package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database connection.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	// Enable foreign key enforcement (off by default in SQLite)
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			tenant_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			ga_account TEXT NOT NULL DEFAULT '',
			ga_property TEXT NOT NULL DEFAULT '',
			ga_data_stream TEXT NOT NULL DEFAULT '',
			ga_measurement_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			user_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			scope TEXT NOT NULL,
			access_encrypted BLOB NOT NULL,
			refresh_encrypted BLOB,
			expiry DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, tenant_id, provider, scope),
			FOREIGN KEY (tenant_id) REFERENCES tenants(tenant_id)
		)`,
		`CREATE TABLE IF NOT EXISTS ads_links (
			tenant_id TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			label_resource TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tenant_id, customer_id),
			FOREIGN KEY (tenant_id) REFERENCES tenants(tenant_id)
		)`,
		`CREATE TABLE IF NOT EXISTS trackings (
			tracking_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			event_name TEXT NOT NULL,
			page_path TEXT NOT NULL DEFAULT '',
			server_container INTEGER NOT NULL DEFAULT 0,
			gtm_account TEXT NOT NULL,
			gtm_container TEXT NOT NULL,
			ads_customer_id TEXT NOT NULL DEFAULT '',
			workspace_id TEXT NOT NULL DEFAULT '',
			variable_ids TEXT NOT NULL DEFAULT '',
			trigger_id TEXT NOT NULL DEFAULT '',
			tag_ids TEXT NOT NULL DEFAULT '',
			client_id TEXT NOT NULL DEFAULT '',
			version_id TEXT NOT NULL DEFAULT '',
			conversion_action TEXT NOT NULL DEFAULT '',
			conversion_label TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			last_error TEXT NOT NULL DEFAULT '',
			created_entities INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (tenant_id) REFERENCES tenants(tenant_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}
