package database

import (
	"database/sql"
	"fmt"
)

// Schema bootstrap for the four ingestion tables.
//
// vitals and idempotency_keys deliberately carry no foreign keys: ingestion
// authorized by the master key may reference device/patient ids the registry
// has never seen, and must not fail on them. Uniqueness constraints
// (devices.device_id, devices.api_key, idempotency_keys.idem_key) are the
// concurrency arbiters — see the repositories' 23505 handling.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS patients (
		patient_id         TEXT PRIMARY KEY,
		patient_name       TEXT NOT NULL,
		dob                TEXT,
		assigned_doctor_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS devices (
		device_id     TEXT PRIMARY KEY,
		device_type   TEXT NOT NULL,
		patient_id    TEXT REFERENCES patients(patient_id),
		registered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		status        TEXT NOT NULL DEFAULT 'active',
		api_key       TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS vitals (
		vital_id     TEXT PRIMARY KEY,
		patient_id   TEXT NOT NULL,
		recorded_at  TIMESTAMPTZ NOT NULL,
		heart_rate   INTEGER,
		bp_systolic  INTEGER,
		bp_diastolic INTEGER,
		spo2         INTEGER,
		temp         DOUBLE PRECISION,
		device_id    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vitals_patient_id ON vitals (patient_id)`,
	`CREATE INDEX IF NOT EXISTS idx_vitals_recorded_at ON vitals (recorded_at)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		id         BIGSERIAL PRIMARY KEY,
		device_id  TEXT NOT NULL,
		idem_key   TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_idempotency_keys_device_id ON idempotency_keys (device_id)`,
}

// InitSchema applies the DDL above. Every statement is idempotent, so
// running it on each startup is safe; gate with DB_INIT when the schema is
// managed externally.
func InitSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
