package domain

import "time"

// Vital 单次生命体征观测（对应 vitals 表）
// Immutable once stored; created only through successful ingestion.
// patient_id / device_id carry no FK: master-key ingestion may reference
// ids the registry has never seen.
type Vital struct {
	VitalID     string    `db:"vital_id"`     // TEXT, PK ("v_" + 12 hex)
	PatientID   string    `db:"patient_id"`   // TEXT, NOT NULL
	RecordedAt  time.Time `db:"recorded_at"`  // TIMESTAMPTZ, NOT NULL (caller-supplied)
	HeartRate   *int      `db:"heart_rate"`   // INTEGER, nullable
	BPSystolic  *int      `db:"bp_systolic"`  // INTEGER, nullable, paired with diastolic
	BPDiastolic *int      `db:"bp_diastolic"` // INTEGER, nullable, paired with systolic
	SpO2        *int      `db:"spo2"`         // INTEGER, nullable
	Temp        *float64  `db:"temp"`         // DOUBLE PRECISION, nullable
	DeviceID    string    `db:"device_id"`    // TEXT, NOT NULL
}

// IdempotencyKey 幂等记录（对应 idempotency_keys 表）
// idem_key 保存 "deviceID:token" 组合键；存在即代表该次 ingestion 已完成。
// Never updated, never deleted (no TTL).
type IdempotencyKey struct {
	ID        int64     `db:"id"`         // BIGSERIAL, PK
	DeviceID  string    `db:"device_id"`  // TEXT, NOT NULL
	Key       string    `db:"idem_key"`   // TEXT, NOT NULL, UNIQUE
	CreatedAt time.Time `db:"created_at"` // TIMESTAMPTZ, NOT NULL
}
