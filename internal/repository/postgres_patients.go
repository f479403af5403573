package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresPatientsRepo PostgreSQL 患者仓库实现
type PostgresPatientsRepo struct {
	db *sql.DB
}

// NewPostgresPatientsRepo 创建患者仓库
func NewPostgresPatientsRepo(db *sql.DB) *PostgresPatientsRepo {
	return &PostgresPatientsRepo{db: db}
}

// 确保实现了接口
var _ PatientsRepo = (*PostgresPatientsRepo)(nil)

// EnsureExists 确保患者存在。ON CONFLICT DO NOTHING 保证并发创建安全，
// 已存在的患者不会被覆盖。
func (r *PostgresPatientsRepo) EnsureExists(ctx context.Context, patientID, patientName string) error {
	query := `
		INSERT INTO patients (patient_id, patient_name)
		VALUES ($1, $2)
		ON CONFLICT (patient_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query, patientID, patientName)
	if err != nil {
		return fmt.Errorf("failed to ensure patient %s: %w", patientID, err)
	}
	return nil
}
