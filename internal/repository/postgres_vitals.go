package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"vitalgate/internal/domain"
)

// PostgresVitalsRepo PostgreSQL 生命体征仓库实现
type PostgresVitalsRepo struct {
	db *sql.DB
}

// NewPostgresVitalsRepo 创建生命体征仓库
func NewPostgresVitalsRepo(db *sql.DB) *PostgresVitalsRepo {
	return &PostgresVitalsRepo{db: db}
}

// 确保实现了接口
var _ VitalsRepo = (*PostgresVitalsRepo)(nil)

const vitalColumns = `vital_id, patient_id, recorded_at, heart_rate, bp_systolic, bp_diastolic, spo2, temp, device_id`

const insertVitalQuery = `
	INSERT INTO vitals (vital_id, patient_id, recorded_at, heart_rate, bp_systolic, bp_diastolic, spo2, temp, device_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

// Insert 插入一条生命体征记录（自动提交）
func (r *PostgresVitalsRepo) Insert(ctx context.Context, v *domain.Vital) error {
	_, err := r.db.ExecContext(ctx, insertVitalQuery, vitalArgs(v)...)
	if err != nil {
		return fmt.Errorf("failed to insert vital %s: %w", v.VitalID, err)
	}
	return nil
}

// InsertTx 在给定事务内插入一条生命体征记录，
// 与幂等键登记同事务提交，保证"登记了就一定存了"。
func (r *PostgresVitalsRepo) InsertTx(ctx context.Context, tx *sql.Tx, v *domain.Vital) error {
	_, err := tx.ExecContext(ctx, insertVitalQuery, vitalArgs(v)...)
	if err != nil {
		return fmt.Errorf("failed to insert vital %s: %w", v.VitalID, err)
	}
	return nil
}

// Latest 患者最新一条记录
func (r *PostgresVitalsRepo) Latest(ctx context.Context, patientID string) (*domain.Vital, error) {
	query := `
		SELECT ` + vitalColumns + `
		FROM vitals
		WHERE patient_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1
	`

	v, err := scanVital(r.db.QueryRowContext(ctx, query, patientID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoReadings
		}
		return nil, fmt.Errorf("failed to get latest vital for patient %s: %w", patientID, err)
	}
	return v, nil
}

// History 按时间倒序分页查询患者历史记录。
// total 是过滤条件下的总条数，与分页参数无关。
func (r *PostgresVitalsRepo) History(ctx context.Context, patientID string, filters *VitalFilters, page, pageSize int) ([]*domain.Vital, int, error) {
	where := []string{"patient_id = $1"}
	args := []interface{}{patientID}
	argN := 2

	if filters != nil {
		if filters.From != nil {
			where = append(where, fmt.Sprintf("recorded_at >= $%d", argN))
			args = append(args, *filters.From)
			argN++
		}
		if filters.To != nil {
			where = append(where, fmt.Sprintf("recorded_at <= $%d", argN))
			args = append(args, *filters.To)
			argN++
		}
	}
	whereClause := strings.Join(where, " AND ")

	// 先查总数
	countQuery := `SELECT COUNT(*) FROM vitals WHERE ` + whereClause
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count vitals for patient %s: %w", patientID, err)
	}

	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	query := `
		SELECT ` + vitalColumns + `
		FROM vitals
		WHERE ` + whereClause + `
		ORDER BY recorded_at DESC
		LIMIT $` + fmt.Sprintf("%d", argN) + ` OFFSET $` + fmt.Sprintf("%d", argN+1)
	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query vitals for patient %s: %w", patientID, err)
	}
	defer rows.Close()

	var results []*domain.Vital
	for rows.Next() {
		v, err := scanVital(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan vital: %w", err)
		}
		results = append(results, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate vitals: %w", err)
	}

	return results, total, nil
}

// rowScanner 兼容 *sql.Row 和 *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVital(row rowScanner) (*domain.Vital, error) {
	var v domain.Vital
	var heartRate, bpSystolic, bpDiastolic, spo2 sql.NullInt64
	var temp sql.NullFloat64

	err := row.Scan(
		&v.VitalID,
		&v.PatientID,
		&v.RecordedAt,
		&heartRate,
		&bpSystolic,
		&bpDiastolic,
		&spo2,
		&temp,
		&v.DeviceID,
	)
	if err != nil {
		return nil, err
	}

	if heartRate.Valid {
		hr := int(heartRate.Int64)
		v.HeartRate = &hr
	}
	if bpSystolic.Valid {
		sys := int(bpSystolic.Int64)
		v.BPSystolic = &sys
	}
	if bpDiastolic.Valid {
		dia := int(bpDiastolic.Int64)
		v.BPDiastolic = &dia
	}
	if spo2.Valid {
		s := int(spo2.Int64)
		v.SpO2 = &s
	}
	if temp.Valid {
		t := temp.Float64
		v.Temp = &t
	}

	return &v, nil
}

func vitalArgs(v *domain.Vital) []interface{} {
	return []interface{}{
		v.VitalID,
		v.PatientID,
		v.RecordedAt,
		v.HeartRate,
		v.BPSystolic,
		v.BPDiastolic,
		v.SpO2,
		v.Temp,
		v.DeviceID,
	}
}
