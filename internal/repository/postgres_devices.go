package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"vitalgate/internal/domain"
)

// PostgresDevicesRepo PostgreSQL 设备仓库实现
type PostgresDevicesRepo struct {
	db *sql.DB
}

// NewPostgresDevicesRepo 创建设备仓库
func NewPostgresDevicesRepo(db *sql.DB) *PostgresDevicesRepo {
	return &PostgresDevicesRepo{db: db}
}

// 确保实现了接口
var _ DevicesRepo = (*PostgresDevicesRepo)(nil)

// GetByID 按设备ID查询设备
func (r *PostgresDevicesRepo) GetByID(ctx context.Context, deviceID string) (*domain.Device, error) {
	query := `
		SELECT device_id, device_type, COALESCE(patient_id, ''), registered_at, status, api_key
		FROM devices
		WHERE device_id = $1
	`

	var device domain.Device
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&device.DeviceID,
		&device.DeviceType,
		&device.PatientID,
		&device.RegisteredAt,
		&device.Status,
		&device.APIKey,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}

	return &device, nil
}

// KeyExists 检查 API key 是否属于某个已注册设备
func (r *PostgresDevicesRepo) KeyExists(ctx context.Context, apiKey string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM devices WHERE api_key = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, apiKey).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check api key: %w", err)
	}
	return exists, nil
}

// Insert 插入新设备。设备ID唯一约束冲突时返回 ErrDeviceExists，
// 调用方据此（而不是进程内锁）仲裁并发注册。
func (r *PostgresDevicesRepo) Insert(ctx context.Context, device *domain.Device) error {
	query := `
		INSERT INTO devices (device_id, device_type, patient_id, registered_at, status, api_key)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		device.DeviceID,
		device.DeviceType,
		device.PatientID,
		device.RegisteredAt,
		device.Status,
		device.APIKey,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDeviceExists
		}
		return fmt.Errorf("failed to insert device %s: %w", device.DeviceID, err)
	}
	return nil
}
