package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"vitalgate/internal/domain"
)

// 仓库层错误（服务层据此映射 HTTP 状态码）
var (
	// ErrDeviceNotFound 设备不存在
	ErrDeviceNotFound = errors.New("device not found")
	// ErrDeviceExists 设备ID已被注册（唯一约束冲突）
	ErrDeviceExists = errors.New("device already exists")
	// ErrNoReadings 患者没有任何生命体征记录
	ErrNoReadings = errors.New("no readings for patient")
)

// PatientsRepo 患者仓库接口
type PatientsRepo interface {
	// EnsureExists 确保患者存在（不存在则创建，已存在则不做任何修改）
	EnsureExists(ctx context.Context, patientID, patientName string) error
}

// DevicesRepo 设备仓库接口
type DevicesRepo interface {
	// GetByID 按设备ID查询，不存在返回 ErrDeviceNotFound
	GetByID(ctx context.Context, deviceID string) (*domain.Device, error)
	// KeyExists 检查 API key 是否属于某个已注册设备
	KeyExists(ctx context.Context, apiKey string) (bool, error)
	// Insert 插入新设备，设备ID冲突返回 ErrDeviceExists
	Insert(ctx context.Context, device *domain.Device) error
}

// IdempotencyRepo 幂等键台账接口
//
// 并发仲裁完全依赖数据库唯一约束：同一 (device, token) 组合键
// 只有第一个插入成功的调用方得到 isNew=true，其余得到 false。
type IdempotencyRepo interface {
	// CheckAndRecord 在给定事务内登记组合键 deviceID:token。
	// 返回 isNew=false 表示该键已被登记过（包括被并发事务抢先提交）。
	// token 为空时不落库，直接返回 isNew=true。
	CheckAndRecord(ctx context.Context, tx *sql.Tx, deviceID, token string) (bool, error)
}

// VitalFilters 生命体征历史查询的时间范围过滤（闭区间）
type VitalFilters struct {
	From *time.Time
	To   *time.Time
}

// VitalsRepo 生命体征仓库接口
type VitalsRepo interface {
	// Insert 插入一条记录（无幂等键路径，自动提交）
	Insert(ctx context.Context, v *domain.Vital) error
	// InsertTx 在给定事务内插入一条记录（与幂等键登记同事务提交）
	InsertTx(ctx context.Context, tx *sql.Tx, v *domain.Vital) error
	// Latest 患者最新一条记录，没有记录返回 ErrNoReadings
	Latest(ctx context.Context, patientID string) (*domain.Vital, error)
	// History 按时间倒序分页查询，返回当页记录和过滤后的总条数
	History(ctx context.Context, patientID string, filters *VitalFilters, page, pageSize int) ([]*domain.Vital, int, error)
}
