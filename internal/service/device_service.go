package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vitalgate/internal/domain"
	"vitalgate/internal/repository"
)

// RegisterResult 注册结果。AlreadyExists=true 表示设备此前已注册，
// 返回的是既有的 API key。
type RegisterResult struct {
	DeviceID      string
	APIKey        string
	AlreadyExists bool
}

// DeviceService 设备注册，按设备ID幂等
type DeviceService struct {
	patients repository.PatientsRepo
	devices  repository.DevicesRepo
	logger   *zap.Logger
}

// NewDeviceService 创建设备服务
func NewDeviceService(patients repository.PatientsRepo, devices repository.DevicesRepo, logger *zap.Logger) *DeviceService {
	return &DeviceService{
		patients: patients,
		devices:  devices,
		logger:   logger,
	}
}

// Register 注册设备并签发 API key。
//
// 患者不存在时自动创建占位记录，注册永远不会因患者未知而失败。
// 设备已存在时返回既有 key（200 语义）；并发注册同一新设备ID时，
// 由数据库唯一约束仲裁，输掉的一方改读胜者的记录。
func (s *DeviceService) Register(ctx context.Context, in *RegisterInput) (*RegisterResult, error) {
	if verr := validateRegister(in); verr != nil {
		return nil, verr
	}

	if err := s.patients.EnsureExists(ctx, in.PatientID, "Patient "+in.PatientID); err != nil {
		return nil, err
	}

	existing, err := s.devices.GetByID(ctx, in.DeviceID)
	if err == nil {
		return &RegisterResult{
			DeviceID:      existing.DeviceID,
			APIKey:        existing.APIKey,
			AlreadyExists: true,
		}, nil
	}
	if err != repository.ErrDeviceNotFound {
		return nil, err
	}

	device := &domain.Device{
		DeviceID:     in.DeviceID,
		DeviceType:   in.Type,
		PatientID:    in.PatientID,
		RegisteredAt: time.Now().UTC(),
		Status:       domain.DeviceStatusActive,
		APIKey:       newID("key"),
	}

	err = s.devices.Insert(ctx, device)
	if err == repository.ErrDeviceExists {
		// 并发注册输给了另一个请求，读取胜者已提交的记录
		winner, gerr := s.devices.GetByID(ctx, in.DeviceID)
		if gerr != nil {
			return nil, fmt.Errorf("failed to re-read device after conflict: %w", gerr)
		}
		return &RegisterResult{
			DeviceID:      winner.DeviceID,
			APIKey:        winner.APIKey,
			AlreadyExists: true,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("device registered",
		zap.String("device_id", device.DeviceID),
		zap.String("device_type", device.DeviceType),
		zap.String("patient_id", device.PatientID))

	return &RegisterResult{DeviceID: device.DeviceID, APIKey: device.APIKey}, nil
}
