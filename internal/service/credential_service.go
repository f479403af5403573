package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"vitalgate/internal/repository"
)

// CredentialService 设备写入凭证校验。
// 主密钥在启动时注入一次，按精确匹配比较，不做任何进程级全局状态。
type CredentialService struct {
	devices   repository.DevicesRepo
	masterKey string
	logger    *zap.Logger
}

// NewCredentialService 创建凭证服务
func NewCredentialService(devices repository.DevicesRepo, masterKey string, logger *zap.Logger) *CredentialService {
	return &CredentialService{
		devices:   devices,
		masterKey: masterKey,
		logger:    logger,
	}
}

// Authorize 校验写入凭证：主密钥，或任一已注册设备的 API key。
// 缺失返回 ErrMissingAPIKey，无效返回 ErrInvalidAPIKey。
func (s *CredentialService) Authorize(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return ErrMissingAPIKey
	}

	if apiKey == s.masterKey {
		return nil
	}

	exists, err := s.devices.KeyExists(ctx, apiKey)
	if err != nil {
		return fmt.Errorf("failed to verify api key: %w", err)
	}
	if !exists {
		s.logger.Debug("rejected unknown api key")
		return ErrInvalidAPIKey
	}
	return nil
}
