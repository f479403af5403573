package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"vitalgate/internal/service"
)

// DeviceHandler 设备注册接口
type DeviceHandler struct {
	credentials *service.CredentialService
	devices     *service.DeviceService
	logger      *zap.Logger
}

// NewDeviceHandler 创建设备处理器
func NewDeviceHandler(credentials *service.CredentialService, devices *service.DeviceService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		credentials: credentials,
		devices:     devices,
		logger:      logger,
	}
}

// RegisterResponse 注册响应
type RegisterResponse struct {
	DeviceID string `json:"device_id"`
	APIKey   string `json:"api_key"`
	Status   string `json:"status"`
}

// Register POST /api/v1/devices/register
//
// 注册按设备ID幂等：已注册的设备拿回既有 key（200），
// 新设备签发新 key（201）。
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, h.credentials, h.logger) {
		return
	}

	var in service.RegisterInput
	if !decodeBody(w, r, &in) {
		return
	}

	result, err := h.devices.Register(r.Context(), &in)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	status := http.StatusCreated
	state := "registered"
	if result.AlreadyExists {
		status = http.StatusOK
		state = "already_registered"
	}

	writeJSON(w, status, RegisterResponse{
		DeviceID: result.DeviceID,
		APIKey:   result.APIKey,
		Status:   state,
	})
}
