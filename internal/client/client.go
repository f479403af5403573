package client

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// APIError 服务端返回的错误响应
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s (http %d): %s", e.Code, e.StatusCode, e.Message)
}

// RegisterDeviceInput 设备注册请求
type RegisterDeviceInput struct {
	DeviceID  string `json:"device_id"`
	Type      string `json:"type"`
	PatientID string `json:"patient_id"`
}

// RegisterDeviceResult 设备注册响应
type RegisterDeviceResult struct {
	DeviceID string `json:"device_id"`
	APIKey   string `json:"api_key"`
	Status   string `json:"status"`
}

// BP 血压读数
type BP struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
}

// VitalInput 生命体征上报请求
type VitalInput struct {
	Timestamp string   `json:"timestamp"`
	DeviceID  string   `json:"device_id"`
	HeartRate *int     `json:"heart_rate,omitempty"`
	BP        *BP      `json:"bp,omitempty"`
	SpO2      *int     `json:"spo2,omitempty"`
	Temp      *float64 `json:"temp,omitempty"`
}

// IngestResult 生命体征上报响应。
// 重放已见过的幂等 token 时 Status 为 duplicate_ignored，VitalID 为空。
type IngestResult struct {
	VitalID string `json:"vital_id"`
	Status  string `json:"status"`
}

// Reading 单条生命体征读数
type Reading struct {
	Timestamp string   `json:"timestamp"`
	HeartRate *int     `json:"heart_rate"`
	BP        *BP      `json:"bp"`
	SpO2      *int     `json:"spo2"`
	Temp      *float64 `json:"temp"`
	DeviceID  string   `json:"device_id"`
}

// HistoryOptions 历史查询参数，零值字段不发送
type HistoryOptions struct {
	From     string
	To       string
	Page     int
	PageSize int
}

// HistoryPage 历史查询分页响应
type HistoryPage struct {
	Results  []Reading `json:"results"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Total    int       `json:"total"`
}

// Client 生命体征接入 API 客户端
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// New 创建 API 客户端。apiKey 为主密钥或已注册设备的 key。
func New(baseURL, apiKey string, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("X-API-Key", apiKey)

	return &Client{
		httpClient: httpClient,
		logger:     logger,
	}
}

// SetAPIKey 替换后续请求使用的 API key。
// 注册设备后切换到签发的设备 key 时使用。
func (c *Client) SetAPIKey(apiKey string) {
	c.httpClient.SetHeader("X-API-Key", apiKey)
}

// RegisterDevice 注册设备并领取设备 API key。
// 同一 device_id 重复注册返回已签发的 key，Status 为 already_registered。
func (c *Client) RegisterDevice(in *RegisterDeviceInput) (*RegisterDeviceResult, error) {
	var result RegisterDeviceResult
	apiErr := &APIError{}

	resp, err := c.httpClient.R().
		SetBody(in).
		SetResult(&result).
		SetError(apiErr).
		Post("/api/v1/devices/register")

	if err != nil {
		c.logger.Error("Device registration request failed",
			zap.String("device_id", in.DeviceID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to call register endpoint: %w", err)
	}
	if resp.IsError() {
		return nil, errorFrom(resp, apiErr)
	}

	c.logger.Info("Device registered",
		zap.String("device_id", result.DeviceID),
		zap.String("status", result.Status),
	)
	return &result, nil
}

// IngestVital 上报一条生命体征读数。
// idempotencyKey 非空时通过 Idempotency-Key 请求头传递，重放同一 token 不会重复入库。
func (c *Client) IngestVital(patientID string, in *VitalInput, idempotencyKey string) (*IngestResult, error) {
	var result IngestResult
	apiErr := &APIError{}

	req := c.httpClient.R().
		SetBody(in).
		SetResult(&result).
		SetError(apiErr)
	if idempotencyKey != "" {
		req.SetHeader("Idempotency-Key", idempotencyKey)
	}

	resp, err := req.Post(fmt.Sprintf("/api/v1/patients/%s/vitals", patientID))
	if err != nil {
		c.logger.Error("Vital ingest request failed",
			zap.String("patient_id", patientID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to call ingest endpoint: %w", err)
	}
	if resp.IsError() {
		return nil, errorFrom(resp, apiErr)
	}

	c.logger.Debug("Vital ingested",
		zap.String("patient_id", patientID),
		zap.String("vital_id", result.VitalID),
		zap.String("status", result.Status),
	)
	return &result, nil
}

// Latest 查询患者最新一条读数
func (c *Client) Latest(patientID string) (*Reading, error) {
	var result Reading
	apiErr := &APIError{}

	resp, err := c.httpClient.R().
		SetResult(&result).
		SetError(apiErr).
		Get(fmt.Sprintf("/api/v1/patients/%s/latest", patientID))

	if err != nil {
		return nil, fmt.Errorf("failed to call latest endpoint: %w", err)
	}
	if resp.IsError() {
		return nil, errorFrom(resp, apiErr)
	}
	return &result, nil
}

// History 分页查询患者历史读数
func (c *Client) History(patientID string, opts *HistoryOptions) (*HistoryPage, error) {
	var result HistoryPage
	apiErr := &APIError{}

	req := c.httpClient.R().
		SetResult(&result).
		SetError(apiErr)
	if opts != nil {
		if opts.From != "" {
			req.SetQueryParam("from", opts.From)
		}
		if opts.To != "" {
			req.SetQueryParam("to", opts.To)
		}
		if opts.Page > 0 {
			req.SetQueryParam("page", fmt.Sprintf("%d", opts.Page))
		}
		if opts.PageSize > 0 {
			req.SetQueryParam("page_size", fmt.Sprintf("%d", opts.PageSize))
		}
	}

	resp, err := req.Get(fmt.Sprintf("/api/v1/patients/%s/history", patientID))
	if err != nil {
		return nil, fmt.Errorf("failed to call history endpoint: %w", err)
	}
	if resp.IsError() {
		return nil, errorFrom(resp, apiErr)
	}
	return &result, nil
}

func errorFrom(resp *resty.Response, apiErr *APIError) error {
	apiErr.StatusCode = resp.StatusCode()
	if apiErr.Code == "" {
		apiErr.Code = "unknown_error"
		apiErr.Message = resp.Status()
	}
	return apiErr
}
