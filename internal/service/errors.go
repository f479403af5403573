package service

import (
	"errors"
	"fmt"
)

// 业务错误：HTTP 层和 MQTT 桥据此映射响应码
var (
	// ErrMissingAPIKey 请求没有携带 X-API-Key
	ErrMissingAPIKey = errors.New("missing api key")
	// ErrInvalidAPIKey 凭证既不是主密钥也不是任何设备的 key
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrNoReadings 患者没有任何生命体征记录
	ErrNoReadings = errors.New("no readings for patient")
)

// ValidationError 字段级校验失败，Fields 的键是字段路径（如 bp.systolic）
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %d invalid field(s)", len(e.Fields))
}
