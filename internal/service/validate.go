package service

import (
	"fmt"
	"time"

	"vitalgate/internal/domain"
)

// BPInput 血压读数，成对出现
type BPInput struct {
	Systolic  *int `json:"systolic"`
	Diastolic *int `json:"diastolic"`
}

// IngestInput 生命体征上报请求体
type IngestInput struct {
	Timestamp      string   `json:"timestamp"`
	DeviceID       string   `json:"device_id"`
	HeartRate      *int     `json:"heart_rate"`
	BP             *BPInput `json:"bp"`
	SpO2           *int     `json:"spo2"`
	Temp           *float64 `json:"temp"`
	IdempotencyKey string   `json:"idempotency_key"`
}

// RegisterInput 设备注册请求体
type RegisterInput struct {
	DeviceID  string `json:"device_id"`
	Type      string `json:"type"`
	PatientID string `json:"patient_id"`
}

// 时间解析的降级格式：无时区标记按 UTC 处理
var fallbackTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp 解析 ISO-8601 时间，接受字面 'Z' UTC 标记
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range fallbackTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime: %s", s)
}

// validateIngest 校验上报数据并返回解析后的时间戳。
// 血压字段要求成对出现且在范围内（收缩压 0-300，舒张压 0-200）。
func validateIngest(in *IngestInput) (time.Time, *ValidationError) {
	fields := make(map[string]string)

	var ts time.Time
	if in.Timestamp == "" {
		fields["timestamp"] = "required"
	} else {
		t, err := ParseTimestamp(in.Timestamp)
		if err != nil {
			fields["timestamp"] = "not a valid datetime"
		} else {
			ts = t
		}
	}

	if in.DeviceID == "" {
		fields["device_id"] = "required"
	}

	if in.BP != nil {
		if in.BP.Systolic == nil {
			fields["bp.systolic"] = "required"
		} else if *in.BP.Systolic < 0 || *in.BP.Systolic > 300 {
			fields["bp.systolic"] = "must be between 0 and 300"
		}
		if in.BP.Diastolic == nil {
			fields["bp.diastolic"] = "required"
		} else if *in.BP.Diastolic < 0 || *in.BP.Diastolic > 200 {
			fields["bp.diastolic"] = "must be between 0 and 200"
		}
	}

	if len(fields) > 0 {
		return time.Time{}, &ValidationError{Fields: fields}
	}
	return ts, nil
}

func validateRegister(in *RegisterInput) *ValidationError {
	fields := make(map[string]string)

	if in.DeviceID == "" {
		fields["device_id"] = "required"
	}
	if in.Type == "" {
		fields["type"] = "required"
	} else if !domain.IsValidDeviceType(in.Type) {
		fields["type"] = "must be one of: hr, bp, spo2, temp, multi"
	}
	if in.PatientID == "" {
		fields["patient_id"] = "required"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
