package domain

import "time"

// Device statuses.
const (
	DeviceStatusActive = "active"
)

// Device types accepted at registration.
const (
	DeviceTypeHeartRate   = "hr"
	DeviceTypeBloodPress  = "bp"
	DeviceTypeSpO2        = "spo2"
	DeviceTypeTemperature = "temp"
	DeviceTypeMulti       = "multi"
)

var deviceTypes = map[string]struct{}{
	DeviceTypeHeartRate:   {},
	DeviceTypeBloodPress:  {},
	DeviceTypeSpO2:        {},
	DeviceTypeTemperature: {},
	DeviceTypeMulti:       {},
}

// IsValidDeviceType reports whether t is one of the registration enum values.
func IsValidDeviceType(t string) bool {
	_, ok := deviceTypes[t]
	return ok
}

// Device 监测设备（对应 devices 表）
// device_id 由调用方提供且不可变；api_key 全局唯一，重复注册返回已发放的 key。
type Device struct {
	DeviceID     string    `db:"device_id"`     // TEXT, PK (external id)
	DeviceType   string    `db:"device_type"`   // TEXT, NOT NULL ('hr'|'bp'|'spo2'|'temp'|'multi')
	PatientID    string    `db:"patient_id"`    // TEXT, FK → patients
	RegisteredAt time.Time `db:"registered_at"` // TIMESTAMPTZ, NOT NULL
	Status       string    `db:"status"`        // TEXT, NOT NULL, default 'active'
	APIKey       string    `db:"api_key"`       // TEXT, NOT NULL, UNIQUE
}
