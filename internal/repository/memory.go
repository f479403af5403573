package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"vitalgate/internal/domain"
)

// 内存实现：用于 DB 未就绪时的本地联测（DB_ENABLED=false）。
// 语义与 PostgreSQL 实现一致：唯一性冲突返回相同的错误信号，
// 原子性由互斥锁代替数据库事务提供。

// MemoryPatientsRepo 内存患者仓库
type MemoryPatientsRepo struct {
	mu       sync.RWMutex
	patients map[string]string // patientID -> patientName
}

func NewMemoryPatientsRepo() *MemoryPatientsRepo {
	return &MemoryPatientsRepo{patients: map[string]string{}}
}

var _ PatientsRepo = (*MemoryPatientsRepo)(nil)

func (r *MemoryPatientsRepo) EnsureExists(_ context.Context, patientID, patientName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.patients[patientID]; !ok {
		r.patients[patientID] = patientName
	}
	return nil
}

// MemoryDevicesRepo 内存设备仓库
type MemoryDevicesRepo struct {
	mu      sync.RWMutex
	devices map[string]*domain.Device // deviceID -> device
	keys    map[string]string         // apiKey -> deviceID
}

func NewMemoryDevicesRepo() *MemoryDevicesRepo {
	return &MemoryDevicesRepo{
		devices: map[string]*domain.Device{},
		keys:    map[string]string{},
	}
}

var _ DevicesRepo = (*MemoryDevicesRepo)(nil)

func (r *MemoryDevicesRepo) GetByID(_ context.Context, deviceID string) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	copied := *device
	return &copied, nil
}

func (r *MemoryDevicesRepo) KeyExists(_ context.Context, apiKey string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.keys[apiKey]
	return ok, nil
}

func (r *MemoryDevicesRepo) Insert(_ context.Context, device *domain.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[device.DeviceID]; ok {
		return ErrDeviceExists
	}
	copied := *device
	r.devices[device.DeviceID] = &copied
	r.keys[device.APIKey] = device.DeviceID
	return nil
}

// MemoryVitalsRepo 内存生命体征仓库
type MemoryVitalsRepo struct {
	mu     sync.RWMutex
	vitals map[string][]*domain.Vital // patientID -> vitals
}

func NewMemoryVitalsRepo() *MemoryVitalsRepo {
	return &MemoryVitalsRepo{vitals: map[string][]*domain.Vital{}}
}

var _ VitalsRepo = (*MemoryVitalsRepo)(nil)

func (r *MemoryVitalsRepo) Insert(_ context.Context, v *domain.Vital) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *v
	r.vitals[v.PatientID] = append(r.vitals[v.PatientID], &copied)
	return nil
}

// InsertTx 内存模式没有事务上下文，等同于 Insert
func (r *MemoryVitalsRepo) InsertTx(ctx context.Context, _ *sql.Tx, v *domain.Vital) error {
	return r.Insert(ctx, v)
}

func (r *MemoryVitalsRepo) Latest(_ context.Context, patientID string) (*domain.Vital, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := r.vitals[patientID]
	if len(items) == 0 {
		return nil, ErrNoReadings
	}

	latest := items[0]
	for _, v := range items[1:] {
		if v.RecordedAt.After(latest.RecordedAt) {
			latest = v
		}
	}
	copied := *latest
	return &copied, nil
}

func (r *MemoryVitalsRepo) History(_ context.Context, patientID string, filters *VitalFilters, page, pageSize int) ([]*domain.Vital, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*domain.Vital
	for _, v := range r.vitals[patientID] {
		if filters != nil {
			if filters.From != nil && v.RecordedAt.Before(*filters.From) {
				continue
			}
			if filters.To != nil && v.RecordedAt.After(*filters.To) {
				continue
			}
		}
		matched = append(matched, v)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].RecordedAt.After(matched[j].RecordedAt)
	})

	total := len(matched)

	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	results := make([]*domain.Vital, 0, end-start)
	for _, v := range matched[start:end] {
		copied := *v
		results = append(results, &copied)
	}
	return results, total, nil
}

// MemoryIdempotencyRepo 内存幂等键台账
type MemoryIdempotencyRepo struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewMemoryIdempotencyRepo() *MemoryIdempotencyRepo {
	return &MemoryIdempotencyRepo{seen: map[string]bool{}}
}

var _ IdempotencyRepo = (*MemoryIdempotencyRepo)(nil)

// CheckAndRecord 内存模式忽略事务参数，互斥锁保证检查和登记的原子性
func (r *MemoryIdempotencyRepo) CheckAndRecord(_ context.Context, _ *sql.Tx, deviceID, token string) (bool, error) {
	if token == "" {
		return true, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	combined := deviceID + ":" + token
	if r.seen[combined] {
		return false, nil
	}
	r.seen[combined] = true
	return true, nil
}
