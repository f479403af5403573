package service

import (
	"context"
	"database/sql"

	"vitalgate/internal/domain"
	"vitalgate/internal/repository"
)

type fakePatientsRepo struct {
	ensured map[string]string
}

func newFakePatientsRepo() *fakePatientsRepo {
	return &fakePatientsRepo{ensured: map[string]string{}}
}

func (f *fakePatientsRepo) EnsureExists(ctx context.Context, patientID, patientName string) error {
	if _, ok := f.ensured[patientID]; !ok {
		f.ensured[patientID] = patientName
	}
	return nil
}

type fakeDevicesRepo struct {
	devices map[string]*domain.Device
	keys    map[string]bool
	// raceWinner 非空时模拟并发注册：Insert 返回冲突并落下胜者的记录
	raceWinner *fakeRaceWinner
	inserted   int
}

type fakeRaceWinner struct {
	device *domain.Device
}

func newFakeDevicesRepo() *fakeDevicesRepo {
	return &fakeDevicesRepo{
		devices: map[string]*domain.Device{},
		keys:    map[string]bool{},
	}
}

func (f *fakeDevicesRepo) GetByID(ctx context.Context, deviceID string) (*domain.Device, error) {
	if d, ok := f.devices[deviceID]; ok {
		return d, nil
	}
	return nil, repository.ErrDeviceNotFound
}

func (f *fakeDevicesRepo) KeyExists(ctx context.Context, apiKey string) (bool, error) {
	return f.keys[apiKey], nil
}

func (f *fakeDevicesRepo) Insert(ctx context.Context, device *domain.Device) error {
	if f.raceWinner != nil {
		f.devices[f.raceWinner.device.DeviceID] = f.raceWinner.device
		return repository.ErrDeviceExists
	}
	if _, ok := f.devices[device.DeviceID]; ok {
		return repository.ErrDeviceExists
	}
	f.devices[device.DeviceID] = device
	f.keys[device.APIKey] = true
	f.inserted++
	return nil
}

type fakeVitalsRepo struct {
	stored []*domain.Vital
	latest *domain.Vital

	historyItems []*domain.Vital
	historyTotal int

	gotPage    int
	gotSize    int
	gotFilters *repository.VitalFilters
}

func (f *fakeVitalsRepo) Insert(ctx context.Context, v *domain.Vital) error {
	f.stored = append(f.stored, v)
	return nil
}

func (f *fakeVitalsRepo) InsertTx(ctx context.Context, tx *sql.Tx, v *domain.Vital) error {
	f.stored = append(f.stored, v)
	return nil
}

func (f *fakeVitalsRepo) Latest(ctx context.Context, patientID string) (*domain.Vital, error) {
	if f.latest == nil {
		return nil, repository.ErrNoReadings
	}
	return f.latest, nil
}

func (f *fakeVitalsRepo) History(ctx context.Context, patientID string, filters *repository.VitalFilters, page, pageSize int) ([]*domain.Vital, int, error) {
	f.gotPage = page
	f.gotSize = pageSize
	f.gotFilters = filters
	return f.historyItems, f.historyTotal, nil
}

type fakeIdempotencyRepo struct {
	seen map[string]bool
}

func newFakeIdempotencyRepo() *fakeIdempotencyRepo {
	return &fakeIdempotencyRepo{seen: map[string]bool{}}
}

func (f *fakeIdempotencyRepo) CheckAndRecord(ctx context.Context, tx *sql.Tx, deviceID, token string) (bool, error) {
	if token == "" {
		return true, nil
	}
	combined := deviceID + ":" + token
	if f.seen[combined] {
		return false, nil
	}
	f.seen[combined] = true
	return true, nil
}
