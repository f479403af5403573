package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vitalgate/internal/domain"
	"vitalgate/internal/repository"
)

// IngestResult 上报结果。Duplicate=true 表示幂等键已见过，
// 没有写入新记录（调用方应返回成功态而不是错误）。
type IngestResult struct {
	VitalID   string
	Duplicate bool
}

// HistoryQuery 历史查询参数
type HistoryQuery struct {
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// HistoryPage 一页历史记录，Total 是过滤后的总条数（与分页无关）
type HistoryPage struct {
	Items    []*domain.Vital
	Page     int
	PageSize int
	Total    int
}

// EventPublisher 记录落库后的事件发布，nil 表示未启用
type EventPublisher interface {
	PublishVitalStored(ctx context.Context, v *domain.Vital) error
}

// VitalService 生命体征摄入与查询
type VitalService struct {
	db          *sql.DB
	vitals      repository.VitalsRepo
	idempotency repository.IdempotencyRepo
	events      EventPublisher
	logger      *zap.Logger
}

// NewVitalService 创建生命体征服务
func NewVitalService(db *sql.DB, vitals repository.VitalsRepo, idempotency repository.IdempotencyRepo, logger *zap.Logger) *VitalService {
	return &VitalService{
		db:          db,
		vitals:      vitals,
		idempotency: idempotency,
		logger:      logger,
	}
}

// SetEventPublisher 启用落库事件发布
func (s *VitalService) SetEventPublisher(p EventPublisher) {
	s.events = p
}

// Ingest 摄入一条生命体征记录。
//
// headerToken 优先于请求体内嵌的 idempotency_key。携带幂等键时，
// 台账登记和记录写入在同一事务内提交；重复键短路返回 Duplicate=true，
// 不产生任何写入。
func (s *VitalService) Ingest(ctx context.Context, patientID string, in *IngestInput, headerToken string) (*IngestResult, error) {
	ts, verr := validateIngest(in)
	if verr != nil {
		return nil, verr
	}

	token := headerToken
	if token == "" {
		token = in.IdempotencyKey
	}

	v := &domain.Vital{
		VitalID:    newID("v"),
		PatientID:  patientID,
		RecordedAt: ts,
		HeartRate:  in.HeartRate,
		SpO2:       in.SpO2,
		Temp:       in.Temp,
		DeviceID:   in.DeviceID,
	}
	if in.BP != nil {
		v.BPSystolic = in.BP.Systolic
		v.BPDiastolic = in.BP.Diastolic
	}

	if token == "" {
		// 无幂等键：每次上报都视为新记录
		if err := s.vitals.Insert(ctx, v); err != nil {
			return nil, err
		}
	} else {
		stored, err := s.ingestWithToken(ctx, v, in.DeviceID, token)
		if err != nil {
			return nil, err
		}
		if !stored {
			s.logger.Info("duplicate ingestion ignored",
				zap.String("device_id", in.DeviceID),
				zap.String("idempotency_key", token))
			return &IngestResult{Duplicate: true}, nil
		}
	}

	s.logger.Info("vital stored",
		zap.String("vital_id", v.VitalID),
		zap.String("patient_id", patientID),
		zap.String("device_id", in.DeviceID))

	if s.events != nil {
		if err := s.events.PublishVitalStored(ctx, v); err != nil {
			s.logger.Warn("failed to publish vital event",
				zap.String("vital_id", v.VitalID),
				zap.Error(err))
		}
	}

	return &IngestResult{VitalID: v.VitalID}, nil
}

// ingestWithToken 幂等键登记与记录写入同事务提交，
// 避免"登记成功但记录丢失"的窗口。
// 内存模式（db 为 nil）没有事务，仓库用互斥锁提供同等原子性。
func (s *VitalService) ingestWithToken(ctx context.Context, v *domain.Vital, deviceID, token string) (bool, error) {
	if s.db == nil {
		isNew, err := s.idempotency.CheckAndRecord(ctx, nil, deviceID, token)
		if err != nil {
			return false, err
		}
		if !isNew {
			return false, nil
		}
		return true, s.vitals.Insert(ctx, v)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin ingest transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	isNew, err := s.idempotency.CheckAndRecord(ctx, tx, deviceID, token)
	if err != nil {
		return false, err
	}
	if !isNew {
		return false, nil
	}

	if err := s.vitals.InsertTx(ctx, tx, v); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit ingest transaction: %w", err)
	}
	return true, nil
}

// Latest 患者最新一条记录，没有记录返回 ErrNoReadings
func (s *VitalService) Latest(ctx context.Context, patientID string) (*domain.Vital, error) {
	v, err := s.vitals.Latest(ctx, patientID)
	if err != nil {
		if err == repository.ErrNoReadings {
			return nil, ErrNoReadings
		}
		return nil, err
	}
	return v, nil
}

// 导出一次最多带出的记录条数
const exportRowCap = 10000

// Export 导出历史记录（按时间倒序，最多 exportRowCap 条）
func (s *VitalService) Export(ctx context.Context, patientID string, from, to *time.Time) ([]*domain.Vital, error) {
	filters := &repository.VitalFilters{From: from, To: to}
	items, _, err := s.vitals.History(ctx, patientID, filters, 1, exportRowCap)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// History 分页查询历史记录，时间过滤为闭区间，按时间倒序。
// page 低于 1 落到第 1 页，page_size 钳制到 [1, 500]；
// 缺省的 page_size=100 由调用方（HTTP 层）填充。
func (s *VitalService) History(ctx context.Context, patientID string, q *HistoryQuery) (*HistoryPage, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size < 1 {
		size = 1
	}
	if size > 500 {
		size = 500
	}

	filters := &repository.VitalFilters{From: q.From, To: q.To}
	items, total, err := s.vitals.History(ctx, patientID, filters, page, size)
	if err != nil {
		return nil, err
	}

	return &HistoryPage{Items: items, Page: page, PageSize: size, Total: total}, nil
}
