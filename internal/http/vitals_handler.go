package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"vitalgate/internal/domain"
	"vitalgate/internal/service"
)

// VitalsHandler 生命体征摄入与查询接口
type VitalsHandler struct {
	credentials *service.CredentialService
	vitals      *service.VitalService
	logger      *zap.Logger
}

// NewVitalsHandler 创建生命体征处理器
func NewVitalsHandler(credentials *service.CredentialService, vitals *service.VitalService, logger *zap.Logger) *VitalsHandler {
	return &VitalsHandler{
		credentials: credentials,
		vitals:      vitals,
		logger:      logger,
	}
}

// BPReading 血压读数
type BPReading struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
}

// VitalReading 对外序列化的一条生命体征记录。
// 缺失的测量值序列化为显式 null，不省略。
type VitalReading struct {
	Timestamp string     `json:"timestamp"`
	HeartRate *int       `json:"heart_rate"`
	BP        *BPReading `json:"bp"`
	SpO2      *int       `json:"spo2"`
	Temp      *float64   `json:"temp"`
	DeviceID  string     `json:"device_id"`
}

// HistoryResponse 分页历史响应
type HistoryResponse struct {
	Results  []VitalReading `json:"results"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Total    int            `json:"total"`
}

func toReading(v *domain.Vital) VitalReading {
	out := VitalReading{
		Timestamp: v.RecordedAt.UTC().Format(time.RFC3339Nano),
		HeartRate: v.HeartRate,
		SpO2:      v.SpO2,
		Temp:      v.Temp,
		DeviceID:  v.DeviceID,
	}
	if v.BPSystolic != nil && v.BPDiastolic != nil {
		out.BP = &BPReading{Systolic: *v.BPSystolic, Diastolic: *v.BPDiastolic}
	}
	return out
}

// Ingest POST /api/v1/patients/{id}/vitals
//
// 幂等键来自 Idempotency-Key 请求头或请求体的 idempotency_key 字段，
// 请求头优先。重放请求返回 200 duplicate_ignored（成功态，不是错误）。
func (h *VitalsHandler) Ingest(w http.ResponseWriter, r *http.Request, patientID string) {
	if !authorize(w, r, h.credentials, h.logger) {
		return
	}

	var in service.IngestInput
	if !decodeBody(w, r, &in) {
		return
	}

	result, err := h.vitals.Ingest(r.Context(), patientID, &in, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if result.Duplicate {
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate_ignored"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"vital_id": result.VitalID,
		"status":   "stored",
	})
}

// Latest GET /api/v1/patients/{id}/latest
func (h *VitalsHandler) Latest(w http.ResponseWriter, r *http.Request, patientID string) {
	v, err := h.vitals.Latest(r.Context(), patientID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toReading(v))
}

// History GET /api/v1/patients/{id}/history
//
// 查询参数：from、to（闭区间时间过滤）、page（默认1）、
// page_size（默认100，上限500）。参数解析失败返回 bad_request。
func (h *VitalsHandler) History(w http.ResponseWriter, r *http.Request, patientID string) {
	q, err := parseHistoryQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid query parameters", err.Error())
		return
	}

	page, err := h.vitals.History(r.Context(), patientID, q)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	results := make([]VitalReading, 0, len(page.Items))
	for _, v := range page.Items {
		results = append(results, toReading(v))
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Results:  results,
		Page:     page.Page,
		PageSize: page.PageSize,
		Total:    page.Total,
	})
}

func parseHistoryQuery(r *http.Request) (*service.HistoryQuery, error) {
	q := &service.HistoryQuery{Page: 1, PageSize: 100}
	params := r.URL.Query()

	if s := params.Get("from"); s != "" {
		t, err := service.ParseTimestamp(s)
		if err != nil {
			return nil, err
		}
		q.From = &t
	}
	if s := params.Get("to"); s != "" {
		t, err := service.ParseTimestamp(s)
		if err != nil {
			return nil, err
		}
		q.To = &t
	}
	if s := params.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid page: %s", s)
		}
		q.Page = n
	}
	if s := params.Get("page_size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid page_size: %s", s)
		}
		q.PageSize = n
	}

	return q, nil
}
