package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"go.uber.org/zap"

	"vitalgate/internal/repository"
	"vitalgate/internal/service"
)

const testMasterKey = "dev-master-key-123"

func newTestRouter() *Router {
	logger := zap.NewNop()

	patients := repository.NewMemoryPatientsRepo()
	devices := repository.NewMemoryDevicesRepo()
	vitals := repository.NewMemoryVitalsRepo()
	idem := repository.NewMemoryIdempotencyRepo()

	credentials := service.NewCredentialService(devices, testMasterKey, logger)
	deviceSvc := service.NewDeviceService(patients, devices, logger)
	vitalSvc := service.NewVitalService(nil, vitals, idem, logger)

	router := NewRouter(logger)
	router.RegisterAPIRoutes(
		NewDeviceHandler(credentials, deviceSvc, logger),
		NewVitalsHandler(credentials, vitalSvc, logger),
	)
	return router
}

func doJSON(router *Router, method, path string, headers map[string]string, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func masterAuth() map[string]string {
	return map[string]string{"X-API-Key": testMasterKey}
}

// 完整闭环：注册 -> 上报 -> 重放 -> 查询最新
func TestRegisterIngestLatestRoundTrip(t *testing.T) {
	router := newTestRouter()

	// 注册设备（主密钥）
	w := doJSON(router, http.MethodPost, "/api/v1/devices/register", masterAuth(),
		`{"device_id": "dev_1", "type": "hr", "patient_id": "p_1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var reg RegisterResponse
	if err := json.Unmarshal(w.Body.Bytes(), &reg); err != nil {
		t.Fatalf("failed to decode register response: %v", err)
	}
	if reg.Status != "registered" || !strings.HasPrefix(reg.APIKey, "key_") {
		t.Fatalf("unexpected register response: %+v", reg)
	}

	// 用签发的设备 key 上报
	ingestHeaders := map[string]string{
		"X-API-Key":       reg.APIKey,
		"Idempotency-Key": "abc",
	}
	vitalBody := `{"timestamp": "2024-01-01T00:00:00Z", "device_id": "dev_1", "heart_rate": 72}`

	w = doJSON(router, http.MethodPost, "/api/v1/patients/p_1/vitals", ingestHeaders, vitalBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"status":"stored"`) {
		t.Fatalf("expected stored status, got: %s", w.Body.String())
	}

	// 重放同一请求：200 duplicate_ignored，成功态
	w = doJSON(router, http.MethodPost, "/api/v1/patients/p_1/vitals", ingestHeaders, vitalBody)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"status":"duplicate_ignored"`) {
		t.Fatalf("expected duplicate_ignored, got: %s", w.Body.String())
	}

	// 查询最新读数
	w = doJSON(router, http.MethodGet, "/api/v1/patients/p_1/latest", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, `"heart_rate":72`) {
		t.Errorf("expected heart_rate 72, got: %s", body)
	}
	if !strings.Contains(body, `"timestamp":"2024-01-01T00:00:00Z"`) {
		t.Errorf("expected original timestamp, got: %s", body)
	}
	// 缺失的测量值必须是显式 null
	if !strings.Contains(body, `"bp":null`) || !strings.Contains(body, `"spo2":null`) {
		t.Errorf("expected explicit nulls for absent measurements, got: %s", body)
	}
}

func TestRegister_MissingKey(t *testing.T) {
	router := newTestRouter()

	w := doJSON(router, http.MethodPost, "/api/v1/devices/register", nil,
		`{"device_id": "dev_1", "type": "hr", "patient_id": "p_1"}`)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"code":"missing_api_key"`) || !strings.Contains(body, "X-API-Key header required") {
		t.Fatalf("unexpected error body: %s", body)
	}
}

func TestRegister_InvalidKey(t *testing.T) {
	router := newTestRouter()

	w := doJSON(router, http.MethodPost, "/api/v1/devices/register",
		map[string]string{"X-API-Key": "key_bogus"},
		`{"device_id": "dev_1", "type": "hr", "patient_id": "p_1"}`)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"code":"invalid_api_key"`) {
		t.Fatalf("unexpected error body: %s", w.Body.String())
	}
}

// 没带密钥的写请求不能留下任何痕迹
func TestIngest_MissingKeyWritesNothing(t *testing.T) {
	router := newTestRouter()

	w := doJSON(router, http.MethodPost, "/api/v1/patients/p_1/vitals", nil,
		`{"timestamp": "2024-01-01T00:00:00Z", "device_id": "dev_1", "heart_rate": 72}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"code":"missing_api_key"`) {
		t.Fatalf("unexpected error body: %s", w.Body.String())
	}

	w = doJSON(router, http.MethodGet, "/api/v1/patients/p_1/latest", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("rejected ingest must not store anything, latest returned %d: %s", w.Code, w.Body.String())
	}
}

// 注册按设备ID幂等：第二次返回 200 和同一个 key
func TestRegister_Idempotent(t *testing.T) {
	router := newTestRouter()
	body := `{"device_id": "dev_1", "type": "hr", "patient_id": "p_1"}`

	w := doJSON(router, http.MethodPost, "/api/v1/devices/register", masterAuth(), body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	var first RegisterResponse
	_ = json.Unmarshal(w.Body.Bytes(), &first)

	w = doJSON(router, http.MethodPost, "/api/v1/devices/register", masterAuth(), body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat, got %d", w.Code)
	}
	var second RegisterResponse
	_ = json.Unmarshal(w.Body.Bytes(), &second)

	if second.Status != "already_registered" {
		t.Errorf("expected already_registered, got: %s", second.Status)
	}
	if second.APIKey != first.APIKey {
		t.Errorf("expected the same key both times, got %s then %s", first.APIKey, second.APIKey)
	}
}

func TestRegister_ValidationError(t *testing.T) {
	router := newTestRouter()

	w := doJSON(router, http.MethodPost, "/api/v1/devices/register", masterAuth(),
		`{"device_id": "dev_1", "type": "xray", "patient_id": "p_1"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"code":"validation_error"`) || !strings.Contains(body, `"type"`) {
		t.Fatalf("expected field error for type, got: %s", body)
	}
}

func TestIngest_ValidationErrors(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"missing timestamp", `{"device_id": "dev_1"}`, `"timestamp":"required"`},
		{"missing device_id", `{"timestamp": "2024-01-01T00:00:00Z"}`, `"device_id":"required"`},
		{"bad timestamp", `{"timestamp": "yesterday", "device_id": "dev_1"}`, `"timestamp":"not a valid datetime"`},
		{"bp missing diastolic", `{"timestamp": "2024-01-01T00:00:00Z", "device_id": "dev_1", "bp": {"systolic": 120}}`, `"bp.diastolic":"required"`},
		{"bp systolic out of range", `{"timestamp": "2024-01-01T00:00:00Z", "device_id": "dev_1", "bp": {"systolic": 301, "diastolic": 80}}`, `"bp.systolic"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodPost, "/api/v1/patients/p_1/vitals", masterAuth(), tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			body := w.Body.String()
			if !strings.Contains(body, `"code":"validation_error"`) || !strings.Contains(body, "Invalid payload") {
				t.Fatalf("expected validation_error envelope, got: %s", body)
			}
			if !strings.Contains(body, tt.wantField) {
				t.Errorf("expected detail %s, got: %s", tt.wantField, body)
			}
		})
	}
}

func TestIngest_TypeMismatchDetails(t *testing.T) {
	router := newTestRouter()

	w := doJSON(router, http.MethodPost, "/api/v1/patients/p_1/vitals", masterAuth(),
		`{"timestamp": "2024-01-01T00:00:00Z", "device_id": "dev_1", "heart_rate": "fast"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"heart_rate"`) || !strings.Contains(body, "integer") {
		t.Errorf("expected heart_rate type detail, got: %s", body)
	}
}

// 请求体里的 idempotency_key 在没有请求头时生效
func TestIngest_BodyToken(t *testing.T) {
	router := newTestRouter()
	body := `{"timestamp": "2024-01-01T00:00:00Z", "device_id": "dev_1", "heart_rate": 70, "idempotency_key": "body-1"}`

	w := doJSON(router, http.MethodPost, "/api/v1/patients/p_1/vitals", masterAuth(), body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(router, http.MethodPost, "/api/v1/patients/p_1/vitals", masterAuth(), body)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "duplicate_ignored") {
		t.Fatalf("expected duplicate via body token, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLatest_NotFound(t *testing.T) {
	router := newTestRouter()

	w := doJSON(router, http.MethodGet, "/api/v1/patients/p_none/latest", nil, "")

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"code":"not_found"`) || !strings.Contains(body, "No readings for patient") {
		t.Fatalf("unexpected error body: %s", body)
	}
}

func ingestReading(t *testing.T, router *Router, patientID, ts string, hr int) {
	t.Helper()
	body := `{"timestamp": "` + ts + `", "device_id": "dev_1", "heart_rate": ` + strconv.Itoa(hr) + `}`
	w := doJSON(router, http.MethodPost, "/api/v1/patients/"+patientID+"/vitals", masterAuth(), body)
	if w.Code != http.StatusCreated {
		t.Fatalf("seed ingest failed with %d: %s", w.Code, w.Body.String())
	}
}

func TestHistory_PaginationAndOrdering(t *testing.T) {
	router := newTestRouter()

	timestamps := []string{
		"2024-01-01T00:00:00Z",
		"2024-01-01T01:00:00Z",
		"2024-01-01T02:00:00Z",
		"2024-01-01T03:00:00Z",
		"2024-01-01T04:00:00Z",
	}
	for i, ts := range timestamps {
		ingestReading(t, router, "p_1", ts, 70+i)
	}

	w := doJSON(router, http.MethodGet, "/api/v1/patients/p_1/history?page=1&page_size=2", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var page HistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode history: %v", err)
	}
	if page.Total != 5 || page.Page != 1 || page.PageSize != 2 {
		t.Fatalf("unexpected page envelope: %+v", page)
	}
	if len(page.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(page.Results))
	}
	// 最新优先
	if page.Results[0].Timestamp != "2024-01-01T04:00:00Z" {
		t.Errorf("expected newest first, got: %s", page.Results[0].Timestamp)
	}

	// 最后一页
	w = doJSON(router, http.MethodGet, "/api/v1/patients/p_1/history?page=3&page_size=2", nil, "")
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if len(page.Results) != 1 || page.Total != 5 {
		t.Errorf("expected final page with 1 result and total 5, got: %+v", page)
	}

	// 时间范围过滤（闭区间）
	w = doJSON(router, http.MethodGet,
		"/api/v1/patients/p_1/history?from=2024-01-01T01:00:00Z&to=2024-01-01T03:00:00Z", nil, "")
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if page.Total != 3 {
		t.Errorf("expected 3 in inclusive range, got %d", page.Total)
	}
}

func TestHistory_EmptyPatientIsNotAnError(t *testing.T) {
	router := newTestRouter()

	w := doJSON(router, http.MethodGet, "/api/v1/patients/p_none/history", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty history, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"results":[]`) || !strings.Contains(body, `"total":0`) {
		t.Fatalf("expected empty results envelope, got: %s", body)
	}
}

func TestHistory_BadQueryParams(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		name string
		path string
		want string
	}{
		{"bad page", "/api/v1/patients/p_1/history?page=abc", "invalid page"},
		{"bad page_size", "/api/v1/patients/p_1/history?page_size=big", "invalid page_size"},
		{"bad from", "/api/v1/patients/p_1/history?from=tomorrow", "invalid datetime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodGet, tt.path, nil, "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			body := w.Body.String()
			if !strings.Contains(body, `"code":"bad_request"`) || !strings.Contains(body, "Invalid query parameters") {
				t.Fatalf("expected bad_request envelope, got: %s", body)
			}
			if !strings.Contains(body, tt.want) {
				t.Errorf("expected parse detail %q, got: %s", tt.want, body)
			}
		})
	}
}

// 显式 page_size=0 收敛到 1；缺省时才是 100
func TestHistory_PageSizeClamp(t *testing.T) {
	router := newTestRouter()
	ingestReading(t, router, "p_1", "2024-01-01T00:00:00Z", 70)
	ingestReading(t, router, "p_1", "2024-01-01T01:00:00Z", 71)

	w := doJSON(router, http.MethodGet, "/api/v1/patients/p_1/history?page_size=0", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var page HistoryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if page.PageSize != 1 || len(page.Results) != 1 || page.Total != 2 {
		t.Errorf("expected page_size clamped to 1, got: %+v", page)
	}

	w = doJSON(router, http.MethodGet, "/api/v1/patients/p_1/history", nil, "")
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if page.PageSize != 100 {
		t.Errorf("expected default page_size 100, got %d", page.PageSize)
	}
}

// page 低于 1 不报错，落到第 1 页
func TestHistory_PageFloor(t *testing.T) {
	router := newTestRouter()
	ingestReading(t, router, "p_1", "2024-01-01T00:00:00Z", 70)

	w := doJSON(router, http.MethodGet, "/api/v1/patients/p_1/history?page=-2", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var page HistoryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if page.Page != 1 {
		t.Errorf("expected page floored to 1, got %d", page.Page)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router := newTestRouter()

	w := doJSON(router, http.MethodGet, "/api/v1/devices/register", nil, "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}

	w = doJSON(router, http.MethodDelete, "/api/v1/patients/p_1/latest", nil, "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestRouter_UnknownSubroute(t *testing.T) {
	router := newTestRouter()

	w := doJSON(router, http.MethodGet, "/api/v1/patients/p_1/unknown", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

// 内存模式下没有 DB/Redis，健康检查仍然是 200
func TestHealthAndReady_MemoryMode(t *testing.T) {
	router := NewRouter(zap.NewNop())
	doctor := NewDoctorHandler(nil, nil, zap.NewNop())
	router.RegisterDoctorRoutes(doctor)

	w := doJSON(router, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"status":"healthy"`) || !strings.Contains(body, "not configured") {
		t.Errorf("unexpected health body: %s", body)
	}

	w = doJSON(router, http.MethodGet, "/ready", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ready":true`) {
		t.Errorf("unexpected ready response %d: %s", w.Code, w.Body.String())
	}
}
