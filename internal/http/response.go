package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"reflect"

	"go.uber.org/zap"

	"vitalgate/internal/service"
)

// ErrorResponse 统一错误响应格式
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message, Details: details})
}

// authorize 校验 X-API-Key，失败时直接写出 401 响应
func authorize(w http.ResponseWriter, r *http.Request, credentials *service.CredentialService, logger *zap.Logger) bool {
	err := credentials.Authorize(r.Context(), r.Header.Get("X-API-Key"))
	switch err {
	case nil:
		return true
	case service.ErrMissingAPIKey:
		writeError(w, http.StatusUnauthorized, "missing_api_key", "X-API-Key header required", nil)
	case service.ErrInvalidAPIKey:
		writeError(w, http.StatusUnauthorized, "invalid_api_key", "Invalid API key", nil)
	default:
		logger.Error("Authorization check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error", nil)
	}
	return false
}

// decodeBody 解析 JSON 请求体。空请求体不报错，交给后续校验
// 产生字段级 required 错误；类型不匹配映射为对应字段的校验错误。
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || err == io.EOF {
		return true
	}

	details := map[string]string{"body": "invalid JSON"}
	if ute, ok := err.(*json.UnmarshalTypeError); ok && ute.Field != "" {
		details = map[string]string{ute.Field: "not a valid " + jsonTypeName(ute.Type)}
	}
	writeError(w, http.StatusBadRequest, "validation_error", "Invalid payload", details)
	return false
}

func jsonTypeName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	default:
		return "value"
	}
}

// writeServiceError 把业务错误映射为统一错误响应
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if verr, ok := err.(*service.ValidationError); ok {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid payload", verr.Fields)
		return
	}

	switch err {
	case service.ErrNoReadings:
		writeError(w, http.StatusNotFound, "not_found", "No readings for patient", nil)
	default:
		logger.Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error", nil)
	}
}
