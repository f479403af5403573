package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 pprof 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterAPIRoutes 注册 /api/v1 业务路由
func (r *Router) RegisterAPIRoutes(devices *DeviceHandler, vitals *VitalsHandler) {
	r.Handle("/api/v1/devices/register", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		devices.Register(w, req)
	})

	// patients/{id}/vitals | latest | history | vitals/export
	r.Handle("/api/v1/patients/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/api/v1/patients/")
		parts := strings.Split(rest, "/")
		if len(parts) < 2 || parts[0] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		patientID := parts[0]

		switch {
		case len(parts) == 2 && parts[1] == "vitals":
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			vitals.Ingest(w, req, patientID)
		case len(parts) == 2 && parts[1] == "latest":
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			vitals.Latest(w, req, patientID)
		case len(parts) == 2 && parts[1] == "history":
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			vitals.History(w, req, patientID)
		case len(parts) == 3 && parts[1] == "vitals" && parts[2] == "export":
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			vitals.Export(w, req, patientID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}
