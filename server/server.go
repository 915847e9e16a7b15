package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/isdmx/playbuild/admission"
	"github.com/isdmx/playbuild/compile"
	"github.com/isdmx/playbuild/config"
	"github.com/isdmx/playbuild/metrics"
)

// Response and request header names.
const (
	HeaderWasmLength      = "wasm-content-length"
	HeaderJSLength        = "js-content-length"
	HeaderCacheStatus     = "origin-cache-status"
	HeaderReferenceNumber = "reference-number"
	HeaderCacheBypass     = "cache-bypass"
)

var exposedHeaders = []string{
	HeaderWasmLength,
	HeaderJSLength,
	HeaderCacheStatus,
	HeaderReferenceNumber,
	"Retry-After",
}

// Server routes HTTP requests to the compile service.
type Server struct {
	logger    *zap.Logger
	config    *config.Config
	service   *compile.Service
	admission *admission.Controller
	metrics   metrics.Recorder
	handler   http.Handler
}

// New builds the router. metricsHandler may be nil when metrics are disabled.
func New(
	log *zap.Logger,
	cfg *config.Config,
	service *compile.Service,
	ctrl *admission.Controller,
	rec metrics.Recorder,
	metricsHandler http.Handler,
) *Server {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	s := &Server{
		logger:    log,
		config:    cfg,
		service:   service,
		admission: ctrl,
		metrics:   rec,
	}

	r := mux.NewRouter()

	compileRoutes := r.PathPrefix("/compile").Subrouter()
	compileRoutes.Use(s.withAdmission)
	compileRoutes.HandleFunc("", s.handleCompile).Methods(http.MethodPost)
	compileRoutes.HandleFunc("/{version}/{channel}", s.handleCompile).Methods(http.MethodPost)
	r.Handle("/clippy/{version}/{channel}", s.withAdmission(http.HandlerFunc(s.handleClippy))).Methods(http.MethodPost)
	r.Handle("/format", s.withAdmission(http.HandlerFunc(s.handleFormat))).Methods(http.MethodPost)

	r.HandleFunc("/health/{version}/{channel}", s.handleHealth).Methods(http.MethodGet)
	if metricsHandler != nil && cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, metricsHandler).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(s.handleUnknown(http.StatusNotFound))
	r.MethodNotAllowedHandler = http.HandlerFunc(s.handleUnknown(http.StatusMethodNotAllowed))

	s.handler = s.withRequestID(s.withCORS(s.withLogging(s.withRecovery(r))))
	return s
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}
