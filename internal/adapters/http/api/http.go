// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/okian/flightguard/internal/adapters/repository"
	service "github.com/okian/flightguard/internal/app"
	"github.com/okian/flightguard/internal/domain/model"
	"github.com/okian/flightguard/internal/domain/risk"
	"github.com/okian/flightguard/internal/domain/telemetry"
	"github.com/okian/flightguard/internal/domain/types"
	"github.com/okian/flightguard/pkg/logger"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Check(ctx context.Context, raw telemetry.Raw) (types.CheckResult, error)
	TrainingData(ctx context.Context, pilotID string, limit int) ([]types.TrainingRecord, error)

	StartTraining(ctx context.Context) (types.TrainResult, error)
	Train(ctx context.Context) (types.TrainResult, error)
	CancelTraining() bool
	ModelStatus() types.ModelStatus
	Rollback(ctx context.Context, version int64) (types.ModelStatus, error)

	Zones(ctx context.Context) ([]model.RestrictedZone, error)
	UpsertZone(ctx context.Context, z model.RestrictedZone) error
	DeleteZone(ctx context.Context, name string) error

	StatsProvider
	Ready() bool
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	complianceHandler *ComplianceHandler
	modelHandler      *ModelHandler
	zonesHandler      *ZonesHandler
}

// Option configures the Server.
type Option func(*serverOptions)

type serverOptions struct {
	trainRatePerMin int
	logger          logger.Logger
}

// WithTrainRateLimit caps POST /compliance/train per minute. Zero disables the limit.
func WithTrainRateLimit(perMinute int) Option {
	return func(o *serverOptions) {
		o.trainRatePerMin = perMinute
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(o *serverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := serverOptions{logger: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:     NewHealthHandler(deps),
		statsHandler:      NewStatsHandler(deps),
		complianceHandler: NewComplianceHandler(deps, o.logger),
		modelHandler:      NewModelHandler(deps, newTrainLimiter(o.trainRatePerMin)),
		zonesHandler:      NewZonesHandler(deps),
	}
}

func newTrainLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/compliance/check", MetricsMiddleware(s.complianceHandler.HandleCheck, "check"))
	mux.HandleFunc("/compliance/training-data", MetricsMiddleware(s.complianceHandler.HandleTrainingData, "training_data"))
	mux.HandleFunc("/compliance/train", MetricsMiddleware(s.modelHandler.HandleTrain, "train"))
	mux.HandleFunc("/compliance/train/cancel", MetricsMiddleware(s.modelHandler.HandleCancel, "train_cancel"))
	mux.HandleFunc("/compliance/model-status", MetricsMiddleware(s.modelHandler.HandleStatus, "model_status"))
	mux.HandleFunc("/compliance/model/rollback", MetricsMiddleware(s.modelHandler.HandleRollback, "model_rollback"))
	mux.HandleFunc("/compliance/zones", MetricsMiddleware(s.zonesHandler.HandleZones, "zones"))
	mux.HandleFunc("/compliance/zones/", MetricsMiddleware(s.zonesHandler.HandleZone, "zone"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	resp := errorResponse{Code: code, Message: msg}
	var ve *telemetry.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
		resp.Message = ve.Error()
	}
	writeJSON(w, status, resp)
}

// classify maps a domain error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, telemetry.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, ErrBadRequest), errors.Is(err, repository.ErrInvalidZone):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, risk.ErrInsufficientData):
		return http.StatusUnprocessableEntity, "insufficient_data"
	case errors.Is(err, risk.ErrTrainingInProgress):
		return http.StatusConflict, "training_in_progress"
	case errors.Is(err, risk.ErrSnapshotNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrTrainingDataUnavailable), errors.Is(err, repository.ErrPersistence):
		return http.StatusServiceUnavailable, "persistence_unavailable"
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}
