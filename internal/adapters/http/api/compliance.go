package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/flightguard/internal/domain/telemetry"
	"github.com/okian/flightguard/internal/domain/types"
	"github.com/okian/flightguard/pkg/logger"
)

// ComplianceDependencies defines the checks and corpus reads.
type ComplianceDependencies interface {
	Check(ctx context.Context, raw telemetry.Raw) (types.CheckResult, error)
	TrainingData(ctx context.Context, pilotID string, limit int) ([]types.TrainingRecord, error)
}

// ComplianceHandler handles compliance requests.
type ComplianceHandler struct {
	deps   ComplianceDependencies
	logger logger.Logger
}

// NewComplianceHandler creates a new compliance handler.
func NewComplianceHandler(deps ComplianceDependencies, l logger.Logger) *ComplianceHandler {
	return &ComplianceHandler{deps: deps, logger: l}
}

// HandleCheck handles POST /compliance/check requests.
func (h *ComplianceHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	const op = "api.check"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var raw telemetry.Raw
	if err := decodeBody(w, r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Check(r.Context(), raw)
	if err != nil {
		status, code := classify(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error(r.Context(), "compliance check failed", logger.String("pilotId", raw.PilotID), logger.Error(err))
		}
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type trainingDataResponse struct {
	PilotID string                 `json:"pilotId,omitempty"`
	Count   int                    `json:"count"`
	Records []types.TrainingRecord `json:"records"`
}

// HandleTrainingData handles GET /compliance/training-data?pilotId=&limit= requests.
func (h *ComplianceHandler) HandleTrainingData(w http.ResponseWriter, r *http.Request) {
	const op = "api.training_data"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	pilotID := strings.TrimSpace(q.Get("pilotId"))
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		limit = n
	}
	records, err := h.deps.TrainingData(r.Context(), pilotID, limit)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, trainingDataResponse{PilotID: pilotID, Count: len(records), Records: records})
}
