package api

import (
	"context"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/okian/flightguard/internal/domain/types"
)

// ModelDependencies defines the risk model lifecycle operations.
type ModelDependencies interface {
	StartTraining(ctx context.Context) (types.TrainResult, error)
	Train(ctx context.Context) (types.TrainResult, error)
	CancelTraining() bool
	ModelStatus() types.ModelStatus
	Rollback(ctx context.Context, version int64) (types.ModelStatus, error)
}

// ModelHandler handles training and model status requests.
type ModelHandler struct {
	deps    ModelDependencies
	limiter *rate.Limiter
}

// NewModelHandler creates a new model handler.
func NewModelHandler(deps ModelDependencies, limiter *rate.Limiter) *ModelHandler {
	return &ModelHandler{deps: deps, limiter: limiter}
}

// HandleTrain handles POST /compliance/train requests. Training runs in the
// background and the request returns 202 unless wait=true is given.
func (h *ModelHandler) HandleTrain(w http.ResponseWriter, r *http.Request) {
	const op = "api.train"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if !h.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, types.TrainResult{Accepted: false, Reason: NewKind(op, ErrRateLimited).Error()})
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	var (
		res types.TrainResult
		err error
	)
	if wait {
		res, err = h.deps.Train(r.Context())
	} else {
		res, err = h.deps.StartTraining(r.Context())
	}
	if err != nil {
		status, _ := classify(err)
		writeJSON(w, status, res)
		return
	}
	if wait {
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// HandleCancel handles POST /compliance/train/cancel requests.
func (h *ModelHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{Cancelled: h.deps.CancelTraining()})
}

// HandleStatus handles GET /compliance/model-status requests.
func (h *ModelHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.ModelStatus())
}

// HandleRollback handles POST /compliance/model/rollback?version=N requests.
func (h *ModelHandler) HandleRollback(w http.ResponseWriter, r *http.Request) {
	const op = "api.rollback"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	version, err := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
	if err != nil || version < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	status, err := h.deps.Rollback(r.Context(), version)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, status)
}
