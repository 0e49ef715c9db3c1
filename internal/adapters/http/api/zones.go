package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/okian/flightguard/internal/domain/model"
)

// ZoneDependencies defines the restricted zone administration operations.
type ZoneDependencies interface {
	Zones(ctx context.Context) ([]model.RestrictedZone, error)
	UpsertZone(ctx context.Context, z model.RestrictedZone) error
	DeleteZone(ctx context.Context, name string) error
}

// ZonesHandler handles restricted zone requests.
type ZonesHandler struct {
	deps ZoneDependencies
}

// NewZonesHandler creates a new zones handler.
func NewZonesHandler(deps ZoneDependencies) *ZonesHandler {
	return &ZonesHandler{deps: deps}
}

// HandleZones handles GET and PUT /compliance/zones requests.
func (h *ZonesHandler) HandleZones(w http.ResponseWriter, r *http.Request) {
	const op = "api.zones"
	switch r.Method {
	case http.MethodGet:
		zones, err := h.deps.Zones(r.Context())
		if err != nil {
			writeDomainError(w, Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, zones)
	case http.MethodPut, http.MethodPost:
		var z model.RestrictedZone
		if err := decodeBody(w, r, &z); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		z.Name = strings.TrimSpace(z.Name)
		if err := h.deps.UpsertZone(r.Context(), z); err != nil {
			writeDomainError(w, Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, z)
	default:
		http.NotFound(w, r)
	}
}

// HandleZone handles DELETE /compliance/zones/{name} requests.
func (h *ZonesHandler) HandleZone(w http.ResponseWriter, r *http.Request) {
	const op = "api.zone"
	if r.Method != http.MethodDelete {
		http.NotFound(w, r)
		return
	}
	// Extract path parameter after /compliance/zones/
	name, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/compliance/zones/"))
	if err != nil || name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if err := h.deps.DeleteZone(r.Context(), name); err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
