package http

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/axonlabs/axonfit/internal/domain/axon"
	"github.com/axonlabs/axonfit/internal/infrastructure/cache"
	"github.com/axonlabs/axonfit/internal/persistence"
)

// Handlers serves the monitor endpoints from the file store and bundle cache.
type Handlers struct {
	store     *persistence.FileStore
	bundles   *cache.Bundles
	startTime time.Time
	version   string
	log       zerolog.Logger
}

// NewHandlers wires the read-side dependencies.
func NewHandlers(store *persistence.FileStore, bundles *cache.Bundles, version string, log zerolog.Logger) *Handlers {
	return &Handlers{
		store:     store,
		bundles:   bundles,
		startTime: time.Now(),
		version:   version,
		log:       log,
	}
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Uptime    string     `json:"uptime"`
	Version   string     `json:"version"`
	System    SystemInfo `json:"system"`
}

// SystemInfo reports process-level runtime numbers.
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAllocBytes uint64 `json:"mem_alloc_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

// Health implements GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Version:   h.version,
		System: SystemInfo{
			GoVersion:     runtime.Version(),
			NumGoroutines: runtime.NumGoroutine(),
			MemAllocBytes: mem.Alloc,
			NumGC:         mem.NumGC,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.writeJSON(w, http.StatusOK, resp)
}

// FunctionsResponse lists targets with persisted sweep results.
type FunctionsResponse struct {
	Functions []string  `json:"functions"`
	Generated time.Time `json:"generated"`
}

// Functions implements GET /api/v1/functions.
func (h *Handlers) Functions(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.ListFunctions(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "listing results failed")
		return
	}
	h.writeJSON(w, http.StatusOK, FunctionsResponse{Functions: names, Generated: time.Now().UTC()})
}

// ResultsResponse carries one persisted sweep, in either shape.
type ResultsResponse struct {
	Function  string                `json:"function"`
	Errors    persistence.SweepFile `json:"errors"`
	Generated time.Time             `json:"generated"`
}

// Results implements GET /api/v1/results/{function}.
func (h *Handlers) Results(w http.ResponseWriter, r *http.Request) {
	function := mux.Vars(r)["function"]

	sweep, err := h.store.LoadSweep(r.Context(), function)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "loading results failed")
		return
	}
	if len(sweep.Plain) == 0 && len(sweep.Keyed) == 0 {
		h.writeError(w, http.StatusNotFound, "no results for function "+function)
		return
	}
	h.writeJSON(w, http.StatusOK, ResultsResponse{Function: function, Errors: sweep, Generated: time.Now().UTC()})
}

// Bundle implements GET /api/v1/bundles/{id}.
func (h *Handlers) Bundle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	bundle, ok := h.bundles.Get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "bundle "+id+" not cached")
		return
	}
	h.writeJSON(w, http.StatusOK, bundle)
}

// PredictRequest asks for model outputs at the given inputs.
type PredictRequest struct {
	BundleID string      `json:"bundle_id"`
	Inputs   [][]float64 `json:"inputs"`
}

// PredictResponse returns the model outputs in input order.
type PredictResponse struct {
	BundleID string    `json:"bundle_id"`
	Outputs  []float64 `json:"outputs"`
	Elapsed  string    `json:"elapsed"`
}

// Predict implements POST /api/v1/predict against a cached bundle.
func (h *Handlers) Predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.BundleID == "" || len(req.Inputs) == 0 {
		h.writeError(w, http.StatusBadRequest, "bundle_id and inputs are required")
		return
	}

	bundle, ok := h.bundles.Get(req.BundleID)
	if !ok {
		h.writeError(w, http.StatusNotFound, "bundle "+req.BundleID+" not cached")
		return
	}

	start := time.Now()
	outputs, err := bundle.Predict(req.Inputs)
	if err != nil {
		if axon.IsUntrained(err) {
			h.writeError(w, http.StatusConflict, "bundle is not trained")
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, PredictResponse{
		BundleID: req.BundleID,
		Outputs:  outputs,
		Elapsed:  time.Since(start).String(),
	})
}

// NotFound is the catch-all JSON 404.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeError(w, http.StatusNotFound, "unknown endpoint "+r.URL.Path)
}

type errorResponse struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("encoding response failed")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg, Timestamp: time.Now().UTC()})
}
