package restserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/chrissnell/fluidwatch/internal/chart"
	"github.com/chrissnell/fluidwatch/internal/controllers"
	"github.com/chrissnell/fluidwatch/internal/device"
	"github.com/chrissnell/fluidwatch/internal/rate"
	"github.com/chrissnell/fluidwatch/internal/storage"
	"github.com/chrissnell/fluidwatch/pkg/responseformat"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	maxChartDimension   = 4096
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	service    *controllers.Service
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		service:    ctrl.service,
		formatter:  responseformat.NewFormatter(),
	}
}

// startRequest is the optional JSON body of POST /api/device/start
type startRequest struct {
	Weight float64 `json:"weight"`
}

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Status  string                    `json:"status"`
	Storage map[string]storage.Health `json:"storage,omitempty"`
}

// GetView handles requests for a rendered view: ?range=<hours>&offset=<hours>&weight=<kg>
func (h *Handlers) GetView(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()

	state, err := h.service.ParseState(q.Get("range"), q.Get("offset"))
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	weight, err := controllers.ParseWeight(q.Get("weight"))
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	res, err := h.service.View(state, weight)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	h.formatter.WriteResponse(w, req, res, map[string]string{"Cache-Control": "no-store"})
}

// GetLatest handles requests for the session and fetch status
func (h *Handlers) GetLatest(w http.ResponseWriter, req *http.Request) {
	h.formatter.WriteResponse(w, req, h.service.Status(), map[string]string{"Cache-Control": "no-store"})
}

// GetChart renders the requested view as a PNG bar chart
func (h *Handlers) GetChart(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()

	state, err := h.service.ParseState(q.Get("range"), q.Get("offset"))
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	weight, err := controllers.ParseWeight(q.Get("weight"))
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	width, err := dimension(q.Get("width"))
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	height, err := dimension(q.Get("height"))
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	res, err := h.service.View(state, weight)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	// Render to a buffer first so a drawing error can still become a 500.
	var buf bytes.Buffer
	if err := chart.Render(&buf, res, width, height); err != nil {
		h.writeError(w, req, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// GetHistory lists recent fetches from the configured history backend: ?limit=<n>
func (h *Handlers) GetHistory(w http.ResponseWriter, req *http.Request) {
	if h.service.History == nil {
		h.formatter.WriteError(w, req, http.StatusNotFound, errors.New("history not enabled"),
			"configure sqlite or postgres storage to keep fetch history")
		return
	}

	limit := defaultHistoryLimit
	if l := req.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			h.writeError(w, req, controllers.ErrBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.service.History.Recent(req.Context(), limit)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.formatter.WriteResponse(w, req, records, nil)
}

// PostRefresh fetches the device buffer immediately
func (h *Handlers) PostRefresh(w http.ResponseWriter, req *http.Request) {
	h.formatter.WriteResponse(w, req, h.service.Refresh(req.Context()), nil)
}

// PostDeviceStart enables the device. The weight comes from ?weight= or a
// JSON body {"weight": <kg>}.
func (h *Handlers) PostDeviceStart(w http.ResponseWriter, req *http.Request) {
	weight, err := controllers.ParseWeight(req.URL.Query().Get("weight"))
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	if weight == 0 && req.Body != nil && req.ContentLength != 0 {
		var body startRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 4096)).Decode(&body); err != nil {
			h.writeError(w, req, controllers.ErrBadRequest)
			return
		}
		weight = body.Weight
	}

	if err := h.service.Session.Start(req.Context(), weight); err != nil {
		h.writeError(w, req, err)
		return
	}
	h.formatter.WriteResponse(w, req, h.service.Status(), nil)
}

// PostDeviceStop disables the device
func (h *Handlers) PostDeviceStop(w http.ResponseWriter, req *http.Request) {
	if err := h.service.Session.Stop(req.Context()); err != nil {
		h.writeError(w, req, err)
		return
	}
	h.formatter.WriteResponse(w, req, h.service.Status(), nil)
}

// GetHealth reports liveness and the storage backends' last health checks
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	resp := HealthResponse{Status: storage.StatusHealthy}
	if h.service.Health != nil {
		resp.Storage = h.service.Health.GetAllHealth()
		for name := range resp.Storage {
			if !h.service.Health.IsHealthy(name, 5*time.Minute) {
				resp.Status = "degraded"
			}
		}
	}
	h.formatter.WriteResponse(w, req, resp, map[string]string{"Cache-Control": "no-store"})
}

// writeError maps domain errors onto status codes
func (h *Handlers) writeError(w http.ResponseWriter, req *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, controllers.ErrBadRequest), errors.Is(err, rate.ErrInvalidWeight):
		status = http.StatusBadRequest
	case errors.Is(err, device.ErrActionFailed):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.controller.logger.Errorw("request failed", "path", req.URL.Path, "error", err)
	}
	h.formatter.WriteError(w, req, status, err, "")
}

func dimension(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > maxChartDimension {
		return 0, controllers.ErrBadRequest
	}
	return n, nil
}
