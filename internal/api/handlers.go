package api

import (
	"encoding/json"
	"io"
	"net/http"

	"codeberg.org/mutker/tankctl/internal/errors"
	"codeberg.org/mutker/tankctl/internal/logger"
	"codeberg.org/mutker/tankctl/internal/tank"
)

const maxBodyBytes = 1 << 16

type handler struct {
	ctrl Controller
	log  logger.Logger
}

type readingRequest struct {
	Level      *float64 `json:"level"`
	Percentage *float64 `json:"percentage"`
}

type motorRequest struct {
	State *bool `json:"state"`
}

type commandResponse struct {
	Success bool `json:"success"`
	MotorOn bool `json:"motorOn"`
}

type resetResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) postReading(w http.ResponseWriter, r *http.Request) {
	var req readingRequest
	if err := decode(r, &req); err != nil {
		h.reject(w, err)
		return
	}
	if req.Level == nil || req.Percentage == nil {
		h.reject(w, errors.New().WithData(errors.ErrMalformedCommand, "level and percentage are required"))
		return
	}
	if err := tank.Validate(*req.Level, *req.Percentage); err != nil {
		h.reject(w, err)
		return
	}

	_, motorOn := h.ctrl.OnRealReading(r.Context(), *req.Level, *req.Percentage)

	writeJSON(w, http.StatusOK, commandResponse{Success: true, MotorOn: motorOn})
}

func (h *handler) getHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.History(r.Context()))
}

func (h *handler) postMotor(w http.ResponseWriter, r *http.Request) {
	var req motorRequest
	if err := decode(r, &req); err != nil {
		h.reject(w, err)
		return
	}
	if req.State == nil {
		h.reject(w, errors.New().WithData(errors.ErrMalformedCommand, "state is required"))
		return
	}

	motorOn := h.ctrl.OnMotorCommand(r.Context(), *req.State)

	writeJSON(w, http.StatusOK, commandResponse{Success: true, MotorOn: motorOn})
}

func (h *handler) postReset(w http.ResponseWriter, r *http.Request) {
	h.ctrl.OnReset(r.Context())
	writeJSON(w, http.StatusOK, resetResponse{Success: true})
}

func (h *handler) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

func (h *handler) reject(w http.ResponseWriter, err error) {
	code := errors.ErrMalformedCommand
	var appErr errors.Error
	if errors.As(err, &appErr) {
		code = appErr.Code()
	}
	h.log.Warn().Err(err).Str("error_code", string(code)).Msg("Rejected request")
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), ErrorCode: string(code)})
}

func decode(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return errors.New().Wrap(errors.ErrMalformedCommand, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
