package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"rsipulse/internal/domain/entity"
	"rsipulse/internal/domain/service"
)

type RSIHandler struct {
	svc *service.RSIService
}

func NewRSIHandler(svc *service.RSIService) *RSIHandler {
	return &RSIHandler{svc: svc}
}

func (h *RSIHandler) Reading(w http.ResponseWriter, r *http.Request) {
	req := entity.ReadingRequest{
		Symbol: chi.URLParam(r, "symbol"),
	}

	if lowStr := r.URL.Query().Get("rsi_low"); lowStr != "" {
		low, err := strconv.ParseFloat(lowStr, 64)
		if err != nil {
			writeError(w, r, entity.ErrBadRequest("invalid rsi_low"))
			return
		}
		req.RSILow = &low
	}
	if highStr := r.URL.Query().Get("rsi_high"); highStr != "" {
		high, err := strconv.ParseFloat(highStr, 64)
		if err != nil {
			writeError(w, r, entity.ErrBadRequest("invalid rsi_high"))
			return
		}
		req.RSIHigh = &high
	}

	resp, err := h.svc.Reading(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

func (h *RSIHandler) State(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.State(chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, st)
}

func (h *RSIHandler) PostTicks(w http.ResponseWriter, r *http.Request) {
	req := entity.TickRequest{}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, entity.ErrBadRequest("invalid JSON"))
		return
	}

	resp, err := h.svc.Ingest(r.Context(), chi.URLParam(r, "symbol"), req.Ticks...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var he entity.HTTPError
	if errors.As(err, &he) {
		status = he.StatusCode
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": err.Error()})
}
