package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"tokentable/internal/domain"
	"tokentable/internal/service"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 16

type toggleSortRequest struct {
	Field domain.SortField `json:"field"`
}

func (a *Handler) GetSort(w http.ResponseWriter, _ *http.Request) {
	a.reply(w, http.StatusOK, a.Table.Sort(), "GetSort")
}

// ToggleSort advances the header click cycle: unsorted -> desc -> asc -> unsorted
func (a *Handler) ToggleSort(w http.ResponseWriter, r *http.Request) {
	var req toggleSortRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, http.StatusBadRequest, "bad_request", err.Error(), "ToggleSort")
		return
	}

	s, err := a.Table.ToggleSort(req.Field)
	if err != nil {
		a.inputError(w, r, err, "ToggleSort")
		return
	}
	a.reply(w, http.StatusOK, s, "ToggleSort")
}

func (a *Handler) PutSort(w http.ResponseWriter, r *http.Request) {
	var req domain.Sort
	if err := decode(r, &req); err != nil {
		a.fail(w, r, http.StatusBadRequest, "bad_request", err.Error(), "PutSort")
		return
	}

	if err := a.Table.SetSort(req); err != nil {
		a.inputError(w, r, err, "PutSort")
		return
	}
	a.reply(w, http.StatusOK, a.Table.Sort(), "PutSort")
}

func (a *Handler) GetFilter(w http.ResponseWriter, _ *http.Request) {
	a.reply(w, http.StatusOK, a.Table.Filter(), "GetFilter")
}

// PatchFilter merges the body: omitted keys are kept, explicit null clears a criterion
func (a *Handler) PatchFilter(w http.ResponseWriter, r *http.Request) {
	var p domain.FilterPatch
	if err := decode(r, &p); err != nil {
		a.fail(w, r, http.StatusBadRequest, "bad_request", err.Error(), "PatchFilter")
		return
	}

	f, err := a.Table.SetFilter(p)
	if err != nil {
		a.inputError(w, r, err, "PatchFilter")
		return
	}
	a.reply(w, http.StatusOK, f, "PatchFilter")
}

func (a *Handler) ClearFilter(w http.ResponseWriter, _ *http.Request) {
	a.Table.ClearFilters()
	a.reply(w, http.StatusOK, a.Table.Filter(), "ClearFilter")
}

func (a *Handler) ToggleChain(w http.ResponseWriter, r *http.Request) {
	f, err := a.Table.ToggleChain(domain.Chain(chi.URLParam(r, "chain")))
	if err != nil {
		a.inputError(w, r, err, "ToggleChain")
		return
	}
	a.reply(w, http.StatusOK, f, "ToggleChain")
}

func (a *Handler) ToggleVerified(w http.ResponseWriter, _ *http.Request) {
	a.reply(w, http.StatusOK, a.Table.ToggleVerified(), "ToggleVerified")
}

func (a *Handler) ToggleTrending(w http.ResponseWriter, _ *http.Request) {
	a.reply(w, http.StatusOK, a.Table.ToggleTrending(), "ToggleTrending")
}

func (a *Handler) inputError(w http.ResponseWriter, r *http.Request, err error, handler string) {
	if errors.Is(err, service.ErrInvalidSort) || errors.Is(err, service.ErrInvalidFilter) {
		a.fail(w, r, http.StatusUnprocessableEntity, "invalid_argument", err.Error(), handler)
		return
	}
	a.Log.Errorf("%s handler error: %v", handler, err)
	a.fail(w, r, http.StatusInternalServerError, "internal", "internal error", handler)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
