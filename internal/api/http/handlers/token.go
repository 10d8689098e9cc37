package handlers

import (
	"errors"
	"net/http"

	"tokentable/internal/domain"
	"tokentable/internal/format"
	"tokentable/internal/service"
	"tokentable/pkg/httputil"

	"github.com/go-chi/chi/v5"
)

type tokensResponse struct {
	Category *domain.Category `json:"category,omitempty"`
	Count    int              `json:"count"`
	Sort     domain.Sort      `json:"sort"`
	Filter   domain.Filter    `json:"filter"`
	Loading  bool             `json:"loading"`
	Error    *string          `json:"error"`
	Tokens   []format.Row     `json:"tokens"`
}

func (a *Handler) Overview(w http.ResponseWriter, _ *http.Request) {
	a.reply(w, http.StatusOK, a.Table.Overview(), "Overview")
}

// Tokens serves the derived view; ?category= narrows it to one section
func (a *Handler) Tokens(w http.ResponseWriter, r *http.Request) {
	st := a.Table.State()
	resp := tokensResponse{
		Sort:    st.Sort,
		Filter:  st.Filter,
		Loading: st.Loading,
		Error:   st.Error,
	}

	toks := st.Visible
	if raw := r.URL.Query().Get("category"); raw != "" {
		c := domain.Category(raw)
		if !c.Valid() {
			a.fail(w, r, http.StatusBadRequest, "bad_request", "unknown category "+raw, "Tokens")
			return
		}
		toks = st.Sections[c]
		resp.Category = &c
	}

	resp.Tokens = format.Rows(toks)
	resp.Count = len(resp.Tokens)
	if err := httputil.Versioned(w, http.StatusOK, resp, st.Version); err != nil {
		a.Log.Errorf("Tokens handler error: %s", err.Error())
	}
}

func (a *Handler) Token(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := a.Table.Token(id)
	if err != nil {
		a.tokenError(w, r, err, "Token")
		return
	}
	a.reply(w, http.StatusOK, format.RowOf(t), "Token")
}

// Select opens the details view for a token
func (a *Handler) Select(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := a.Table.Select(id)
	if err != nil {
		a.tokenError(w, r, err, "Select")
		return
	}
	a.reply(w, http.StatusOK, format.RowOf(t), "Select")
}

func (a *Handler) ClearSelection(w http.ResponseWriter, _ *http.Request) {
	a.Table.ClearSelection()
	httputil.NoContent(w)
}

func (a *Handler) tokenError(w http.ResponseWriter, r *http.Request, err error, handler string) {
	if errors.Is(err, service.ErrTokenNotFound) {
		a.fail(w, r, http.StatusNotFound, "not_found", err.Error(), handler)
		return
	}
	a.Log.Errorf("%s handler error: %v", handler, err)
	a.fail(w, r, http.StatusInternalServerError, "internal", "internal error", handler)
}
