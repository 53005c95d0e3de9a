package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snippetcms/internal/admin"
	"github.com/sakif/snippetcms/internal/apperror"
	"github.com/sakif/snippetcms/internal/model"
	"github.com/sakif/snippetcms/internal/repository"
	"github.com/sakif/snippetcms/internal/service"
)

// SnippetHandler serves the read-only JSON API. Routes expect
// auth.RequireAuth and auth.LoadUser to have run.
type SnippetHandler struct {
	service *service.SnippetService
	admin   *admin.SnippetAdmin
	logger  *slog.Logger
}

// NewSnippetHandler creates a new SnippetHandler.
func NewSnippetHandler(svc *service.SnippetService, cfg *admin.SnippetAdmin, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{
		service: svc,
		admin:   cfg,
		logger:  logger,
	}
}

// SnippetList is the body of GET /api/snippets.
type SnippetList struct {
	Items  []model.Snippet `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// HandleList returns a page of snippets in admin order.
//
// HTTP: GET /api/snippets?limit=20&offset=0&q=footer
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if !h.admin.HasViewPermission(currentUser(r)) {
		writeError(w, apperror.Forbidden("you do not have permission to view snippets"))
		return
	}

	limit, err := queryInt(r, "limit", service.DefaultListLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	limit = min(max(limit, 1), service.MaxListLimit)

	opts := repository.ListOptions{
		Limit:        limit,
		Offset:       offset,
		Search:       strings.TrimSpace(r.URL.Query().Get("q")),
		SearchFields: h.admin.SearchFields(),
		OrderBy:      h.admin.Ordering(),
	}

	snippets, err := h.service.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("api: listing snippets", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	total, err := h.service.Count(r.Context(), opts)
	if err != nil {
		h.logger.Error("api: counting snippets", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	if snippets == nil {
		snippets = []model.Snippet{}
	}
	writeJSON(w, http.StatusOK, SnippetList{
		Items:  snippets,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// HandleGetByID returns a single snippet.
//
// HTTP: GET /api/snippets/{id}
func (h *SnippetHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	if !h.admin.HasViewPermission(currentUser(r)) {
		writeError(w, apperror.Forbidden("you do not have permission to view snippets"))
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, apperror.ValidationFailed("id", "snippet ID must be a positive number"))
		return
	}

	snippet, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snippet)
}
