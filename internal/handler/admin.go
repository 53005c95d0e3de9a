// Package handler contains the HTTP handlers: the HTML snippet admin, the
// login pages and the read-only JSON API.
//
// ADMIN REQUEST FLOW:
//
//	GET  form  → render change_form.html with the stored values
//	POST form  → readForm → SnippetService.Create/Update
//	             ├─ validation or conflict → re-render with errors (400)
//	             ├─ body over maxFormBytes → re-render with errors (413)
//	             └─ success → SnippetSaved hook → 302 to the changelist
//
// Redirecting after a successful POST means a browser refresh repeats the GET
// of the changelist, not the save.
//
// PERMISSIONS:
// RequireStaff only lets staff in. Each handler then asks admin.SnippetAdmin
// about the specific action (view, add, change, delete) and renders
// forbidden.html with 403 when the answer is no.
package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sakif/snippetcms/internal/admin"
	"github.com/sakif/snippetcms/internal/apperror"
	"github.com/sakif/snippetcms/internal/auth"
	"github.com/sakif/snippetcms/internal/model"
	"github.com/sakif/snippetcms/internal/repository"
	"github.com/sakif/snippetcms/internal/service"
	"github.com/sakif/snippetcms/web"
)

const (
	// ChangelistPath is where the admin lands and where missing snippets
	// redirect to.
	ChangelistPath = "/admin/snippets/"

	// ChangelistPerPage is the changelist page size.
	ChangelistPerPage = 100
)

// AdminHandler serves the HTML snippet admin. Every route expects
// auth.LoadUser and auth.RequireStaff to have run.
//
//	GET       /admin/snippets/                 → changelist
//	GET|POST  /admin/snippets/add/             → add form
//	GET|POST  /admin/snippets/{id}/change/     → change form
//	GET|POST  /admin/snippets/{id}/delete/     → delete confirmation
//	GET       /admin/snippets/{id}/preview/    → rendered preview
type AdminHandler struct {
	snippets *service.SnippetService
	admin    *admin.SnippetAdmin
	pages    *web.Templates
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	snippets *service.SnippetService,
	cfg *admin.SnippetAdmin,
	pages *web.Templates,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		snippets: snippets,
		admin:    cfg,
		pages:    pages,
		logger:   logger,
	}
}

// Routes returns the admin routes, to be mounted at /admin/snippets.
func (h *AdminHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.HandleChangelist)
	r.Get("/add/", h.HandleAdd)
	r.Post("/add/", h.HandleAdd)
	r.Route("/{snippetID:[0-9]+}", func(r chi.Router) {
		r.Get("/change/", h.HandleChange)
		r.Post("/change/", h.HandleChange)
		r.Get("/delete/", h.HandleDelete)
		r.Post("/delete/", h.HandleDelete)
		r.Get("/preview/", h.HandlePreview)
	})
	return r
}

type pageMeta struct {
	Title string
	User  *model.User
}

type column struct {
	Name  string
	Label string
}

type cell struct {
	Value string
	Link  string
}

type row struct {
	Cells      []cell
	PreviewURL string
}

type changelistPage struct {
	pageMeta
	Columns      []column
	Rows         []row
	ColSpan      int
	Query        string
	SearchFields []string
	Total        int
	Page         int
	Pages        int
	PrevURL      string
	NextURL      string
	CanAdd       bool
}

type snippetForm struct {
	Name string
	Slug string
	HTML string
}

type changeFormPage struct {
	pageMeta
	Snippet   *model.Snippet // nil on the add form
	Form      snippetForm
	Errors    map[string]string
	Action    string
	ShowSlug  bool
	SlugFrom  string
	Attrs     map[string]string
	ReadOnly  bool
	CanDelete bool
}

type snippetPage struct {
	pageMeta
	Snippet *model.Snippet
}

type forbiddenPage struct {
	pageMeta
	Message string
}

var labelCaser = cases.Title(language.English)

func columnLabel(name string) string {
	if name == "html" {
		return "HTML"
	}
	return labelCaser.String(strings.ReplaceAll(name, "_", " "))
}

func changeURL(id int64) string {
	return ChangelistPath + strconv.FormatInt(id, 10) + "/change/"
}

func previewURL(id int64) string {
	return ChangelistPath + strconv.FormatInt(id, 10) + "/preview/"
}

// HandleChangelist lists snippets with the configured columns, search
// fields and ordering.
//
// HTTP: GET /admin/snippets/?q=<search>&p=<page>
func (h *AdminHandler) HandleChangelist(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if !h.admin.HasViewPermission(user) {
		h.forbidden(w, r, "You do not have permission to view snippets.")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	page, err := queryInt(r, "p", 1)
	if err != nil || page < 1 {
		page = 1
	}

	opts := repository.ListOptions{
		Search:       query,
		SearchFields: h.admin.SearchFields(),
		OrderBy:      h.admin.Ordering(),
	}

	total, err := h.snippets.Count(r.Context(), opts)
	if err != nil {
		h.serverError(w, r, "counting snippets", err)
		return
	}

	pages := max(1, (total+ChangelistPerPage-1)/ChangelistPerPage)
	page = min(page, pages)
	opts.Limit = ChangelistPerPage
	opts.Offset = (page - 1) * ChangelistPerPage

	snippets, err := h.snippets.List(r.Context(), opts)
	if err != nil {
		h.serverError(w, r, "listing snippets", err)
		return
	}

	display := h.admin.ListDisplay()
	links := h.admin.ListDisplayLinks(display)

	data := changelistPage{
		pageMeta:     pageMeta{Title: "Select snippet to change", User: user},
		Query:        query,
		SearchFields: h.admin.SearchFields(),
		Total:        total,
		Page:         page,
		Pages:        pages,
		ColSpan:      len(display) + 1,
		CanAdd:       h.admin.HasAddPermission(user),
	}
	for _, name := range display {
		data.Columns = append(data.Columns, column{Name: name, Label: columnLabel(name)})
	}
	for i := range snippets {
		s := &snippets[i]
		rw := row{PreviewURL: previewURL(s.ID)}
		for _, name := range display {
			c := cell{Value: h.admin.Column(r.Context(), name, s)}
			if slices.Contains(links, name) {
				c.Link = changeURL(s.ID)
			}
			rw.Cells = append(rw.Cells, c)
		}
		data.Rows = append(data.Rows, rw)
	}
	if page > 1 {
		data.PrevURL = changelistPageURL(query, page-1)
	}
	if page < pages {
		data.NextURL = changelistPageURL(query, page+1)
	}

	h.render(w, r, http.StatusOK, web.PageChangelist, data)
}

func changelistPageURL(query string, page int) string {
	v := url.Values{}
	if query != "" {
		v.Set("q", query)
	}
	v.Set("p", strconv.Itoa(page))
	return ChangelistPath + "?" + v.Encode()
}

// HandleAdd shows and processes the add form.
//
// HTTP: GET|POST /admin/snippets/add/
func (h *AdminHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if !h.admin.HasAddPermission(user) {
		h.forbidden(w, r, "You do not have permission to add snippets.")
		return
	}

	data := h.formPage(user, nil)
	data.Title = "Add snippet"
	data.Action = ChangelistPath + "add/"

	if r.Method != http.MethodPost {
		h.render(w, r, http.StatusOK, web.PageChangeForm, data)
		return
	}

	form, err := h.readForm(w, r)
	if err != nil {
		h.formReadError(w, r, data, err)
		return
	}
	data.Form = form
	snippet, err := h.snippets.Create(r.Context(), data.Form.Name, data.Form.Slug, data.Form.HTML)
	if err != nil {
		h.formError(w, r, data, err)
		return
	}

	h.saved(r, snippet, user, true)
	http.Redirect(w, r, ChangelistPath, http.StatusFound)
}

// HandleChange shows a snippet and, with the change permission, saves edits.
// Users holding only the view permission get a read-only form.
//
// HTTP: GET|POST /admin/snippets/{snippetID}/change/
func (h *AdminHandler) HandleChange(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if !h.admin.HasViewPermission(user) {
		h.forbidden(w, r, "You do not have permission to view snippets.")
		return
	}

	snippet, ok := h.loadSnippet(w, r)
	if !ok {
		return
	}

	data := h.formPage(user, snippet)
	data.Title = "Change snippet"
	data.Action = changeURL(snippet.ID)
	data.ReadOnly = !h.admin.HasChangePermission(user)
	if data.ReadOnly {
		data.Title = "View snippet"
	}

	if r.Method != http.MethodPost {
		h.render(w, r, http.StatusOK, web.PageChangeForm, data)
		return
	}
	if data.ReadOnly {
		h.forbidden(w, r, "You do not have permission to change snippets.")
		return
	}

	form, err := h.readForm(w, r)
	if err != nil {
		h.formReadError(w, r, data, err)
		return
	}
	data.Form = form
	slugValue := data.Form.Slug
	if !h.admin.ShowSlugField() {
		slugValue = snippet.Slug
	}
	updated, err := h.snippets.Update(r.Context(), snippet.ID, data.Form.Name, slugValue, data.Form.HTML)
	if err != nil {
		h.formError(w, r, data, err)
		return
	}

	h.saved(r, updated, user, false)
	http.Redirect(w, r, ChangelistPath, http.StatusFound)
}

// HandleDelete asks for confirmation and deletes on POST.
//
// HTTP: GET|POST /admin/snippets/{snippetID}/delete/
func (h *AdminHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	snippet, ok := h.loadSnippet(w, r)
	if !ok {
		return
	}

	if !h.admin.HasDeletePermission(user, snippet) {
		h.forbidden(w, r, "You do not have permission to delete this snippet.")
		return
	}

	if r.Method != http.MethodPost {
		h.render(w, r, http.StatusOK, web.PageDeleteConfirm, snippetPage{
			pageMeta: pageMeta{Title: "Delete snippet", User: user},
			Snippet:  snippet,
		})
		return
	}

	if err := h.snippets.Delete(r.Context(), snippet.ID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			http.Redirect(w, r, ChangelistPath, http.StatusFound)
			return
		}
		h.serverError(w, r, "deleting snippet", err)
		return
	}

	h.logger.Info("snippet deleted in admin",
		slog.Int64("id", snippet.ID),
		slog.String("userID", user.ID),
	)
	http.Redirect(w, r, ChangelistPath, http.StatusFound)
}

// HandlePreview renders a snippet's HTML inside a sandboxed iframe.
// A snippet that does not exist redirects to the changelist. Like the
// changelist, it needs the view or change permission.
//
// HTTP: GET /admin/snippets/{snippetID}/preview/
func (h *AdminHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	if !h.admin.HasViewPermission(currentUser(r)) {
		h.forbidden(w, r, "You do not have permission to view snippets.")
		return
	}

	snippet, ok := h.loadSnippet(w, r)
	if !ok {
		return
	}

	h.render(w, r, http.StatusOK, web.PagePreview, snippetPage{
		pageMeta: pageMeta{Title: "Preview: " + snippet.Name, User: currentUser(r)},
		Snippet:  snippet,
	})
}

// loadSnippet resolves the {snippetID} URL parameter. When the snippet does
// not exist it redirects to the changelist and returns false.
func (h *AdminHandler) loadSnippet(w http.ResponseWriter, r *http.Request) (*model.Snippet, bool) {
	raw := chi.URLParam(r, "snippetID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.logger.Debug("snippet id not resolvable", slog.String("snippetID", raw))
		http.Redirect(w, r, ChangelistPath, http.StatusFound)
		return nil, false
	}

	snippet, err := h.snippets.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			h.logger.Debug("snippet not found", slog.Int64("id", id))
			http.Redirect(w, r, ChangelistPath, http.StatusFound)
			return nil, false
		}
		h.serverError(w, r, "loading snippet", err)
		return nil, false
	}
	return snippet, true
}

func (h *AdminHandler) formPage(user *model.User, snippet *model.Snippet) changeFormPage {
	data := changeFormPage{
		pageMeta: pageMeta{User: user},
		Snippet:  snippet,
		ShowSlug: h.admin.ShowSlugField(),
		SlugFrom: strings.Join(h.admin.PrepopulatedFields()["slug"], " "),
		Attrs:    h.admin.TextAreaAttrs(),
	}
	if snippet != nil {
		data.Form = snippetForm{Name: snippet.Name, Slug: snippet.Slug, HTML: snippet.HTML}
		data.CanDelete = h.admin.HasDeletePermission(user, snippet)
	}
	return data
}

// maxFormBytes leaves room for the other fields next to a maximal HTML body.
const maxFormBytes = service.MaxHTMLLength + 64<<10

func (h *AdminHandler) readForm(w http.ResponseWriter, r *http.Request) (snippetForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return snippetForm{}, err
	}

	f := snippetForm{
		Name: r.PostFormValue("name"),
		HTML: r.PostFormValue("html"),
	}
	if h.admin.ShowSlugField() {
		f.Slug = r.PostFormValue("slug")
	}
	return f, nil
}

// formReadError re-renders the form when the request body could not be
// parsed: 413 when it exceeded maxFormBytes, 400 otherwise.
func (h *AdminHandler) formReadError(w http.ResponseWriter, r *http.Request, data changeFormPage, err error) {
	h.logger.Warn("admin form unreadable",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)

	status := http.StatusBadRequest
	data.Errors = map[string]string{"html": "The submitted form could not be read."}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
		data.Errors["html"] = fmt.Sprintf("The submitted form is larger than %d bytes.", tooLarge.Limit)
	}
	h.render(w, r, status, web.PageChangeForm, data)
}

// formError re-renders the form with field errors for validation failures
// and conflicts, and returns a 500 for anything else.
func (h *AdminHandler) formError(w http.ResponseWriter, r *http.Request, data changeFormPage, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) ||
		!(errors.Is(err, apperror.ErrValidation) || errors.Is(err, apperror.ErrConflict)) {
		h.serverError(w, r, "saving snippet", err)
		return
	}

	field := appErr.Field
	if field == "" {
		field = "name"
	}
	data.Errors = map[string]string{field: appErr.Message}
	if !data.ShowSlug && field == "slug" {
		data.Errors = map[string]string{"name": appErr.Message}
	}
	h.render(w, r, http.StatusBadRequest, web.PageChangeForm, data)
}

func (h *AdminHandler) saved(r *http.Request, snippet *model.Snippet, user *model.User, created bool) {
	if err := h.admin.SnippetSaved(r.Context(), snippet, user, created); err != nil {
		h.logger.Error("versioning extension rejected save",
			slog.Int64("id", snippet.ID),
			slog.Bool("created", created),
			slog.String("error", err.Error()),
		)
	}
}

func (h *AdminHandler) forbidden(w http.ResponseWriter, r *http.Request, message string) {
	h.logger.Warn("admin permission denied",
		slog.String("path", r.URL.Path),
		slog.String("userID", currentUserID(r)),
	)
	h.render(w, r, http.StatusForbidden, web.PageForbidden, forbiddenPage{
		pageMeta: pageMeta{Title: "Permission denied", User: currentUser(r)},
		Message:  message,
	})
}

func (h *AdminHandler) serverError(w http.ResponseWriter, r *http.Request, action string, err error) {
	h.logger.Error("admin request failed",
		slog.String("action", action),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

func (h *AdminHandler) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	if err := h.pages.Render(w, status, page, data); err != nil {
		h.serverError(w, r, "rendering "+page, err)
	}
}

func currentUser(r *http.Request) *model.User {
	user, _ := auth.UserFromContext(r.Context())
	return user
}

func currentUserID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}
