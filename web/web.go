// Package web embeds the admin's HTML templates and static assets.
//
// Every page template is parsed together with templates/base.html, which
// defines the "base" layout and calls the page's "content" block.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/css/*.css static/js/*.js
var staticFS embed.FS

// Page names accepted by Render.
const (
	PageLogin         = "login.html"
	PageChangelist    = "changelist.html"
	PageChangeForm    = "change_form.html"
	PageDeleteConfirm = "delete_confirm.html"
	PageForbidden     = "forbidden.html"
	PagePreview       = "preview.html"
)

var pages = []string{
	PageLogin,
	PageChangelist,
	PageChangeForm,
	PageDeleteConfirm,
	PageForbidden,
	PagePreview,
}

// Static returns the embedded static directory, rooted so that
// "css/admin.css" resolves to static/css/admin.css.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Templates renders the embedded pages.
type Templates struct {
	pages map[string]*template.Template
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"join": strings.Join,
	}
}

// NewTemplates parses every page with the layout.
func NewTemplates() (*Templates, error) {
	t := &Templates{pages: make(map[string]*template.Template, len(pages))}
	for _, page := range pages {
		tmpl, err := template.New("base.html").Funcs(funcs()).ParseFS(
			templateFS,
			"templates/base.html",
			"templates/"+page,
		)
		if err != nil {
			return nil, fmt.Errorf("web: parsing template %s: %w", page, err)
		}
		t.pages[page] = tmpl
	}
	return t, nil
}

// RenderTo executes page with data into w.
func (t *Templates) RenderTo(w io.Writer, page string, data any) error {
	tmpl, ok := t.pages[page]
	if !ok {
		return fmt.Errorf("web: template %q not found", page)
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}

// Render executes page and writes it with the given status. The page is
// buffered so that a template error can still become a 500.
func (t *Templates) Render(w http.ResponseWriter, status int, page string, data any) error {
	var buf bytes.Buffer
	if err := t.RenderTo(&buf, page, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
