// Package seed loads snippet fixtures from a YAML file at startup.
//
// The file format is
//
//	snippets:
//	  - name: Footer
//	    slug: footer
//	    html: <footer>...</footer>
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sakif/snippetcms/internal/apperror"
	"github.com/sakif/snippetcms/internal/model"
	"github.com/sakif/snippetcms/internal/slug"
)

// Entry is one fixture snippet.
type Entry struct {
	Name string `yaml:"name"`
	Slug string `yaml:"slug,omitempty"`
	HTML string `yaml:"html"`
}

// File is the top-level fixture document.
type File struct {
	Snippets []Entry `yaml:"snippets"`
}

// Store is the part of the snippet service the loader writes through.
type Store interface {
	Create(ctx context.Context, name, slug, html string) (*model.Snippet, error)
	GetBySlug(ctx context.Context, slug string) (*model.Snippet, error)
	GetByName(ctx context.Context, name string) (*model.Snippet, error)
}

// Parse decodes a fixture document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("seed: decoding: %w", err)
	}
	for i, e := range f.Snippets {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("seed: snippet %d has no name", i)
		}
	}
	return &f, nil
}

// LoadFile reads and parses the fixture file at path.
func LoadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

// Loader creates fixture snippets that are not present yet.
type Loader struct {
	store  Store
	byName bool
	logger *slog.Logger
}

// NewLoader returns a Loader. With byName set, presence is decided by
// snippet name instead of slug; used while a versioning extension owns the
// snippet identity.
func NewLoader(store Store, byName bool, logger *slog.Logger) *Loader {
	return &Loader{store: store, byName: byName, logger: logger}
}

// Apply creates every entry of f that is missing and returns how many were
// created.
func (l *Loader) Apply(ctx context.Context, f *File) (int, error) {
	created := 0
	for _, e := range f.Snippets {
		exists, err := l.exists(ctx, e)
		if err != nil {
			return created, err
		}
		if exists {
			l.logger.Debug("seed snippet already present", slog.String("name", e.Name))
			continue
		}

		s, err := l.store.Create(ctx, e.Name, e.Slug, e.HTML)
		if err != nil {
			return created, fmt.Errorf("seed: creating %q: %w", e.Name, err)
		}
		created++
		l.logger.Info("seed snippet created", slog.Int64("id", s.ID), slog.String("name", s.Name))
	}
	return created, nil
}

// ApplyFile loads path and applies it.
func (l *Loader) ApplyFile(ctx context.Context, path string) (int, error) {
	f, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	return l.Apply(ctx, f)
}

func (l *Loader) exists(ctx context.Context, e Entry) (bool, error) {
	if l.byName {
		name := strings.TrimSpace(e.Name)
		_, err := l.store.GetByName(ctx, name)
		return present(name, err)
	}

	key := strings.TrimSpace(e.Slug)
	if key == "" {
		key = slug.Make(e.Name)
	}
	if key == "" {
		return false, nil
	}
	_, err := l.store.GetBySlug(ctx, key)
	return present(key, err)
}

// present interprets the error of a lookup by key.
func present(key string, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperror.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("seed: looking up %q: %w", key, err)
	}
}
