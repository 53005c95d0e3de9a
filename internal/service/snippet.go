// Package service contains the business logic layer of the application.
//
//	Handler (HTTP)  → parses requests, writes responses
//	Service         → validates, enforces rules, orchestrates
//	Repository      → reads/writes the database
//
// Services take repository interfaces, never concrete storage types, and
// return apperror values that handlers translate to HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/snippetcms/internal/apperror"
	"github.com/sakif/snippetcms/internal/model"
	"github.com/sakif/snippetcms/internal/repository"
	"github.com/sakif/snippetcms/internal/slug"
)

const (
	MaxSnippetNameLength = 255
	MaxHTMLLength        = 1 << 20 // 1 MiB of markup
	DefaultListLimit     = 20
	MaxListLimit         = 100
)

// SnippetService handles business logic for snippets.
//
// uniqueSlugs is true while no versioning extension is active. Slugs are
// then required, derived from the name when left blank, and must not
// collide with another snippet's slug.
type SnippetService struct {
	repo        repository.SnippetRepository
	uniqueSlugs bool
	logger      *slog.Logger
}

// NewSnippetService creates a new SnippetService.
func NewSnippetService(repo repository.SnippetRepository, uniqueSlugs bool, logger *slog.Logger) *SnippetService {
	return &SnippetService{
		repo:        repo,
		uniqueSlugs: uniqueSlugs,
		logger:      logger,
	}
}

// Create validates and saves a new snippet. html is stored verbatim.
func (s *SnippetService) Create(ctx context.Context, name, slugValue, html string) (*model.Snippet, error) {
	snippet := &model.Snippet{}
	if err := s.apply(ctx, snippet, name, slugValue, html); err != nil {
		return nil, err
	}

	create := s.repo.Create
	if s.uniqueSlugs {
		create = s.repo.CreateUniqueSlug
	}
	if err := create(ctx, snippet); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to create snippet",
			slog.String("name", snippet.Name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.Int64("id", snippet.ID),
		slog.String("name", snippet.Name),
		slog.String("slug", snippet.Slug),
	)

	return snippet, nil
}

// GetByID retrieves a snippet by its ID.
// Returns apperror.ErrNotFound if the snippet doesn't exist.
func (s *SnippetService) GetByID(ctx context.Context, id int64) (*model.Snippet, error) {
	if id <= 0 {
		return nil, apperror.ValidationFailed("id", "snippet ID must be a positive number")
	}
	return s.repo.GetByID(ctx, id)
}

// GetBySlug retrieves a snippet by slug.
func (s *SnippetService) GetBySlug(ctx context.Context, slugValue string) (*model.Snippet, error) {
	slugValue = strings.TrimSpace(slugValue)
	if slugValue == "" {
		return nil, apperror.ValidationFailed("slug", "slug is required")
	}
	return s.repo.GetBySlug(ctx, slugValue)
}

// GetByName retrieves the oldest snippet named exactly name.
func (s *SnippetService) GetByName(ctx context.Context, name string) (*model.Snippet, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "snippet name is required")
	}
	return s.repo.GetByName(ctx, name)
}

// List retrieves snippets. Limit is clamped to 1..MaxListLimit.
func (s *SnippetService) List(ctx context.Context, opts repository.ListOptions) ([]model.Snippet, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}
	if opts.Limit > MaxListLimit {
		opts.Limit = MaxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	snippets, err := s.repo.List(ctx, opts)
	if err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			return nil, err
		}
		s.logger.Error("failed to list snippets", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing snippets: %w", err)
	}

	return snippets, nil
}

// Count returns how many snippets match opts' search.
func (s *SnippetService) Count(ctx context.Context, opts repository.ListOptions) (int, error) {
	n, err := s.repo.Count(ctx, opts)
	if err != nil {
		return 0, fmt.Errorf("counting snippets: %w", err)
	}
	return n, nil
}

// Update replaces name, slug and html of an existing snippet.
func (s *SnippetService) Update(ctx context.Context, id int64, name, slugValue, html string) (*model.Snippet, error) {
	snippet, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.apply(ctx, snippet, name, slugValue, html); err != nil {
		return nil, err
	}

	update := s.repo.Update
	if s.uniqueSlugs {
		update = s.repo.UpdateUniqueSlug
	}
	if err := update(ctx, snippet); err != nil {
		if errors.Is(err, apperror.ErrConflict) || errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to update snippet",
			slog.Int64("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating snippet: %w", err)
	}

	s.logger.Info("snippet updated",
		slog.Int64("id", snippet.ID),
		slog.String("name", snippet.Name),
	)

	return snippet, nil
}

// Delete removes a snippet by its ID.
// Permission checks happen in the admin before this is called.
func (s *SnippetService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperror.ValidationFailed("id", "snippet ID must be a positive number")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("snippet deleted", slog.Int64("id", id))
	return nil
}

// apply validates the inputs and writes them into snippet.
func (s *SnippetService) apply(ctx context.Context, snippet *model.Snippet, name, slugValue, html string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperror.ValidationFailed("name", "snippet name is required")
	}
	if len(name) > MaxSnippetNameLength {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("snippet name must be %d characters or less", MaxSnippetNameLength))
	}

	if len(html) > MaxHTMLLength {
		return apperror.ValidationFailed("html",
			fmt.Sprintf("HTML must be %d bytes or less", MaxHTMLLength))
	}

	slugValue = strings.TrimSpace(slugValue)
	if slugValue == "" {
		slugValue = slug.Make(name)
	}
	if slugValue == "" && s.uniqueSlugs {
		return apperror.ValidationFailed("slug", "slug is required")
	}
	if slugValue != "" && !slug.Valid(slugValue) {
		return apperror.ValidationFailed("slug",
			"slug may only contain lowercase letters, numbers, hyphens and underscores")
	}

	// Early check for a friendly form error. The repository enforces
	// uniqueness again when writing.
	if s.uniqueSlugs {
		existing, err := s.repo.GetBySlug(ctx, slugValue)
		switch {
		case err == nil && existing.ID != snippet.ID:
			return apperror.Conflict("snippet", "slug", slugValue)
		case err != nil && !errors.Is(err, apperror.ErrNotFound):
			return fmt.Errorf("checking slug %q: %w", slugValue, err)
		}
	}

	snippet.Name = name
	snippet.Slug = slugValue
	snippet.HTML = html
	return nil
}
