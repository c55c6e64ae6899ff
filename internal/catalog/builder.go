// Package catalog synthesizes the virtual quiz collections listed on the
// browse page from the provider's category taxonomy. Nothing is persisted;
// every List call re-reads the taxonomy.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/momentumhq/momentum/internal/config"
	"github.com/momentumhq/momentum/internal/expr"
	"github.com/momentumhq/momentum/internal/templates"
	"github.com/momentumhq/momentum/internal/triviaapi"
)

const (
	SortNone         = ""
	SortAlphabetical = "alphabetical"
)

// Collection is one catalog card. ID is a quiz identifier the resolver accepts.
type Collection struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Category      string `json:"category"`
	Difficulty    string `json:"difficulty"`
	QuestionCount int    `json:"question_count"`
	Description   string `json:"description"`
	CoverURL      string `json:"cover_url"`
}

// Source supplies the taxonomy. *triviaapi.Client satisfies it.
type Source interface {
	Categories(ctx context.Context) (triviaapi.Taxonomy, error)
}

// cardData is the template context for the presentation templates.
type cardData struct {
	Category      string
	Difficulty    string
	QuestionCount int
	Subcategories []string
}

// settings is an immutable compiled snapshot of the catalog configuration.
type settings struct {
	maxCategories int
	questionCount int
	difficulties  []string
	sort          string
	filter        expr.Program
	title         *templates.Template
	description   *templates.Template
	cover         *templates.Template
	cacheControl  string
}

// Builder lists collections. Settings can be swapped at runtime with Reload
// while requests are in flight.
type Builder struct {
	source   Source
	renderer *templates.Renderer
	env      *expr.Environment
	logger   *slog.Logger
	current  atomic.Pointer[settings]
}

func NewBuilder(source Source, cfg config.CatalogConfig, logger *slog.Logger) (*Builder, error) {
	if source == nil {
		return nil, errors.New("catalog: taxonomy source required")
	}
	env, err := expr.NewEnvironment()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{
		source:   source,
		renderer: templates.NewRenderer(),
		env:      env,
		logger:   logger.With(slog.String("agent", "catalog")),
	}
	if err := b.Reload(cfg); err != nil {
		return nil, err
	}
	return b, nil
}

// Reload compiles cfg and, only if every part compiles, makes it current.
func (b *Builder) Reload(cfg config.CatalogConfig) error {
	s := &settings{
		maxCategories: cfg.MaxCategories,
		questionCount: cfg.QuestionCount,
		difficulties:  slices.Clone(cfg.Difficulties),
		sort:          strings.ToLower(strings.TrimSpace(cfg.Sort)),
		cacheControl:  CacheControl(cfg.CacheMaxAgeSeconds),
	}
	if s.maxCategories <= 0 || s.questionCount <= 0 || len(s.difficulties) == 0 {
		return errors.New("catalog: maxCategories, questionCount and difficulties must be set")
	}
	switch s.sort {
	case SortNone, SortAlphabetical:
	default:
		return fmt.Errorf("catalog: unsupported sort %q", cfg.Sort)
	}

	if strings.TrimSpace(cfg.Filter) != "" {
		program, err := b.env.Compile(cfg.Filter)
		if err != nil {
			return fmt.Errorf("catalog: filter: %w", err)
		}
		s.filter = program
	}

	var err error
	if s.title, err = b.renderer.Compile("title", cfg.TitleTemplate); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if s.description, err = b.renderer.Compile("description", cfg.DescriptionTemplate); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if s.cover, err = b.renderer.Compile("cover", cfg.CoverTemplate); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	b.current.Store(s)
	return nil
}

// CacheControl is the header value advertised on catalog responses.
func (b *Builder) CacheControl() string {
	return b.current.Load().cacheControl
}

// CacheControl formats the shared-cache hint for the given max age.
func CacheControl(maxAgeSeconds int) string {
	if maxAgeSeconds <= 0 {
		return "no-store"
	}
	return "public, s-maxage=" + strconv.Itoa(maxAgeSeconds) + ", stale-while-revalidate=60"
}

// List fetches the taxonomy and expands the selected categories into one
// collection per difficulty, category-major.
func (b *Builder) List(ctx context.Context) ([]Collection, error) {
	s := b.current.Load()

	taxonomy, err := b.source.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}

	selected := b.selectCategories(ctx, s, taxonomy)
	out := make([]Collection, 0, len(selected)*len(s.difficulties))
	for _, category := range selected {
		for _, difficulty := range s.difficulties {
			item, err := s.card(category, difficulty)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
	}
	return out, nil
}

// selectCategories applies the filter and sort, then truncates. Without a
// sort the provider's own order decides which categories survive.
func (b *Builder) selectCategories(ctx context.Context, s *settings, taxonomy triviaapi.Taxonomy) []triviaapi.Category {
	candidates := make([]triviaapi.Category, 0, len(taxonomy))
	for _, category := range taxonomy {
		if s.filter.Valid() {
			keep, err := s.filter.Match(category.Name, category.Subcategories)
			if err != nil {
				b.logger.LogAttrs(ctx, slog.LevelWarn, "catalog filter failed",
					slog.String("category", category.Name),
					slog.Any("error", err),
				)
				continue
			}
			if !keep {
				continue
			}
		}
		candidates = append(candidates, category)
	}
	if s.sort == SortAlphabetical {
		slices.SortStableFunc(candidates, func(a, b triviaapi.Category) int {
			return strings.Compare(a.Name, b.Name)
		})
	}
	if len(candidates) > s.maxCategories {
		candidates = candidates[:s.maxCategories]
	}
	return candidates
}

func (s *settings) card(category triviaapi.Category, difficulty string) (Collection, error) {
	data := cardData{
		Category:      category.Name,
		Difficulty:    difficulty,
		QuestionCount: s.questionCount,
		Subcategories: category.Subcategories,
	}
	title, err := s.title.Render(data)
	if err != nil {
		return Collection{}, fmt.Errorf("catalog: %w", err)
	}
	description, err := s.description.Render(data)
	if err != nil {
		return Collection{}, fmt.Errorf("catalog: %w", err)
	}
	cover, err := s.cover.Render(data)
	if err != nil {
		return Collection{}, fmt.Errorf("catalog: %w", err)
	}
	return Collection{
		ID:            category.Name + "|" + difficulty + "|" + strconv.Itoa(s.questionCount),
		Title:         title,
		Category:      category.Name,
		Difficulty:    difficulty,
		QuestionCount: s.questionCount,
		Description:   description,
		CoverURL:      cover,
	}, nil
}
