package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"media-optimizer/internal/api"
	"media-optimizer/internal/domain"
)

const (
	catalogCacheKey = "catalog"

	// CatalogTTL bounds how long a cached catalog is served without refetch.
	CatalogTTL = 5 * time.Minute
	// ArtworkTTL bounds thumbnail and poster URL cache entries.
	ArtworkTTL = 24 * time.Hour
)

// ErrNoArtwork is returned when the server has no artwork for an item; the
// caller renders its default placeholder instead.
var ErrNoArtwork = errors.New("no artwork available")

// apiClient is the server surface the service consumes.
type apiClient interface {
	GetMovies(ctx context.Context, refresh bool) (domain.Catalog, error)
	MovieThumbnail(ctx context.Context, title, year, filename string) (string, error)
	SeriePoster(ctx context.Context, name string) (string, error)
}

// kvCache is the TTL store surface the service persists through.
type kvCache interface {
	GetJSON(key string, v any) (bool, error)
	SetJSON(key string, v any, ttl time.Duration) error
	Delete(key string) error
}

// Service loads the movie/series catalog cache-first and resolves artwork
// URLs with long-lived per-title caching.
type Service struct {
	client     apiClient
	cache      kvCache
	logger     *slog.Logger
	refreshing atomic.Bool
}

// NewService creates a catalog service over the given client and cache.
func NewService(client apiClient, cache kvCache) *Service {
	return &Service{client: client, cache: cache, logger: slog.Default()}
}

// Load returns the catalog. Without force, a fresh enough cached copy is
// served immediately and a background refresh keeps it warm; otherwise the
// server is asked to rebuild and the cache is replaced.
func (s *Service) Load(ctx context.Context, force bool) (domain.Catalog, error) {
	if !force {
		var cached domain.Catalog
		found, err := s.cache.GetJSON(catalogCacheKey, &cached)
		if err != nil {
			s.logger.Warn("catalog cache read failed", "error", err)
		}
		if found {
			go s.refreshInBackground()
			return cached, nil
		}
	}

	catalog, err := s.client.GetMovies(ctx, force)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("load catalog: %w", err)
	}

	if err := s.cache.SetJSON(catalogCacheKey, catalog, CatalogTTL); err != nil {
		s.logger.Warn("catalog cache write failed", "error", err)
	}
	return catalog, nil
}

// Invalidate drops the cached catalog so the next Load hits the server.
func (s *Service) Invalidate() {
	if err := s.cache.Delete(catalogCacheKey); err != nil {
		s.logger.Warn("catalog cache invalidate failed", "error", err)
	}
}

// refreshInBackground refetches the catalog once and replaces the cache.
// Only one refresh runs at a time; failures keep the existing cache.
func (s *Service) refreshInBackground() {
	if !s.refreshing.CompareAndSwap(false, true) {
		return
	}
	defer s.refreshing.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	catalog, err := s.client.GetMovies(ctx, true)
	if err != nil {
		s.logger.Warn("background catalog refresh failed", "error", err)
		return
	}
	if err := s.cache.SetJSON(catalogCacheKey, catalog, CatalogTTL); err != nil {
		s.logger.Warn("catalog cache write failed", "error", err)
	}
}

// cachedArtwork is the per-title cache payload.
type cachedArtwork struct {
	URL string `json:"url"`
}

var yearPattern = regexp.MustCompile(`\s*\(?\d{4}\)?\s*`)

// cleanTitle strips embedded "(2010)"-style year tokens for lookups.
func cleanTitle(title string) string {
	return strings.TrimSpace(yearPattern.ReplaceAllString(title, ""))
}

// ThumbnailURL resolves a movie's thumbnail, preferring the catalog-supplied
// URL, then the 24h cache, then the server lookup.
func (s *Service) ThumbnailURL(ctx context.Context, movie domain.Movie) (string, error) {
	if movie.Thumbnail != "" {
		return movie.Thumbnail, nil
	}

	title := cleanTitle(movie.DisplayTitle())
	if title == "" {
		return "", ErrNoArtwork
	}

	year := movie.Year
	if year == "" {
		year = "no-year"
	}
	key := "thumb_" + title + "_" + year

	var cached cachedArtwork
	if found, err := s.cache.GetJSON(key, &cached); err == nil && found {
		return cached.URL, nil
	}

	url, err := s.client.MovieThumbnail(ctx, title, movie.Year, movie.Filename)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return "", ErrNoArtwork
		}
		return "", fmt.Errorf("thumbnail lookup %q: %w", title, err)
	}

	if err := s.cache.SetJSON(key, cachedArtwork{URL: url}, ArtworkTTL); err != nil {
		s.logger.Warn("thumbnail cache write failed", "title", title, "error", err)
	}
	return url, nil
}

// PosterURL resolves a series poster with the same cache discipline.
func (s *Service) PosterURL(ctx context.Context, serieName string) (string, error) {
	serieName = strings.TrimSpace(serieName)
	if serieName == "" {
		return "", ErrNoArtwork
	}

	key := "serie_poster_" + strings.ToLower(strings.ReplaceAll(serieName, " ", "_"))

	var cached cachedArtwork
	if found, err := s.cache.GetJSON(key, &cached); err == nil && found {
		return cached.URL, nil
	}

	url, err := s.client.SeriePoster(ctx, serieName)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return "", ErrNoArtwork
		}
		return "", fmt.Errorf("poster lookup %q: %w", serieName, err)
	}

	if err := s.cache.SetJSON(key, cachedArtwork{URL: url}, ArtworkTTL); err != nil {
		s.logger.Warn("poster cache write failed", "serie", serieName, "error", err)
	}
	return url, nil
}

// FormatCategoryName turns a raw category path into a display label:
// the last path segment, underscores as spaces, words capitalized.
func FormatCategoryName(raw string) string {
	name := raw
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.ReplaceAll(name, "_", " ")

	words := strings.Fields(name)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
