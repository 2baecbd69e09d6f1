package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Movie is one playable catalog item inside a category.
type Movie struct {
	Name      string `json:"name,omitempty"`
	Title     string `json:"title,omitempty"`
	Path      string `json:"path,omitempty"`
	ID        string `json:"id,omitempty"`
	File      string `json:"file,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Year      string `json:"year,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	DateAdded string `json:"date_added,omitempty"`
}

// DisplayTitle returns the first non-empty title-ish field.
func (m Movie) DisplayTitle() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Title
}

// PlayPath returns the identifier used to start playback.
func (m Movie) PlayPath() string {
	switch {
	case m.ID != "":
		return m.ID
	case m.Path != "":
		return m.Path
	default:
		return m.File
	}
}

// Episode is one series episode; series are grouped by name server-side.
type Episode struct {
	Name      string `json:"name,omitempty"`
	Title     string `json:"title,omitempty"`
	SerieName string `json:"serie_name,omitempty"`
	Path      string `json:"path,omitempty"`
	ID        string `json:"id,omitempty"`
	File      string `json:"file,omitempty"`
	Filename  string `json:"filename,omitempty"`
}

// Category is one named movie group, order preserved from the server.
type Category struct {
	Name   string  `json:"name"`
	Movies []Movie `json:"movies"`
}

// Catalog is the full categorized movie list plus grouped series.
type Catalog struct {
	Categories []Category           `json:"categorias"`
	Series     map[string][]Episode `json:"series"`
}

// UnmarshalJSON decodes the server payload, accepting "categorias" both as an
// ordered list of [name, movies] pairs and as a plain object map.
func (c *Catalog) UnmarshalJSON(data []byte) error {
	var raw struct {
		Categorias json.RawMessage      `json:"categorias"`
		Series     map[string][]Episode `json:"series"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Series = raw.Series
	c.Categories = nil
	if len(raw.Categorias) == 0 {
		return nil
	}

	var pairs [][2]json.RawMessage
	if err := json.Unmarshal(raw.Categorias, &pairs); err == nil {
		for _, pair := range pairs {
			var cat Category
			if err := json.Unmarshal(pair[0], &cat.Name); err != nil {
				return fmt.Errorf("decode category name: %w", err)
			}
			if err := json.Unmarshal(pair[1], &cat.Movies); err != nil {
				return fmt.Errorf("decode category %q movies: %w", cat.Name, err)
			}
			c.Categories = append(c.Categories, cat)
		}
		return nil
	}

	var byName map[string][]Movie
	if err := json.Unmarshal(raw.Categorias, &byName); err != nil {
		return fmt.Errorf("decode categories: %w", err)
	}
	for name, movies := range byName {
		c.Categories = append(c.Categories, Category{Name: name, Movies: movies})
	}
	sort.Slice(c.Categories, func(i, j int) bool {
		return c.Categories[i].Name < c.Categories[j].Name
	})
	return nil
}

// IsEmpty reports whether the catalog has no movies and no series.
func (c Catalog) IsEmpty() bool {
	return len(c.Categories) == 0 && len(c.Series) == 0
}
