package profiles

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"media-optimizer/internal/domain"
)

// builtinCatalog mirrors the server's fallback preset table so the picker
// still renders when the profiles endpoint is unreachable.
var builtinCatalog = []domain.Profile{
	{
		Key:         "ultra_fast",
		Name:        "Ultra Fast",
		Description: "Maximum speed, lowest quality.",
		Preset:      "ultrafast",
		CRF:         28,
		Resolution:  "480p",
	},
	{
		Key:         "fast",
		Name:        "Fast",
		Description: "Quick encode with medium-low quality.",
		Preset:      "veryfast",
		CRF:         26,
		Resolution:  "540p",
	},
	{
		Key:         "balanced",
		Name:        "Balanced",
		Description: "Good quality/speed trade-off.",
		Preset:      "medium",
		CRF:         23,
		Resolution:  "720p",
	},
	{
		Key:         "high_quality",
		Name:        "High Quality",
		Description: "High quality, slower encode.",
		Preset:      "slow",
		CRF:         20,
		Resolution:  "1080p",
	},
	{
		Key:         "master",
		Name:        "Master",
		Description: "Near-original quality, very slow.",
		Preset:      "veryslow",
		CRF:         18,
		Resolution:  "Original",
	},
}

// displayOrder ranks the known keys so the picker order is stable.
var displayOrder = func() map[string]int {
	order := make(map[string]int, len(builtinCatalog))
	for i, profile := range builtinCatalog {
		order[profile.Key] = i
	}
	return order
}()

// fetcher is the server surface the catalog loads profiles from.
type fetcher interface {
	Profiles(ctx context.Context) (map[string]domain.Profile, error)
}

// Catalog serves transcoding profiles, fetched once from the server with the
// built-in presets as fallback.
type Catalog struct {
	mu     sync.Mutex
	client fetcher
	logger *slog.Logger
	loaded []domain.Profile
}

// NewCatalog creates an unloaded profile catalog.
func NewCatalog(client fetcher) *Catalog {
	return &Catalog{client: client, logger: slog.Default()}
}

// Load returns the profile list, fetching from the server on first use.
// A fetch failure is non-fatal and yields the built-in presets.
func (c *Catalog) Load(ctx context.Context) []domain.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded != nil {
		return append([]domain.Profile(nil), c.loaded...)
	}

	fetched, err := c.client.Profiles(ctx)
	if err != nil || len(fetched) == 0 {
		if err != nil {
			c.logger.Warn("profile fetch failed, using built-in presets", "error", err)
		}
		return Builtin()
	}

	profiles := make([]domain.Profile, 0, len(fetched))
	for _, profile := range fetched {
		profiles = append(profiles, profile)
	}
	sortProfiles(profiles)

	c.loaded = profiles
	return append([]domain.Profile(nil), profiles...)
}

// Invalidate drops the fetched list so the next Load hits the server again.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = nil
}

// Builtin returns a copy of the fallback preset table.
func Builtin() []domain.Profile {
	return append([]domain.Profile(nil), builtinCatalog...)
}

// DisplayName resolves a profile key to its human label, falling back to the
// key itself for profiles this client does not know.
func DisplayName(key string) string {
	for _, profile := range builtinCatalog {
		if profile.Key == key {
			return profile.Name
		}
	}
	return key
}

// IsKnown reports whether key is one of the built-in profile keys.
func IsKnown(key string) bool {
	_, ok := displayOrder[key]
	return ok
}

// sortProfiles orders known keys by preset rank and unknown keys after, by key.
func sortProfiles(profiles []domain.Profile) {
	sort.Slice(profiles, func(i, j int) bool {
		ri, iKnown := displayOrder[profiles[i].Key]
		rj, jKnown := displayOrder[profiles[j].Key]
		switch {
		case iKnown && jKnown:
			return ri < rj
		case iKnown:
			return true
		case jKnown:
			return false
		default:
			return profiles[i].Key < profiles[j].Key
		}
	})
}
