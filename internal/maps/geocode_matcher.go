// README: Gazetteer-backed city matcher using the Google Maps Geocoding API, with a lexical fallback.
package maps

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"googlemaps.github.io/maps"

	"wayfarer/internal/modules/extract"
)

const (
	placeTTL       = 24 * time.Hour
	placeCleanup   = time.Hour
	maxWarmLookups = 4
)

// cityTypes are the geocoder result types accepted as a city.
var cityTypes = map[string]bool{
	"locality":    true,
	"postal_town": true,
}

// Geocoder is the subset of *maps.Client the matcher needs.
type Geocoder interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

type place struct {
	name    string
	placeID string
	city    bool
}

// GeocodeMatcher confirms city-like tokens against the geocoder. Normalize never blocks on the
// network: well-known cities and cached places are answered directly, and any other token gets
// the lexical decision while a background lookup fills the cache for later turns.
type GeocodeMatcher struct {
	geo     Geocoder
	lexical *extract.LexicalMatcher
	timeout time.Duration
	logger  *zap.Logger

	places *cache.Cache
	group  singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	warm   chan struct{}
	wg     sync.WaitGroup
}

// NewGeocodeMatcher creates a matcher backed by a maps client for apiKey.
func NewGeocodeMatcher(apiKey string, logger *zap.Logger) (*GeocodeMatcher, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return NewGeocodeMatcherWith(client, logger), nil
}

// NewGeocodeMatcherWith wraps an existing geocoder.
func NewGeocodeMatcherWith(geo Geocoder, logger *zap.Logger) *GeocodeMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GeocodeMatcher{
		geo:     geo,
		lexical: extract.NewLexicalMatcher(),
		timeout: 2 * time.Second,
		logger:  logger.Named("geocode"),
		places:  cache.New(placeTTL, placeCleanup),
		ctx:     ctx,
		cancel:  cancel,
		warm:    make(chan struct{}, maxWarmLookups),
	}
}

func (m *GeocodeMatcher) Normalize(raw string) (string, bool) {
	name, ok := m.lexical.Normalize(raw)
	if !ok {
		return "", false
	}
	if m.lexical.Known(name) {
		return name, true
	}
	if p, hit := m.cached(name); hit {
		if !p.city {
			return "", false
		}
		return p.name, true
	}
	m.schedule(name)
	return name, true
}

// Known never calls the geocoder; it only trusts the built-in list and earlier confirmed lookups.
func (m *GeocodeMatcher) Known(token string) bool {
	if m.lexical.Known(token) {
		return true
	}
	p, ok := m.cached(token)
	return ok && p.city
}

// Same compares place IDs when both names were confirmed by the geocoder, and falls back to
// the lexical comparison on the resolved names otherwise.
func (m *GeocodeMatcher) Same(a, b string) bool {
	if extract.SameCity(a, b) {
		return true
	}
	pa, pb := m.resolve(a), m.resolve(b)
	if pa.placeID != "" && pb.placeID != "" {
		return pa.placeID == pb.placeID
	}
	return extract.SameCity(pa.name, pb.name)
}

// Lookup asks the geocoder whether name is a city and returns its canonical form. It honors ctx
// on top of the matcher's own timeout.
func (m *GeocodeMatcher) Lookup(ctx context.Context, name string) (string, bool, error) {
	p, err := m.lookup(ctx, name)
	if err != nil {
		return "", false, err
	}
	return p.name, p.city, nil
}

// lookup reuses a cached answer and shares concurrent requests for the same key. Errors are not cached.
func (m *GeocodeMatcher) lookup(ctx context.Context, name string) (place, error) {
	key := cacheKey(name)
	if p, ok := m.cached(name); ok {
		return p, nil
	}
	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		results, err := m.geo.Geocode(ctx, &maps.GeocodingRequest{Address: name, Language: "en"})
		if err != nil && !strings.Contains(err.Error(), "ZERO_RESULTS") {
			return place{}, fmt.Errorf("geocode api error: %w", err)
		}
		p := place{name: name}
		for _, r := range results {
			if city, ok := cityName(r); ok {
				p = place{name: city, placeID: r.PlaceID, city: true}
				break
			}
		}
		m.places.SetDefault(key, p)
		if p.city {
			m.places.SetDefault(cacheKey(p.name), p)
		}
		return p, nil
	})
	if err != nil {
		return place{}, err
	}
	return v.(place), nil
}

// Wait blocks until every scheduled background lookup has finished.
func (m *GeocodeMatcher) Wait() {
	m.wg.Wait()
}

// Close cancels in-flight lookups and waits for them to return.
func (m *GeocodeMatcher) Close() {
	m.cancel()
	m.wg.Wait()
}

// schedule starts a background lookup unless the warm pool is full; a later miss retries.
func (m *GeocodeMatcher) schedule(name string) {
	if m.ctx.Err() != nil {
		return
	}
	select {
	case m.warm <- struct{}{}:
	default:
		m.logger.Debug("geocode pool busy, skipping lookup", zap.String("name", name))
		return
	}
	m.wg.Add(1)
	go func() {
		defer func() {
			<-m.warm
			m.wg.Done()
		}()
		if _, err := m.lookup(m.ctx, name); err != nil {
			m.logger.Warn("geocode failed, keeping lexical match", zap.String("name", name), zap.Error(err))
		}
	}()
}

func (m *GeocodeMatcher) cached(name string) (place, bool) {
	v, ok := m.places.Get(cacheKey(name))
	if !ok {
		return place{}, false
	}
	return v.(place), true
}

// resolve maps a raw name to the best place known without a network call.
func (m *GeocodeMatcher) resolve(raw string) place {
	if p, ok := m.cached(raw); ok && p.city {
		return p
	}
	name, ok := m.lexical.Normalize(raw)
	if !ok {
		return place{name: raw}
	}
	if p, ok := m.cached(name); ok && p.city {
		return p
	}
	return place{name: name}
}

func cityName(r maps.GeocodingResult) (string, bool) {
	isCity := false
	for _, t := range r.Types {
		if cityTypes[t] {
			isCity = true
		}
	}
	if !isCity {
		return "", false
	}
	for _, c := range r.AddressComponents {
		for _, t := range c.Types {
			if cityTypes[t] {
				return c.LongName, true
			}
		}
	}
	return "", false
}

func cacheKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
