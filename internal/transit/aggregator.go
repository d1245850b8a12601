package transit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"gocommute/internal/geo"
)

// Metrics receives aggregator observations. A nil Metrics is allowed.
type Metrics interface {
	ProviderError(sourceID, op string)
	CatalogSize(n int)
}

// Options control the aggregator's caching policy.
type Options struct {
	// CatalogTTL is how long the merged stop catalog is served before it is
	// rebuilt. Zero keeps the first successful build forever; use Refresh
	// to rebuild on demand.
	CatalogTTL time.Duration
	// ArrivalsTTL caches non-empty arrival lists per stop. Zero disables it.
	ArrivalsTTL time.Duration
	Metrics     Metrics
}

// Aggregator merges every registered provider into one stop catalog and
// routes arrival queries to the provider that owns a stop.
type Aggregator struct {
	providers map[string]Provider
	order     []string // registration order, defines catalog order
	opts      Options
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	catalog []Stop
	builtAt time.Time
	built   bool
	partial bool // some provider failed during the last kept build

	// how long a partial catalog is served before it is rebuilt
	partialRetry time.Duration

	group    singleflight.Group
	arrivals *Cache[[]Arrival]
}

// NewAggregator registers providers keyed by their ID. Duplicate IDs are
// rejected.
func NewAggregator(providers []Provider, opts Options, logger *slog.Logger) (*Aggregator, error) {
	a := &Aggregator{
		providers:    make(map[string]Provider, len(providers)),
		opts:         opts,
		logger:       logger,
		now:          time.Now,
		partialRetry: time.Minute,
		arrivals:     NewCache[[]Arrival](opts.ArrivalsTTL),
	}
	for _, p := range providers {
		id := p.ID()
		if _, dup := a.providers[id]; dup {
			return nil, fmt.Errorf("duplicate transit provider %q", id)
		}
		a.providers[id] = p
		a.order = append(a.order, id)
	}
	return a, nil
}

// Sources returns the registered provider IDs, sorted.
func (a *Aggregator) Sources() []string {
	ids := make([]string, len(a.order))
	copy(ids, a.order)
	sort.Strings(ids)
	return ids
}

// Warm builds the catalog eagerly. Called once at startup.
func (a *Aggregator) Warm(ctx context.Context) {
	stops := a.Catalog(ctx)
	a.logger.Info("stop catalog warmed", "stops", len(stops), "providers", len(a.order))
}

// Refresh rebuilds the catalog now, whatever its age. If every provider
// fails, the previous catalog is kept.
func (a *Aggregator) Refresh(ctx context.Context) []Stop {
	return a.load(ctx, true)
}

// Catalog returns the merged stop catalog, building it if it is missing or
// older than CatalogTTL. Concurrent callers share a single build. The
// returned slice must not be modified.
func (a *Aggregator) Catalog(ctx context.Context) []Stop {
	if stops, ok := a.cached(); ok {
		return stops
	}
	return a.load(ctx, false)
}

func (a *Aggregator) load(ctx context.Context, force bool) []Stop {
	v, _, _ := a.group.Do("catalog", func() (any, error) {
		if !force {
			if stops, ok := a.cached(); ok {
				return stops, nil
			}
		}
		// The build outlives any single caller's cancellation; provider
		// timeouts bound it instead.
		stops, failed := a.build(context.WithoutCancel(ctx))
		ok := failed == 0 || failed < len(a.order)

		a.mu.Lock()
		defer a.mu.Unlock()
		if !ok {
			if a.built {
				// Keep serving the last good catalog; its age restarts.
				a.builtAt = a.now()
				a.logger.Warn("catalog rebuild failed, keeping previous catalog", "stops", len(a.catalog))
				return a.catalog, nil
			}
			// Nothing good yet: serve the empty result but don't keep it.
			return stops, nil
		}
		a.catalog = stops
		a.builtAt = a.now()
		a.built = true
		a.partial = failed > 0
		if a.opts.Metrics != nil {
			a.opts.Metrics.CatalogSize(len(stops))
		}
		return stops, nil
	})
	return v.([]Stop)
}

func (a *Aggregator) cached() ([]Stop, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.built {
		return nil, false
	}
	age := a.now().Sub(a.builtAt)
	if a.opts.CatalogTTL > 0 && age > a.opts.CatalogTTL {
		return nil, false
	}
	if a.partial && age > a.partialRetry {
		return nil, false
	}
	return a.catalog, true
}

// build fetches every provider concurrently. A failing provider contributes
// no stops; the others are still merged. failed counts the providers that
// errored.
func (a *Aggregator) build(ctx context.Context) (stops []Stop, failed int) {
	results := make([][]Stop, len(a.order))
	errored := make([]bool, len(a.order))

	var wg sync.WaitGroup
	for i, id := range a.order {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			fetched, err := p.FetchStops(ctx)
			if err != nil {
				a.logger.Warn("fetch stops failed", "source", p.ID(), "error", err)
				a.providerError(p.ID(), "stops")
				errored[i] = true
				return
			}
			for j := range fetched {
				fetched[j].SourceID = p.ID()
			}
			results[i] = fetched
		}(i, a.providers[id])
	}
	wg.Wait()

	for i, r := range results {
		stops = append(stops, r...)
		if errored[i] {
			failed++
		}
	}
	return stops, failed
}

// Search returns the full catalog for a blank query, otherwise every stop
// whose code or name contains query, case-insensitively, in catalog order.
func (a *Aggregator) Search(ctx context.Context, query string) []Stop {
	catalog := a.Catalog(ctx)
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		out := make([]Stop, len(catalog))
		copy(out, catalog)
		return out
	}

	var out []Stop
	for _, s := range catalog {
		if strings.Contains(strings.ToLower(s.Code), q) || strings.Contains(strings.ToLower(s.Name), q) {
			out = append(out, s)
		}
	}
	return out
}

// Stop looks up a single stop by identity.
func (a *Aggregator) Stop(ctx context.Context, sourceID, code string) (Stop, bool) {
	for _, s := range a.Catalog(ctx) {
		if s.SourceID == sourceID && s.Code == code {
			return s, true
		}
	}
	return Stop{}, false
}

// NearbyStop is a catalog stop with its distance from a query point.
type NearbyStop struct {
	Stop
	DistanceMeters float64 `json:"distanceMeters"`
}

// Nearby returns stops within radiusMeters of (lat, lon), nearest first.
func (a *Aggregator) Nearby(ctx context.Context, lat, lon, radiusMeters float64) []NearbyStop {
	var out []NearbyStop
	for _, s := range a.Catalog(ctx) {
		if !geo.WithinBox(lat, lon, s.Lat, s.Lon, radiusMeters) {
			continue
		}
		d := geo.Haversine(lat, lon, s.Lat, s.Lon)
		if d <= radiusMeters {
			out = append(out, NearbyStop{Stop: s, DistanceMeters: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceMeters < out[j].DistanceMeters
	})
	return out
}

// ArrivalsFor delegates to the provider that owns the stop. Only an
// unregistered source is an error; provider failures yield no arrivals.
func (a *Aggregator) ArrivalsFor(ctx context.Context, stop Stop) ([]Arrival, error) {
	p, ok := a.providers[stop.SourceID]
	if !ok {
		return nil, &UnknownProviderError{SourceID: stop.SourceID}
	}

	key := stop.SourceID + "/" + stop.Code
	if cached, ok := a.arrivals.Get(key); ok {
		return cached, nil
	}

	arrivals, err := p.FetchArrivals(ctx, stop.Code)
	if err != nil {
		a.logger.Warn("fetch arrivals failed", "source", stop.SourceID, "stop", stop.Code, "error", err)
		a.providerError(stop.SourceID, "arrivals")
		return nil, nil
	}
	for i := range arrivals {
		times := arrivals[i].Times
		sort.Slice(times, func(x, y int) bool { return times[x].Before(times[y]) })
	}

	if len(arrivals) > 0 {
		a.arrivals.Sweep()
		a.arrivals.Set(key, arrivals)
	}
	return arrivals, nil
}

func (a *Aggregator) providerError(sourceID, op string) {
	if a.opts.Metrics != nil {
		a.opts.Metrics.ProviderError(sourceID, op)
	}
}
