package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"gocommute/internal/gtfs"
	"gocommute/internal/transit"
)

// GTFSRT adapts any agency publishing a GTFS static feed (or bare
// stops.txt) plus a GTFS-Realtime TripUpdates feed.
type GTFSRT struct {
	id             string
	stopsURL       string
	tripUpdatesURL string
	http           *httpClient
	logger         *slog.Logger
	now            func() time.Time

	mu         sync.RWMutex
	routeNames map[string]string
}

// NewGTFSRT creates a GTFS-RT adapter.
func NewGTFSRT(id, stopsURL, tripUpdatesURL string, timeout time.Duration, logger *slog.Logger) *GTFSRT {
	return &GTFSRT{
		id:             id,
		stopsURL:       stopsURL,
		tripUpdatesURL: tripUpdatesURL,
		http: newHTTPClient(timeout, func(r *http.Request) {
			r.Header.Set("Accept", "application/x-protobuf, application/zip, text/csv, */*")
		}),
		logger:     logger,
		now:        time.Now,
		routeNames: map[string]string{},
	}
}

func (g *GTFSRT) ID() string { return g.id }

// FetchStops downloads the static feed and keeps its route names for
// labelling arrivals. The stop code is the GTFS stop_id.
func (g *GTFSRT) FetchStops(ctx context.Context) ([]transit.Stop, error) {
	body, err := g.http.get(ctx, g.stopsURL)
	if err != nil {
		return nil, fmt.Errorf("gtfs stops: %w", err)
	}
	feed, err := gtfs.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("gtfs stops: %w", err)
	}

	stops := make([]transit.Stop, 0, len(feed.Stops))
	for _, s := range feed.Stops {
		if !s.Boardable() {
			continue
		}
		lat, errLat := strconv.ParseFloat(s.StopLat, 64)
		lon, errLon := strconv.ParseFloat(s.StopLon, 64)
		if errLat != nil || errLon != nil {
			g.logger.Warn("gtfs stop without coordinates", "source", g.id, "stop_id", s.StopID)
			continue
		}
		stops = append(stops, transit.Stop{
			Code:     s.StopID,
			Name:     s.StopName,
			Lat:      lat,
			Lon:      lon,
			SourceID: g.id,
		})
	}

	if len(feed.Routes) > 0 {
		g.mu.Lock()
		g.routeNames = feed.RouteNames()
		g.mu.Unlock()
	}
	g.logger.Info("GTFS stops parsed", "source", g.id, "stops", len(stops), "routes", len(feed.Routes))
	return stops, nil
}

// FetchArrivals reads the TripUpdates feed and collects predicted times at
// stopCode, grouped by route. Times already in the past are dropped.
func (g *GTFSRT) FetchArrivals(ctx context.Context, stopCode string) ([]transit.Arrival, error) {
	body, err := g.http.get(ctx, g.tripUpdatesURL)
	if err != nil {
		return nil, fmt.Errorf("gtfs-rt trip updates: %w", err)
	}
	feed := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("parse trip updates protobuf: %w", err)
	}

	now := g.now()
	byRoute := make(map[string][]time.Time)
	var order []string
	for _, entity := range feed.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}
		routeID := tu.GetTrip().GetRouteId()
		for _, stu := range tu.GetStopTimeUpdate() {
			if stu.GetStopId() != stopCode {
				continue
			}
			if stu.GetScheduleRelationship() == gtfsrt.TripUpdate_StopTimeUpdate_SKIPPED {
				continue
			}
			ts := stu.GetArrival().GetTime()
			if ts == 0 {
				ts = stu.GetDeparture().GetTime()
			}
			if ts == 0 {
				continue
			}
			t := time.Unix(ts, 0)
			if t.Before(now) {
				continue
			}
			if _, ok := byRoute[routeID]; !ok {
				order = append(order, routeID)
			}
			byRoute[routeID] = append(byRoute[routeID], t)
		}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	arrivals := make([]transit.Arrival, 0, len(order))
	for _, routeID := range order {
		times := byRoute[routeID]
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		name := g.routeNames[routeID]
		if name == "" {
			name = routeID
		}
		arrivals = append(arrivals, transit.Arrival{
			ServiceName: name,
			Operator:    g.id,
			Times:       times,
		})
	}
	return arrivals, nil
}
