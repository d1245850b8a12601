package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"gocommute/internal/transit"
)

const (
	ltaPageSize = 500
	ltaMaxPages = 50
)

// LTA adapts the LTA DataMall bus stop and bus arrival APIs.
type LTA struct {
	id      string
	baseURL string
	http    *httpClient
	logger  *slog.Logger
}

// NewLTA creates an LTA DataMall adapter. Requests carry the AccountKey header.
func NewLTA(id, baseURL, accountKey string, timeout time.Duration, logger *slog.Logger) *LTA {
	return &LTA{
		id:      id,
		baseURL: baseURL,
		http: newHTTPClient(timeout, func(r *http.Request) {
			r.Header.Set("AccountKey", accountKey)
		}),
		logger: logger,
	}
}

func (l *LTA) ID() string { return l.id }

type ltaStopsPage struct {
	Value []struct {
		BusStopCode string  `json:"BusStopCode"`
		RoadName    string  `json:"RoadName"`
		Description string  `json:"Description"`
		Latitude    float64 `json:"Latitude"`
		Longitude   float64 `json:"Longitude"`
	} `json:"value"`
}

// FetchStops pages through /BusStops until an empty or short page.
func (l *LTA) FetchStops(ctx context.Context) ([]transit.Stop, error) {
	var stops []transit.Stop
	for page := 0; page < ltaMaxPages; page++ {
		u := fmt.Sprintf("%s/BusStops?$skip=%d", l.baseURL, page*ltaPageSize)
		var resp ltaStopsPage
		if err := l.http.getJSON(ctx, u, &resp); err != nil {
			return nil, fmt.Errorf("lta bus stops page %d: %w", page, err)
		}
		for _, s := range resp.Value {
			stops = append(stops, transit.Stop{
				Code:     s.BusStopCode,
				Name:     s.Description,
				Lat:      s.Latitude,
				Lon:      s.Longitude,
				SourceID: l.id,
			})
		}
		if len(resp.Value) < ltaPageSize {
			break
		}
	}
	l.logger.Debug("lta stops fetched", "count", len(stops))
	return stops, nil
}

type ltaNextBus struct {
	EstimatedArrival string `json:"EstimatedArrival"`
}

type ltaArrivalResponse struct {
	BusStopCode string `json:"BusStopCode"`
	Services    []struct {
		ServiceNo string     `json:"ServiceNo"`
		Operator  string     `json:"Operator"`
		NextBus   ltaNextBus `json:"NextBus"`
		NextBus2  ltaNextBus `json:"NextBus2"`
		NextBus3  ltaNextBus `json:"NextBus3"`
	} `json:"Services"`
}

// FetchArrivals returns up to three estimated arrivals per service. Blank
// or unparseable estimates are dropped, never padded.
func (l *LTA) FetchArrivals(ctx context.Context, stopCode string) ([]transit.Arrival, error) {
	u := fmt.Sprintf("%s/v3/BusArrival?BusStopCode=%s", l.baseURL, url.QueryEscape(stopCode))
	var resp ltaArrivalResponse
	if err := l.http.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("lta arrivals for %s: %w", stopCode, err)
	}

	arrivals := make([]transit.Arrival, 0, len(resp.Services))
	for _, svc := range resp.Services {
		var times []time.Time
		for _, nb := range []ltaNextBus{svc.NextBus, svc.NextBus2, svc.NextBus3} {
			if nb.EstimatedArrival == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, nb.EstimatedArrival)
			if err != nil {
				l.logger.Warn("lta unparseable arrival", "stop", stopCode, "service", svc.ServiceNo, "value", nb.EstimatedArrival)
				continue
			}
			times = append(times, t)
		}
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		arrivals = append(arrivals, transit.Arrival{
			ServiceName: svc.ServiceNo,
			Operator:    svc.Operator,
			Times:       times,
		})
	}
	return arrivals, nil
}
