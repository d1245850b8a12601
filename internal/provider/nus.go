package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"gocommute/internal/transit"
)

const nusOperator = "NUS"

// NUS adapts the NUS NextBus shuttle API.
type NUS struct {
	id      string
	baseURL string
	http    *httpClient
	logger  *slog.Logger
	now     func() time.Time
}

// NewNUS creates a NUS NextBus adapter using HTTP basic auth.
func NewNUS(id, baseURL, username, password string, timeout time.Duration, logger *slog.Logger) *NUS {
	return &NUS{
		id:      id,
		baseURL: baseURL,
		http: newHTTPClient(timeout, func(r *http.Request) {
			r.SetBasicAuth(username, password)
		}),
		logger: logger,
		now:    time.Now,
	}
}

func (n *NUS) ID() string { return n.id }

type nusStopsResponse struct {
	BusStopsResult struct {
		BusStops []struct {
			Caption   string  `json:"caption"`
			Name      string  `json:"name"`
			LongName  string  `json:"LongName"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"busstops"`
	} `json:"BusStopsResult"`
}

// FetchStops lists every shuttle stop. The stop code is the API's short
// name, which is also the key ShuttleService expects.
func (n *NUS) FetchStops(ctx context.Context) ([]transit.Stop, error) {
	var resp nusStopsResponse
	if err := n.http.getJSON(ctx, n.baseURL+"/BusStops", &resp); err != nil {
		return nil, fmt.Errorf("nus bus stops: %w", err)
	}

	stops := make([]transit.Stop, 0, len(resp.BusStopsResult.BusStops))
	for _, s := range resp.BusStopsResult.BusStops {
		name := s.LongName
		if name == "" {
			name = s.Caption
		}
		stops = append(stops, transit.Stop{
			Code:     s.Name,
			Name:     name,
			Lat:      s.Latitude,
			Lon:      s.Longitude,
			SourceID: n.id,
		})
	}
	return stops, nil
}

type nusShuttleResponse struct {
	ShuttleServiceResult struct {
		Name     string `json:"name"`
		Shuttles []struct {
			Name            string `json:"name"`
			ArrivalTime     string `json:"arrivalTime"`
			NextArrivalTime string `json:"nextArrivalTime"`
		} `json:"shuttles"`
	} `json:"ShuttleServiceResult"`
}

// FetchArrivals converts the "minutes from now" strings of each shuttle
// into absolute times.
func (n *NUS) FetchArrivals(ctx context.Context, stopCode string) ([]transit.Arrival, error) {
	u := fmt.Sprintf("%s/ShuttleService?busstopname=%s", n.baseURL, url.QueryEscape(stopCode))
	var resp nusShuttleResponse
	if err := n.http.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("nus shuttles for %s: %w", stopCode, err)
	}

	now := n.now()
	arrivals := make([]transit.Arrival, 0, len(resp.ShuttleServiceResult.Shuttles))
	for _, s := range resp.ShuttleServiceResult.Shuttles {
		var times []time.Time
		for _, raw := range []string{s.ArrivalTime, s.NextArrivalTime} {
			if t, ok := parseNUSMinutes(raw, now); ok {
				times = append(times, t)
			}
		}
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		arrivals = append(arrivals, transit.Arrival{
			ServiceName: s.Name,
			Operator:    nusOperator,
			Times:       times,
		})
	}
	return arrivals, nil
}

// parseNUSMinutes handles "Arr" (arriving), "-" or blank (no estimate),
// and whole minutes.
func parseNUSMinutes(raw string, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "arr":
		return now, true
	case "", "-", "n.a.":
		return time.Time{}, false
	}
	mins, err := strconv.Atoi(raw)
	if err != nil || mins < 0 {
		return time.Time{}, false
	}
	return now.Add(time.Duration(mins) * time.Minute), true
}
