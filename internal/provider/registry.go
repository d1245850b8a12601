package provider

import (
	"fmt"
	"log/slog"
	"time"

	"gocommute/internal/config"
	"gocommute/internal/transit"
)

// Build constructs one adapter per configured provider, in configuration
// order.
func Build(providers []config.Provider, timeout time.Duration, logger *slog.Logger) ([]transit.Provider, error) {
	out := make([]transit.Provider, 0, len(providers))
	for _, p := range providers {
		l := logger.With("source", p.ID)
		switch p.Kind {
		case config.KindLTA:
			out = append(out, NewLTA(p.ID, p.BaseURL, p.AccountKey, timeout, l))
		case config.KindNUS:
			out = append(out, NewNUS(p.ID, p.BaseURL, p.Username, p.Password, timeout, l))
		case config.KindGTFSRT:
			out = append(out, NewGTFSRT(p.ID, p.StopsURL, p.TripUpdatesURL, timeout, l))
		default:
			return nil, fmt.Errorf("provider %q: unknown kind %q", p.ID, p.Kind)
		}
	}
	return out, nil
}
