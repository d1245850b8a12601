package transit

import (
	"context"
	"fmt"
	"time"
)

// Stop is a provider-normalized bus stop. Identity is (SourceID, Code);
// the same physical stop may appear once per provider.
type Stop struct {
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	SourceID string  `json:"sourceId"`
}

// Arrival lists the upcoming arrival times of one service at a stop.
// Times are ascending and never padded.
type Arrival struct {
	ServiceName string      `json:"serviceName"`
	Operator    string      `json:"operator"`
	Times       []time.Time `json:"times"`
}

// Next returns the earliest arrival time, if any.
func (a Arrival) Next() (time.Time, bool) {
	if len(a.Times) == 0 {
		return time.Time{}, false
	}
	return a.Times[0], true
}

// Provider is implemented by each transit data source adapter.
// Errors are reported to the Aggregator, which logs them and treats the
// provider as having returned nothing.
type Provider interface {
	ID() string
	FetchStops(ctx context.Context) ([]Stop, error)
	FetchArrivals(ctx context.Context, stopCode string) ([]Arrival, error)
}

// UnknownProviderError is returned when a stop references a source that
// has no registered adapter.
type UnknownProviderError struct {
	SourceID string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown transit provider %q", e.SourceID)
}
