package gtfs

// Static holds the parts of a GTFS static feed needed to build a stop
// catalog and label realtime arrivals.
type Static struct {
	Stops  []Stop
	Routes []Route
}

// RouteNames maps route_id to the rider-facing short name, falling back
// to the long name and then the id itself.
func (s *Static) RouteNames() map[string]string {
	names := make(map[string]string, len(s.Routes))
	for _, r := range s.Routes {
		switch {
		case r.RouteShortName != "":
			names[r.RouteID] = r.RouteShortName
		case r.RouteLongName != "":
			names[r.RouteID] = r.RouteLongName
		default:
			names[r.RouteID] = r.RouteID
		}
	}
	return names
}

type Route struct {
	RouteID        string `csv:"route_id"`
	AgencyID       string `csv:"agency_id"`
	RouteShortName string `csv:"route_short_name"`
	RouteLongName  string `csv:"route_long_name"`
}

type Stop struct {
	StopID       string `csv:"stop_id"`
	StopCode     string `csv:"stop_code"`
	StopName     string `csv:"stop_name"`
	StopLat      string `csv:"stop_lat"`
	StopLon      string `csv:"stop_lon"`
	LocationType string `csv:"location_type"`
}

// Boardable reports whether riders can board at this stop. Stations,
// entrances and other location types are excluded.
func (s Stop) Boardable() bool {
	return s.LocationType == "" || s.LocationType == "0"
}
