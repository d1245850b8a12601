package gtfs

import (
	"archive/zip"
	"bytes"
	"testing"
)

const stopsTxt = "\xef\xbb\xbfstop_id,stop_name,stop_lat,stop_lon,location_type\n" +
	"S1,Clementi Int,1.3150,103.7650,0\n" +
	"STN,Clementi Station,1.3152,103.7649,1\n" +
	"S2,\"Dover Rd, Blk 20\",1.3040,103.7820,\n"

func TestParse_PlainStops(t *testing.T) {
	feed, err := Parse([]byte(stopsTxt))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(feed.Stops) != 3 {
		t.Fatalf("got %d stops, want 3", len(feed.Stops))
	}
	if feed.Stops[0].StopID != "S1" {
		t.Errorf("BOM not stripped: first id = %q", feed.Stops[0].StopID)
	}
	if feed.Stops[2].StopName != "Dover Rd, Blk 20" {
		t.Errorf("quoted name = %q", feed.Stops[2].StopName)
	}

	boardable := 0
	for _, s := range feed.Stops {
		if s.Boardable() {
			boardable++
		}
	}
	if boardable != 2 {
		t.Errorf("boardable = %d, want 2", boardable)
	}
}

func TestParse_Zip(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"stops.txt":  stopsTxt,
		"routes.txt": "route_id,route_short_name,route_long_name\nR96,96,\nRX,,Express\nRZ,,\n",
		"trips.txt":  "trip_id,route_id\nT1,R96\n",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(body))
	}
	zw.Close()

	feed, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(feed.Stops) != 3 || len(feed.Routes) != 3 {
		t.Fatalf("got %d stops / %d routes", len(feed.Stops), len(feed.Routes))
	}

	names := feed.RouteNames()
	tests := map[string]string{"R96": "96", "RX": "Express", "RZ": "RZ"}
	for id, want := range tests {
		if names[id] != want {
			t.Errorf("RouteNames()[%s] = %q, want %q", id, names[id], want)
		}
	}
}

func TestParse_ZipWithoutStops(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("routes.txt")
	w.Write([]byte("route_id\nR1\n"))
	zw.Close()

	if _, err := Parse(buf.Bytes()); err == nil {
		t.Error("zip without stops.txt should fail")
	}
}
